package service

import (
	"context"
	"fmt"
	"time"

	"gasguard/internal/repository"
	"gasguard/internal/telemetry"

	"go.uber.org/zap"
)

// PruneResult 一次清理的结果
type PruneResult struct {
	Deleted   int64 `json:"lecturas_eliminadas"`
	Remaining int   `json:"lecturas_restantes"`
	Previous  int   `json:"lecturas_anteriores"`
}

// Pruner 读数保留：只保留最新的 keep 条
type Pruner struct {
	readings repository.ReadingsRepository
	metrics  *telemetry.Metrics
	logger   *zap.Logger
}

func NewPruner(readings repository.ReadingsRepository, metrics *telemetry.Metrics, logger *zap.Logger) *Pruner {
	return &Pruner{readings: readings, metrics: metrics, logger: logger}
}

// Prune 计数 → 取最旧的多余 ID → 按 ID 集合删除
func (p *Pruner) Prune(ctx context.Context, keep int) (PruneResult, error) {
	if keep < 0 {
		return PruneResult{}, fmt.Errorf("keep must not be negative: %d", keep)
	}

	count, err := p.readings.CountReadings(ctx)
	if err != nil {
		return PruneResult{}, fmt.Errorf("failed to count readings: %w", err)
	}
	result := PruneResult{Remaining: count, Previous: count}
	if count <= keep {
		return result, nil
	}

	ids, err := p.readings.ListOldestReadingIDs(ctx, count-keep)
	if err != nil {
		return result, fmt.Errorf("failed to list oldest readings: %w", err)
	}
	if len(ids) == 0 {
		return result, nil
	}

	deleted, err := p.readings.DeleteReadingsByIDs(ctx, ids)
	if err != nil {
		return result, fmt.Errorf("failed to delete readings: %w", err)
	}
	result.Deleted = deleted
	result.Remaining = count - int(deleted)

	p.metrics.RecordPruned(ctx, deleted)
	p.logger.Info("Pruned old readings",
		zap.Int64("deleted", deleted),
		zap.Int("remaining", result.Remaining),
		zap.Int("keep", keep),
	)
	return result, nil
}

// Run 定时清理，直到 ctx 结束
func (p *Pruner) Run(ctx context.Context, interval time.Duration, keep int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Prune(ctx, keep); err != nil && ctx.Err() == nil {
				p.logger.Warn("Scheduled prune failed", zap.Error(err))
			}
		}
	}
}
