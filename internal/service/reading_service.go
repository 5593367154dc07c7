package service

import (
	"context"
	"fmt"

	"gasguard/internal/models"
	"gasguard/internal/repository"

	"go.uber.org/zap"
)

// 读数查询与手动清理默认值
const (
	defaultReadingsLimit = 10
	defaultCleanupKeep   = 100
)

// ReadingService 读数查询与手动清理
type ReadingService struct {
	readings repository.ReadingsRepository
	pruner   *Pruner
	logger   *zap.Logger
}

func NewReadingService(readings repository.ReadingsRepository, pruner *Pruner, logger *zap.Logger) *ReadingService {
	return &ReadingService{readings: readings, pruner: pruner, logger: logger}
}

// List 最近读数，按时间倒序
func (s *ReadingService) List(ctx context.Context, filters repository.ReadingFilters) ([]models.Reading, error) {
	if filters.Limit <= 0 {
		filters.Limit = defaultReadingsLimit
	}
	items, err := s.readings.ListReadings(ctx, filters)
	if err != nil {
		s.logger.Error("ListReadings failed", zap.String("device_id", filters.DeviceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list readings: %w", err)
	}
	if items == nil {
		items = []models.Reading{}
	}
	return items, nil
}

// Cleanup 手动清理，keep <= 0 时使用默认保留条数
func (s *ReadingService) Cleanup(ctx context.Context, keep int) (PruneResult, error) {
	if keep <= 0 {
		keep = defaultCleanupKeep
	}
	return s.pruner.Prune(ctx, keep)
}
