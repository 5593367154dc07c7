package evaluator

import (
	"context"

	"gasguard/internal/models"

	"go.uber.org/zap"
)

// ReadingHistory 读数历史查询（按时间倒序）
type ReadingHistory interface {
	ListRecentReadings(ctx context.Context, deviceID, sensorType string, limit int) ([]models.Reading, error)
}

// StreakDetector 连续报警检测器
type StreakDetector struct {
	history    ReadingHistory
	classifier *Classifier
	required   int
	logger     *zap.Logger
}

// NewStreakDetector 创建连续报警检测器
// required 为触发升级所需的连续非 normal 读数条数
func NewStreakDetector(history ReadingHistory, classifier *Classifier, required int, logger *zap.Logger) *StreakDetector {
	if required < 1 {
		required = 1
	}
	return &StreakDetector{
		history:    history,
		classifier: classifier,
		required:   required,
		logger:     logger,
	}
}

// Required 触发升级所需的连续报警条数
func (d *StreakDetector) Required() int {
	return d.required
}

// CountConsecutiveAlerts 统计最近连续的非 normal 读数条数
// 取最近 window+1 条（倒序），遇到第一条 normal 即停止
// 查询失败时记录日志并视为无连续报警
func (d *StreakDetector) CountConsecutiveAlerts(ctx context.Context, deviceID, sensorType string, window int) int {
	if window < 0 {
		window = 0
	}
	readings, err := d.history.ListRecentReadings(ctx, deviceID, sensorType, window+1)
	if err != nil {
		d.logger.Warn("Failed to load reading history, treating as no streak",
			zap.String("device_id", deviceID),
			zap.String("sensor_type", sensorType),
			zap.Error(err),
		)
		return 0
	}

	count := 0
	for _, r := range readings {
		// 严重程度以阈值表为准，缓存值仅作参考
		if !d.classifier.Classify(r.SensorType, r.Value).IsAlert() {
			break
		}
		count++
	}
	return count
}

// ShouldEscalate 当前 (设备, 传感器类型) 是否达到升级条件
func (d *StreakDetector) ShouldEscalate(ctx context.Context, deviceID, sensorType string) (int, bool) {
	count := d.CountConsecutiveAlerts(ctx, deviceID, sensorType, d.required)
	return count, count >= d.required
}
