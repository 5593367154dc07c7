package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gasguard/internal/evaluator"
	"gasguard/internal/models"
	"gasguard/internal/notifier"
	"gasguard/internal/repository"
	"gasguard/internal/telemetry"

	"go.uber.org/zap"
)

var (
	// ErrInvalidInput 请求字段缺失或格式错误（HTTP 400）
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownDevice 设备未注册（HTTP 404）
	ErrUnknownDevice = errors.New("unknown device")
)

// LegacyDeviceID 旧版接口未携带 device_id 时使用的设备 ID（不会触发通知）
const LegacyDeviceID = "legacy"

// AlertNotifier 通知派发（notifier.Dispatcher）
type AlertNotifier interface {
	Notify(ctx context.Context, alert notifier.Alert) models.Outcome
}

// IngestRequest 多传感器上报
// 固件使用 sensores，新版使用 sensor_readings，两者合并处理
type IngestRequest struct {
	DeviceID       string               `json:"device_id"`
	Sensores       []models.SensorInput `json:"sensores"`
	SensorReadings []models.SensorInput `json:"sensor_readings"`
}

// Inputs 合并两种字段名的传感器列表
func (r IngestRequest) Inputs() []models.SensorInput {
	out := make([]models.SensorInput, 0, len(r.Sensores)+len(r.SensorReadings))
	out = append(out, r.Sensores...)
	return append(out, r.SensorReadings...)
}

// IngestResult 上报结果（读数落库后立即返回）
type IngestResult struct {
	DeviceID string           `json:"device_id"`
	Saved    int              `json:"lecturas_guardadas"`
	Alerts   int              `json:"alertas"`
	Readings []models.Reading `json:"lecturas"`
}

// LegacyGasRequest 旧版单气体读数
type LegacyGasRequest struct {
	ValorPPM     *float64 `json:"valor_ppm"`
	SensorNombre string   `json:"sensor_nombre"`
	DeviceID     string   `json:"device_id"`
}

// IngestOptions 流水线配置
type IngestOptions struct {
	NotifyAsync      bool
	MaxReadings      int
	PruneProbability float64
	Rand             func() float64
}

// IngestService 读数接入：校验 → 分级 → 落库 → 应答；报警读数进入 连续检测 → 升级 → 通知
type IngestService struct {
	readings   repository.ReadingsRepository
	devices    repository.DevicesRepository
	classifier *evaluator.Classifier
	streaks    *evaluator.StreakDetector
	notifier   AlertNotifier
	pruner     *Pruner
	metrics    *telemetry.Metrics
	opts       IngestOptions
	wg         sync.WaitGroup
	logger     *zap.Logger
}

func NewIngestService(
	readings repository.ReadingsRepository,
	devices repository.DevicesRepository,
	classifier *evaluator.Classifier,
	streaks *evaluator.StreakDetector,
	alertNotifier AlertNotifier,
	pruner *Pruner,
	metrics *telemetry.Metrics,
	opts IngestOptions,
	logger *zap.Logger,
) *IngestService {
	if opts.Rand == nil {
		opts.Rand = rand.Float64
	}
	return &IngestService{
		readings:   readings,
		devices:    devices,
		classifier: classifier,
		streaks:    streaks,
		notifier:   alertNotifier,
		pruner:     pruner,
		metrics:    metrics,
		opts:       opts,
		logger:     logger,
	}
}

// Ingest 处理一次多传感器上报
// 只有输入非法或落库失败会返回错误；通知流水线的问题只记日志
func (s *IngestService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("%w: device_id is required", ErrInvalidInput)
	}
	inputs := req.Inputs()
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: sensores must not be empty", ErrInvalidInput)
	}

	readings := make([]models.Reading, 0, len(inputs))
	for i, in := range inputs {
		sensorType, value, unit, name, ok := in.Normalize()
		if !ok {
			return nil, fmt.Errorf("%w: sensor %d requires tipo and valor", ErrInvalidInput, i)
		}
		readings = append(readings, models.Reading{
			DeviceID:   req.DeviceID,
			SensorType: sensorType,
			SensorName: name,
			Value:      value,
			Unit:       unit,
		})
	}

	device, err := s.devices.GetDevice(ctx, req.DeviceID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, req.DeviceID)
		}
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	saved, err := s.persist(ctx, readings)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{DeviceID: req.DeviceID, Saved: len(saved), Readings: saved}
	for _, r := range saved {
		if r.Severity.IsAlert() {
			result.Alerts++
		}
	}

	s.schedule(ctx, device, saved)
	return result, nil
}

// IngestLegacyGas 旧版单气体读数接口
func (s *IngestService) IngestLegacyGas(ctx context.Context, req LegacyGasRequest) (*models.Reading, error) {
	if req.ValorPPM == nil {
		return nil, fmt.Errorf("%w: valor_ppm is required and must be a number", ErrInvalidInput)
	}

	var device *models.Device
	deviceID := req.DeviceID
	if deviceID == "" {
		deviceID = LegacyDeviceID
	} else {
		d, err := s.devices.GetDevice(ctx, deviceID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
			}
			return nil, fmt.Errorf("failed to load device: %w", err)
		}
		device = d
	}

	name := req.SensorNombre
	if name == "" {
		name = "Sensor Principal"
	}
	saved, err := s.persist(ctx, []models.Reading{{
		DeviceID:   deviceID,
		SensorType: models.LegacyGasSensorType,
		SensorName: name,
		Value:      *req.ValorPPM,
		Unit:       "ppm",
	}})
	if err != nil {
		return nil, err
	}

	s.schedule(ctx, device, saved)
	return &saved[0], nil
}

func (s *IngestService) persist(ctx context.Context, readings []models.Reading) ([]models.Reading, error) {
	for i := range readings {
		r := &readings[i]
		r.Severity = s.classifier.Classify(r.SensorType, r.Value)
		if err := s.readings.InsertReading(ctx, r); err != nil {
			s.logger.Error("Failed to insert reading",
				zap.String("device_id", r.DeviceID),
				zap.String("sensor_type", r.SensorType),
				zap.Error(err),
			)
			return nil, fmt.Errorf("failed to insert reading: %w", err)
		}
		s.metrics.RecordReading(ctx, r.SensorType, string(r.Severity))
	}
	return readings, nil
}

// schedule 运行通知流水线与概率清理；异步时不受请求取消影响
func (s *IngestService) schedule(ctx context.Context, device *models.Device, readings []models.Reading) {
	if !s.opts.NotifyAsync {
		s.afterIngest(ctx, device, readings)
		return
	}

	bg := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.afterIngest(bg, device, readings)
	}()
}

func (s *IngestService) afterIngest(ctx context.Context, device *models.Device, readings []models.Reading) {
	if device != nil {
		for _, r := range readings {
			if r.Severity.IsAlert() {
				s.escalate(ctx, *device, r)
			}
		}
	}
	s.maybePrune(ctx)
}

// escalate 连续报警达到阈值后通知设备认领者；未认领设备从不通知
func (s *IngestService) escalate(ctx context.Context, device models.Device, r models.Reading) {
	recipient := device.Recipient()
	if recipient == nil {
		s.logger.Debug("Device has no recipient, skipping notification",
			zap.String("device_id", device.ID),
			zap.String("sensor_type", r.SensorType),
		)
		return
	}

	count, ok := s.streaks.ShouldEscalate(ctx, device.ID, r.SensorType)
	if !ok {
		return
	}
	s.metrics.RecordEscalation(ctx, r.SensorType)

	outcome := s.notifier.Notify(ctx, notifier.Alert{
		Reading:           r,
		Device:            device,
		Recipient:         *recipient,
		Kind:              s.classifier.Table().KindOf(r.SensorType),
		ConsecutiveAlerts: count,
	})
	s.logger.Info("Alert escalated",
		zap.String("device_id", device.ID),
		zap.String("sensor_type", r.SensorType),
		zap.Int("consecutive", count),
		zap.String("outcome", string(outcome)),
	)
}

func (s *IngestService) maybePrune(ctx context.Context) {
	if s.pruner == nil || s.opts.MaxReadings <= 0 || s.opts.PruneProbability <= 0 {
		return
	}
	if s.opts.Rand() >= s.opts.PruneProbability {
		return
	}
	if _, err := s.pruner.Prune(ctx, s.opts.MaxReadings); err != nil {
		s.logger.Warn("Probabilistic prune failed", zap.Error(err))
	}
}

// Wait 等待所有后台流水线结束
func (s *IngestService) Wait() {
	s.wg.Wait()
}

// Shutdown 在 ctx 截止前等待后台流水线结束
func (s *IngestService) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to drain notification pipeline: %w", ctx.Err())
	}
}
