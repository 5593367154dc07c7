package notifier

import (
	"context"
	"fmt"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/telemetry"

	"go.uber.org/zap"
)

// auditWriteTimeout 审计写入使用独立超时，不受调用方取消影响
const auditWriteTimeout = 5 * time.Second

// Alert 一次升级后的通知请求（每个接收人一条）
type Alert struct {
	Reading           models.Reading
	Device            models.Device
	Recipient         models.User
	Kind              models.SensorKind
	ConsecutiveAlerts int
}

// PreferenceSource 用户偏好来源（永不失败）
type PreferenceSource interface {
	Resolve(ctx context.Context, userID string) models.NotificationPreference
}

// AuditWriter 审计写入
type AuditWriter interface {
	InsertAudit(ctx context.Context, a *models.NotificationAudit) error
}

// AuditPublisher 审计事件发布（尽力而为）
type AuditPublisher interface {
	PublishAudit(ctx context.Context, audit models.NotificationAudit) error
}

// DispatcherOptions 发送与审计配置
type DispatcherOptions struct {
	SendTimeout time.Duration
	Location    *time.Location // 邮件中检测时间的显示时区
	Publisher   AuditPublisher
	Metrics     *telemetry.Metrics
	Now         func() time.Time
}

// Dispatcher 发送并记录审计
// 每个 (设备, 接收人) 的 闸门检查 → 发送 → 写审计 在同一把锁内串行执行
type Dispatcher struct {
	gate        *Gate
	prefs       PreferenceSource
	sender      Sender
	audits      AuditWriter
	locker      Locker
	publisher   AuditPublisher
	metrics     *telemetry.Metrics
	sendTimeout time.Duration
	loc         *time.Location
	now         func() time.Time
	logger      *zap.Logger
}

func NewDispatcher(gate *Gate, prefs PreferenceSource, sender Sender, audits AuditWriter, locker Locker, opts DispatcherOptions, logger *zap.Logger) *Dispatcher {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if locker == nil {
		locker = NewLocalLocker()
	}
	return &Dispatcher{
		gate:        gate,
		prefs:       prefs,
		sender:      sender,
		audits:      audits,
		locker:      locker,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		sendTimeout: opts.SendTimeout,
		loc:         opts.Location,
		now:         opts.Now,
		logger:      logger,
	}
}

// Notify 处理一条通知请求，返回最终审计结果；不向调用方返回错误
func (d *Dispatcher) Notify(ctx context.Context, alert Alert) models.Outcome {
	logger := d.logger.With(
		zap.String("device_id", alert.Device.ID),
		zap.String("recipient", alert.Recipient.Email),
		zap.String("sensor_type", alert.Reading.SensorType),
	)

	unlock, err := d.locker.Lock(ctx, LockKey(alert.Device.ID, alert.Recipient.Email))
	if unlock != nil {
		defer unlock()
	}
	if err != nil {
		// 拿不到锁时继续处理：漏发比重复发送代价更高
		logger.Warn("Failed to acquire notification lock, proceeding", zap.Error(err))
	}

	pref := d.prefs.Resolve(ctx, alert.Recipient.ID)
	decision := d.gate.CanNotify(ctx, Candidate{
		Recipient:  alert.Recipient.Email,
		DeviceID:   alert.Device.ID,
		SensorType: alert.Reading.SensorType,
		Severity:   alert.Reading.Severity,
		Preference: pref,
	})

	if !decision.Allowed {
		audit := d.newAudit(alert, models.OutcomeBlocked)
		audit.Subject, audit.Body = blockedSummary(alert, decision.Reason)
		audit.Reason = decision.Reason
		logger.Info("Notification blocked", zap.String("reason", decision.Reason))
		d.record(ctx, logger, audit)
		return audit.Outcome
	}

	msg, err := RenderAlert(AlertData{
		RecipientName:     alert.Recipient.FullName(),
		DeviceID:          alert.Device.ID,
		DeviceName:        alert.Device.Name,
		SensorType:        alert.Reading.SensorType,
		SensorName:        alert.Reading.SensorName,
		Kind:              alert.Kind,
		Value:             alert.Reading.Value,
		Unit:              alert.Reading.Unit,
		Severity:          alert.Reading.Severity,
		ConsecutiveAlerts: alert.ConsecutiveAlerts,
		DetectedAt:        alert.Reading.CreatedAt.In(d.loc),
	})
	if err != nil {
		audit := d.newAudit(alert, models.OutcomeFailed)
		audit.Reason = err.Error()
		logger.Error("Failed to render notification", zap.Error(err))
		d.record(ctx, logger, audit)
		return audit.Outcome
	}
	msg.To = alert.Recipient.Email
	msg.ToName = alert.Recipient.FullName()

	result := d.send(ctx, msg)

	audit := d.newAudit(alert, models.OutcomeSent)
	audit.Subject = msg.Subject
	audit.Body = msg.Text
	if result.Success {
		audit.ProviderResponse = result.ProviderMessageID
		logger.Info("Notification sent", zap.String("message_id", result.ProviderMessageID))
	} else {
		audit.Outcome = models.OutcomeFailed
		audit.Reason = result.Error
		logger.Warn("Notification send failed", zap.String("error", result.Error))
	}
	d.record(ctx, logger, audit)
	return audit.Outcome
}

// send 带超时发送；超时按失败处理
func (d *Dispatcher) send(ctx context.Context, msg Message) SendResult {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan SendResult, 1)
	go func() { done <- d.sender.Send(sendCtx, msg) }()

	var result SendResult
	select {
	case result = <-done:
	case <-sendCtx.Done():
		result = SendResult{Success: false, Error: fmt.Sprintf("email send timed out after %s", d.sendTimeout)}
	}
	if !result.Success && sendCtx.Err() == context.DeadlineExceeded {
		result.Error = fmt.Sprintf("email send timed out after %s", d.sendTimeout)
	}
	d.metrics.RecordSendDuration(ctx, time.Since(start).Seconds(), result.Success)
	return result
}

func (d *Dispatcher) newAudit(alert Alert, outcome models.Outcome) *models.NotificationAudit {
	audit := &models.NotificationAudit{
		Recipient:  alert.Recipient.Email,
		UserID:     alert.Recipient.ID,
		DeviceID:   alert.Device.ID,
		SensorType: alert.Reading.SensorType,
		Outcome:    outcome,
		Severity:   alert.Reading.Severity,
		CreatedAt:  d.now(),
	}
	// 被拦截的通知不关联具体读数
	if outcome != models.OutcomeBlocked && alert.Reading.ID != 0 {
		id := alert.Reading.ID
		audit.ReadingID = &id
	}
	return audit
}

// record 写审计并发布事件
// 发送成功后写审计失败会让后续冷却/上限失效，按错误级别记录并计数
func (d *Dispatcher) record(ctx context.Context, logger *zap.Logger, audit *models.NotificationAudit) {
	d.metrics.RecordDecision(ctx, string(audit.Outcome))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := d.audits.InsertAudit(writeCtx, audit); err != nil {
		afterSend := audit.Outcome == models.OutcomeSent
		d.metrics.RecordAuditWriteFailure(ctx, afterSend)
		if afterSend {
			logger.Error("Audit write failed after successful send; rate limiting is compromised for this recipient",
				zap.String("outcome", string(audit.Outcome)),
				zap.Error(err),
			)
		} else {
			logger.Warn("Audit write failed",
				zap.String("outcome", string(audit.Outcome)),
				zap.Error(err),
			)
		}
		return
	}

	if d.publisher != nil {
		if err := d.publisher.PublishAudit(writeCtx, *audit); err != nil {
			logger.Debug("Failed to publish audit event", zap.Error(err))
		}
	}
}

func blockedSummary(alert Alert, reason string) (string, string) {
	deviceName := alert.Device.Name
	if deviceName == "" {
		deviceName = alert.Device.ID
	}
	sensorName := alert.Reading.SensorName
	if sensorName == "" {
		sensorName = alert.Reading.SensorType
	}
	subject := fmt.Sprintf("Alerta %s bloqueada - %s", sensorName, deviceName)
	body := fmt.Sprintf("Dispositivo: %s (%s). Sensor: %s. Valor: %v %s. Bloqueado: %s",
		deviceName, alert.Device.ID, sensorName, alert.Reading.Value, alert.Reading.Unit, reason)
	return subject, body
}
