package service

import (
	"context"
	"fmt"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/notifier"

	"go.uber.org/zap"
)

// 自检邮件类型
const (
	EmailCheckTest  = "prueba"
	EmailCheckAlert = "alerta"
)

// 模拟报警使用的读数
const (
	simulatedSensorType = "MQ2"
	simulatedValue      = 650
	simulatedStreak     = 3
)

// EmailCheckResult 自检结果
type EmailCheckResult struct {
	Tipo         string `json:"tipo"`
	Destinatario string `json:"destinatario"`
	Success      bool   `json:"success"`
	EmailID      string `json:"email_id,omitempty"`
	Error        string `json:"error,omitempty"`
}

// EmailCheckService 用户自检邮件渠道：直接经 Sender 发送，不经过闸门，也不写审计
type EmailCheckService struct {
	sender      notifier.Sender
	sendTimeout time.Duration
	loc         *time.Location
	now         func() time.Time
	logger      *zap.Logger
}

func NewEmailCheckService(sender notifier.Sender, sendTimeout time.Duration, loc *time.Location, logger *zap.Logger) *EmailCheckService {
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}
	return &EmailCheckService{sender: sender, sendTimeout: sendTimeout, loc: loc, now: time.Now, logger: logger}
}

// Send 向当前用户发送测试邮件（prueba）或模拟的危险报警（alerta）
func (s *EmailCheckService) Send(ctx context.Context, p Principal, tipo string) (*EmailCheckResult, error) {
	if tipo == "" {
		tipo = EmailCheckTest
	}
	now := s.now().In(s.loc)

	var (
		msg notifier.Message
		err error
	)
	switch tipo {
	case EmailCheckTest:
		msg, err = notifier.RenderTestEmail(p.Email, "Usuario", now)
	case EmailCheckAlert:
		msg, err = notifier.RenderAlert(notifier.AlertData{
			RecipientName:     "Usuario",
			DeviceID:          "SIMULACION",
			DeviceName:        "Simulación",
			SensorType:        simulatedSensorType,
			SensorName:        "Sensor de gas (simulado)",
			Kind:              models.KindGas,
			Value:             simulatedValue,
			Unit:              "ppm",
			Severity:          models.SeverityDanger,
			ConsecutiveAlerts: simulatedStreak,
			DetectedAt:        now,
		})
		msg.To = p.Email
	default:
		return nil, fmt.Errorf("%w: tipo must be %s or %s", ErrInvalidInput, EmailCheckTest, EmailCheckAlert)
	}
	if err != nil {
		return nil, err
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	res := s.sender.Send(sendCtx, msg)
	if !res.Success && res.Error == "" && sendCtx.Err() != nil {
		res.Error = sendCtx.Err().Error()
	}

	s.logger.Info("Email check sent",
		zap.String("user_id", p.UserID),
		zap.String("tipo", tipo),
		zap.Bool("success", res.Success),
	)
	return &EmailCheckResult{
		Tipo:         tipo,
		Destinatario: p.Email,
		Success:      res.Success,
		EmailID:      res.ProviderMessageID,
		Error:        res.Error,
	}, nil
}
