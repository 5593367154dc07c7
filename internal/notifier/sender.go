package notifier

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Message 待发送的邮件
type Message struct {
	To      string
	ToName  string
	Subject string
	HTML    string
	Text    string
}

// SendResult 发送结果；普通投递失败通过 Success=false 返回，不返回 Go error
type SendResult struct {
	Success           bool
	ProviderMessageID string
	Error             string
}

// Sender 邮件发送能力
type Sender interface {
	Send(ctx context.Context, msg Message) SendResult
}

// LogSender 只记录日志（本地开发）
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, msg Message) SendResult {
	id := "log-" + uuid.New().String()
	s.logger.Info("Email (log sender)",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("message_id", id),
	)
	return SendResult{Success: true, ProviderMessageID: id}
}
