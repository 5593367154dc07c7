package notifier

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/mail"
	"net/smtp"

	"github.com/google/uuid"
	"github.com/jordan-wright/email"
	"go.uber.org/zap"
)

// SMTPConfig SMTP 发送配置
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// SMTPSender 通过 SMTP（STARTTLS）发送邮件
type SMTPSender struct {
	cfg    SMTPConfig
	logger *zap.Logger
	send   func(e *email.Email) error
}

func NewSMTPSender(cfg SMTPConfig, logger *zap.Logger) *SMTPSender {
	s := &SMTPSender{cfg: cfg, logger: logger}
	s.send = s.sendStartTLS
	return s
}

func (s *SMTPSender) sendStartTLS(e *email.Email) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}
	return e.SendWithStartTLS(addr, auth, &tls.Config{ServerName: s.cfg.Host})
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) SendResult {
	e := email.NewEmail()
	e.From = s.cfg.From
	e.To = []string{(&mail.Address{Name: msg.ToName, Address: msg.To}).String()}
	e.Subject = msg.Subject
	e.Text = []byte(msg.Text)
	e.HTML = []byte(msg.HTML)

	messageID := fmt.Sprintf("<%s@gasguard>", uuid.New().String())
	e.Headers.Set("Message-Id", messageID)

	// jordan-wright/email 不支持 context，发送放到 goroutine 中以响应超时
	done := make(chan error, 1)
	go func() { done <- s.send(e) }()

	select {
	case err := <-done:
		if err != nil {
			s.logger.Error("SMTP send failed", zap.String("to", msg.To), zap.Error(err))
			return SendResult{Success: false, Error: fmt.Sprintf("smtp send failed: %v", err)}
		}
		return SendResult{Success: true, ProviderMessageID: messageID}
	case <-ctx.Done():
		return SendResult{Success: false, Error: fmt.Sprintf("smtp send aborted: %v", ctx.Err())}
	}
}
