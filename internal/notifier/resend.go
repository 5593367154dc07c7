package notifier

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// resendRequest Resend /emails 请求体
type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

type resendResponse struct {
	ID string `json:"id"`
}

type resendError struct {
	StatusCode int    `json:"statusCode"`
	Name       string `json:"name"`
	Message    string `json:"message"`
}

// ResendSender 通过 Resend 兼容的 HTTP API 发送邮件
// 不做重试：失败由审计记录体现，等待下一次合格读数重新触发
type ResendSender struct {
	httpClient *resty.Client
	from       string
	logger     *zap.Logger
}

func NewResendSender(baseURL, apiKey, from string, logger *zap.Logger) *ResendSender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &ResendSender{httpClient: client, from: from, logger: logger}
}

func (s *ResendSender) Send(ctx context.Context, msg Message) SendResult {
	var result resendResponse
	var apiErr resendError
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(resendRequest{
			From:    s.from,
			To:      []string{msg.To},
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
		}).
		SetResult(&result).
		SetError(&apiErr).
		Post("/emails")

	if err != nil {
		s.logger.Error("Resend API call failed", zap.String("to", msg.To), zap.Error(err))
		return SendResult{Success: false, Error: fmt.Sprintf("resend request failed: %v", err)}
	}
	if resp.IsError() {
		s.logger.Error("Resend API returned error",
			zap.String("to", msg.To),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", apiErr.Message),
		)
		return SendResult{Success: false, Error: fmt.Sprintf("resend error (status %d): %s", resp.StatusCode(), apiErr.Message)}
	}

	return SendResult{Success: true, ProviderMessageID: result.ID}
}
