package store

import (
	"context"

	rediscommon "gasguard/common/redis"
	"gasguard/internal/models"

	"github.com/go-redis/redis/v8"
)

// DefaultAuditStreamMaxLen stream 近似最大长度
const DefaultAuditStreamMaxLen = 10000

// AuditStreamPublisher 把审计记录发布到 Redis Stream，供看板等下游消费
type AuditStreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewAuditStreamPublisher(client *redis.Client, stream string) *AuditStreamPublisher {
	return &AuditStreamPublisher{client: client, stream: stream, maxLen: DefaultAuditStreamMaxLen}
}

// Stream stream 名称
func (p *AuditStreamPublisher) Stream() string {
	return p.stream
}

// PublishAudit 发布一条审计记录
func (p *AuditStreamPublisher) PublishAudit(ctx context.Context, audit models.NotificationAudit) error {
	_, err := rediscommon.PublishJSONToStream(ctx, p.client, p.stream, audit, p.maxLen)
	return err
}

// EnsureConsumerGroup 创建消费者组（幂等）
func (p *AuditStreamPublisher) EnsureConsumerGroup(ctx context.Context, group string) error {
	return rediscommon.CreateConsumerGroup(ctx, p.client, p.stream, group)
}
