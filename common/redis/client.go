package redis

import (
	"context"
	"fmt"
	"time"

	"gasguard/common/config"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient 创建Redis客户端（不检查连通性）
func NewRedisClient(cfg *config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Connect 创建客户端并在 timeout 内 PING 一次
// 未启用时返回 (nil, nil)；PING 失败时关闭客户端并返回错误
func Connect(ctx context.Context, cfg *config.RedisConfig, timeout time.Duration) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client := NewRedisClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Close 关闭Redis连接，client 为 nil 时忽略
func Close(client *redis.Client) error {
	if client == nil {
		return nil
	}
	return client.Close()
}
