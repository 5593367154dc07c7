package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrLockNotAcquired 等待超时仍未拿到锁
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// LockKeyPrefix 分布式锁键前缀
const LockKeyPrefix = "gasguard:lock:"

// 仅当值仍是自己的 token 时删除
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// RedisLocker 基于 SET NX PX 的分布式互斥锁（多副本部署时使用）
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

// NewRedisLocker ttl 为锁过期时间，同时也是最长等待时间
func NewRedisLocker(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{
		client:     client,
		ttl:        ttl,
		wait:       ttl,
		retryDelay: 50 * time.Millisecond,
		logger:     logger,
	}
}

// Lock 获取锁，返回释放函数
// 在 wait 时间内轮询重试；超时返回 ErrLockNotAcquired
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := LockKeyPrefix + key
	token := uuid.New().String()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *RedisLocker) release(redisKey, token string) {
	// 调用方的 ctx 可能已取消，释放使用独立超时
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Int64()
	if err != nil {
		l.logger.Warn("Failed to release lock", zap.String("key", redisKey), zap.Error(err))
		return
	}
	if n == 0 {
		// 锁已过期并可能被其他实例持有
		l.logger.Warn("Lock expired before release", zap.String("key", redisKey))
	}
}
