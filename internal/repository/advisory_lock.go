package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"time"

	"go.uber.org/zap"
)

// ErrAdvisoryLockTimeout 等待超时仍未拿到 advisory 锁
var ErrAdvisoryLockTimeout = errors.New("advisory lock not acquired")

// AdvisoryKey 锁键 → pg advisory lock 的 bigint 键
func AdvisoryKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("gasguard:notify:" + key))
	return int64(h.Sum64())
}

// PostgresAdvisoryLocker 基于 pg_try_advisory_lock 的会话级互斥锁
// 未部署 Redis 时，多个副本共享同一数据库也不会重复发送
// 持锁期间独占一个连接，释放时解锁并归还连接
type PostgresAdvisoryLocker struct {
	db         *sql.DB
	wait       time.Duration
	retryDelay time.Duration
	logger     *zap.Logger
}

func NewPostgresAdvisoryLocker(db *sql.DB, wait time.Duration, logger *zap.Logger) *PostgresAdvisoryLocker {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	return &PostgresAdvisoryLocker{db: db, wait: wait, retryDelay: 50 * time.Millisecond, logger: logger}
}

func (l *PostgresAdvisoryLocker) Lock(ctx context.Context, key string) (func(), error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for advisory lock: %w", err)
	}

	id := AdvisoryKey(key)
	deadline := time.Now().Add(l.wait)
	for {
		var ok bool
		if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, id).Scan(&ok); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to acquire advisory lock %s: %w", key, err)
		}
		if ok {
			return func() { l.release(conn, key, id) }, nil
		}
		if time.Now().After(deadline) {
			_ = conn.Close()
			return nil, ErrAdvisoryLockTimeout
		}

		select {
		case <-ctx.Done():
			_ = conn.Close()
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

func (l *PostgresAdvisoryLocker) release(conn *sql.Conn, key string, id int64) {
	defer conn.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, id); err != nil {
		// 连接关闭后会话锁随之释放
		l.logger.Warn("Failed to release advisory lock", zap.String("key", key), zap.Error(err))
	}
}
