package store

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gasguard/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisKV(t *testing.T) {
	mr, client := setupRedis(t)
	kv := NewRedisKV(client)
	ctx := context.Background()

	_, err := kv.Get(ctx, "pref:u1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "pref:u1", `{"email_enabled":true}`, time.Minute))
	val, err := kv.Get(ctx, "pref:u1")
	require.NoError(t, err)
	assert.Equal(t, `{"email_enabled":true}`, val)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "pref:u1")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "pref:u2", "x", 0))
	require.NoError(t, kv.Del(ctx, "pref:u2"))
	_, err = kv.Get(ctx, "pref:u2")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "ESP32-01|ana@example.com")
	require.NoError(t, err)
	assert.True(t, mr.Exists(LockKeyPrefix+"ESP32-01|ana@example.com"))

	unlock()
	assert.False(t, mr.Exists(LockKeyPrefix+"ESP32-01|ana@example.com"))
}

func TestRedisLocker_ContentionTimesOut(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	locker.wait = 120 * time.Millisecond
	locker.retryDelay = 10 * time.Millisecond
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(ctx, "k")
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestRedisLocker_ReleaseDoesNotStealForeignLock(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, "k")
	require.NoError(t, err)

	// 锁过期后被另一个实例拿走
	mr.FastForward(6 * time.Second)
	require.NoError(t, mr.Set(LockKeyPrefix+"k", "other-owner"))

	unlock()
	got, err := mr.Get(LockKeyPrefix + "k")
	require.NoError(t, err)
	assert.Equal(t, "other-owner", got)
}

func TestRedisLocker_SerializesHolders(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewRedisLocker(client, 5*time.Second, zap.NewNop())
	locker.retryDelay = 5 * time.Millisecond

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestAuditStreamPublisher(t *testing.T) {
	_, client := setupRedis(t)
	p := NewAuditStreamPublisher(client, "notification:audit:stream")
	ctx := context.Background()

	require.NoError(t, p.EnsureConsumerGroup(ctx, "dashboard"))
	require.NoError(t, p.PublishAudit(ctx, models.NotificationAudit{
		Recipient: "ana@example.com",
		DeviceID:  "ESP32-01",
		Outcome:   models.OutcomeBlocked,
		Reason:    "quiet hours active",
	}))

	msgs, err := client.XRange(ctx, p.Stream(), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var audit models.NotificationAudit
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &audit))
	assert.Equal(t, models.OutcomeBlocked, audit.Outcome)
	assert.Equal(t, "quiet hours active", audit.Reason)
}
