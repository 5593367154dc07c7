package redis

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestPublishJSONToStream(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	id, err := PublishJSONToStream(ctx, client, "test:stream", map[string]string{"device_id": "ESP32-01"}, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs, err := client.XRange(ctx, "test:stream", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &payload))
	assert.Equal(t, "ESP32-01", payload["device_id"])
}

func TestCreateConsumerGroup_Idempotent(t *testing.T) {
	_, client := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, CreateConsumerGroup(ctx, client, "test:stream", "dashboard"))
	// 第二次创建：组已存在，不应报错
	require.NoError(t, CreateConsumerGroup(ctx, client, "test:stream", "dashboard"))

	_, err := client.XAdd(ctx, &redis.XAddArgs{Stream: "test:stream", Values: map[string]interface{}{"k": "v"}}).Result()
	require.NoError(t, err)

	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    "dashboard",
		Consumer: "c1",
		Streams:  []string{"test:stream", ">"},
		Count:    10,
		Block:    -1,
	}).Result()
	require.NoError(t, err)
	require.Len(t, streams, 1)
	assert.Len(t, streams[0].Messages, 1)
}
