package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	commonmqtt "gasguard/common/mqtt"
	"gasguard/internal/service"

	"go.uber.org/zap"
)

// Subscriber MQTT 订阅能力（common/mqtt.Client）
type Subscriber interface {
	Subscribe(topic string, qos byte, handler commonmqtt.MessageHandler) error
	Unsubscribe(topics ...string) error
}

var _ Subscriber = (*commonmqtt.Client)(nil)

// Ingester 读数接入（service.IngestService）
type Ingester interface {
	Ingest(ctx context.Context, req service.IngestRequest) (*service.IngestResult, error)
}

// ReadingsConsumer 通过 MQTT 接收设备读数
// 主题格式 gasguard/{device_id}/readings，负载与 POST /api/sensor/multi-data 相同
type ReadingsConsumer struct {
	subscriber Subscriber
	ingester   Ingester
	topic      string
	qos        byte
	timeout    time.Duration
	logger     *zap.Logger
}

func NewReadingsConsumer(subscriber Subscriber, ingester Ingester, topic string, qos byte, logger *zap.Logger) *ReadingsConsumer {
	return &ReadingsConsumer{
		subscriber: subscriber,
		ingester:   ingester,
		topic:      topic,
		qos:        qos,
		timeout:    10 * time.Second,
		logger:     logger,
	}
}

// Start 订阅主题
func (c *ReadingsConsumer) Start() error {
	if err := c.subscriber.Subscribe(c.topic, c.qos, c.HandleMessage); err != nil {
		return err
	}
	c.logger.Info("Subscribed to readings topic", zap.String("topic", c.topic))
	return nil
}

// Stop 取消订阅
func (c *ReadingsConsumer) Stop() error {
	return c.subscriber.Unsubscribe(c.topic)
}

// HandleMessage 解析一条读数消息并接入
func (c *ReadingsConsumer) HandleMessage(topic string, payload []byte) error {
	var req service.IngestRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return fmt.Errorf("failed to unmarshal readings payload: %w", err)
	}

	topicDevice := DeviceIDFromTopic(topic)
	switch {
	case req.DeviceID == "":
		req.DeviceID = topicDevice
	case topicDevice != "" && req.DeviceID != topicDevice:
		return fmt.Errorf("device_id %q does not match topic %q", req.DeviceID, topic)
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	result, err := c.ingester.Ingest(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to ingest readings from %s: %w", topic, err)
	}
	c.logger.Debug("Readings ingested via MQTT",
		zap.String("device_id", result.DeviceID),
		zap.Int("saved", result.Saved),
		zap.Int("alerts", result.Alerts),
	)
	return nil
}

// DeviceIDFromTopic 从 gasguard/{device_id}/readings 中取设备 ID，格式不符时返回空
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[2] != "readings" || parts[1] == "" || parts[1] == "+" {
		return ""
	}
	return parts[1]
}
