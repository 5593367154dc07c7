package repository

import (
	"context"
	"errors"
	"time"

	"gasguard/internal/models"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("not found")

// ReadingFilters 读数查询条件
type ReadingFilters struct {
	DeviceID   string
	SensorType string
	Limit      int
}

// ReadingsRepository 传感器读数（sensor_readings）
type ReadingsRepository interface {
	// InsertReading 写入读数，回填 ID 与 CreatedAt
	InsertReading(ctx context.Context, r *models.Reading) error
	// ListRecentReadings 指定 (设备, 传感器类型) 的最近读数，按时间倒序
	ListRecentReadings(ctx context.Context, deviceID, sensorType string, limit int) ([]models.Reading, error)
	ListReadings(ctx context.Context, filters ReadingFilters) ([]models.Reading, error)
	CountReadings(ctx context.Context) (int, error)
	// ListOldestReadingIDs 最旧的 limit 条读数 ID
	ListOldestReadingIDs(ctx context.Context, limit int) ([]int64, error)
	DeleteReadingsByIDs(ctx context.Context, ids []int64) (int64, error)
}

// DevicesRepository 设备（devices，关联 users 获取认领者）
type DevicesRepository interface {
	GetDevice(ctx context.Context, deviceID string) (*models.Device, error)
	// TouchDevice 心跳：更新 last_seen/ip_address/is_active，设备不存在时自动注册
	TouchDevice(ctx context.Context, deviceID, ipAddress string, at time.Time) (*models.Device, error)
	// ListDevicesSeenSince 最近上报过心跳的设备
	ListDevicesSeenSince(ctx context.Context, since time.Time) ([]models.Device, error)
}

// PreferencesRepository 用户通知偏好（user_notification_settings）
type PreferencesRepository interface {
	GetPreference(ctx context.Context, userID string) (*models.NotificationPreference, error)
	UpsertPreference(ctx context.Context, p *models.NotificationPreference) error
}

// AuditKey 审计记录的结构化查询键
// SensorType 为空表示不区分传感器类型
type AuditKey struct {
	Recipient  string
	DeviceID   string
	SensorType string
}

// AuditFilters 审计历史查询条件
type AuditFilters struct {
	Recipient string
	DeviceID  string
	Outcome   models.Outcome // 为空表示全部
	Since     *time.Time
	Limit     int
}

// NotificationAuditRepository 通知审计记录（notification_audit，只增不改）
type NotificationAuditRepository interface {
	InsertAudit(ctx context.Context, a *models.NotificationAudit) error
	// LastSentAt 最近一次成功发送的时间，没有记录时返回 nil
	LastSentAt(ctx context.Context, key AuditKey) (*time.Time, error)
	// CountSentSince since 之后成功发送的条数
	CountSentSince(ctx context.Context, key AuditKey, since time.Time) (int, error)
	ListAudits(ctx context.Context, filters AuditFilters) ([]models.NotificationAudit, error)
	AuditStats(ctx context.Context, recipient string, dayStart time.Time) (models.NotificationStats, error)
}

// 默认/最大查询条数
const (
	DefaultListLimit = 50
	MaxListLimit     = 1000
)

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
