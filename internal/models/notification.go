package models

import (
	"time"

	"github.com/google/uuid"
)

// Outcome 通知决策结果
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeBlocked Outcome = "blocked"
)

// NotificationPreference 用户通知偏好（对应 user_notification_settings 表）
// 没有记录的用户与默认值行为一致
type NotificationPreference struct {
	UserID            string    `json:"user_id" db:"user_id"`
	EmailEnabled      bool      `json:"email_enabled" db:"email_enabled"`
	CooldownMinutes   int       `json:"email_cooldown_minutes" db:"email_cooldown_minutes"`
	MaxPerHour        int       `json:"max_emails_per_hour" db:"max_emails_per_hour"`
	CriticalOnly      bool      `json:"critical_only" db:"critical_only"`
	QuietHoursEnabled bool      `json:"quiet_hours_enabled" db:"quiet_hours_enabled"`
	QuietHoursStart   string    `json:"quiet_hours_start" db:"quiet_hours_start"` // HH:MM
	QuietHoursEnd     string    `json:"quiet_hours_end" db:"quiet_hours_end"`     // HH:MM
	Timezone          string    `json:"timezone,omitempty" db:"timezone"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

// 默认静默时段
const (
	DefaultQuietHoursStart = "22:00"
	DefaultQuietHoursEnd   = "07:00"
)

// DefaultPreference 默认通知偏好
func DefaultPreference(userID string, cooldownMinutes, maxPerHour int) NotificationPreference {
	return NotificationPreference{
		UserID:            userID,
		EmailEnabled:      true,
		CooldownMinutes:   cooldownMinutes,
		MaxPerHour:        maxPerHour,
		CriticalOnly:      false,
		QuietHoursEnabled: false,
		QuietHoursStart:   DefaultQuietHoursStart,
		QuietHoursEnd:     DefaultQuietHoursEnd,
	}
}

// NotificationAudit 通知审计记录（每次闸门决策一条，只增不改）
type NotificationAudit struct {
	ID               uuid.UUID `json:"id" db:"id"`
	Recipient        string    `json:"recipient" db:"recipient"`
	UserID           string    `json:"user_id,omitempty" db:"user_id"`
	DeviceID         string    `json:"device_id" db:"device_id"`
	SensorType       string    `json:"sensor_type" db:"sensor_type"`
	Subject          string    `json:"subject" db:"subject"`
	Body             string    `json:"body" db:"body"`
	Outcome          Outcome   `json:"estado" db:"outcome"`
	ReadingID        *int64    `json:"lectura_id,omitempty" db:"reading_id"`
	Severity         Severity  `json:"severity" db:"severity"`
	Reason           string    `json:"reason,omitempty" db:"reason"`
	ProviderResponse string    `json:"provider_response,omitempty" db:"provider_response"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// NotificationStats 通知统计
type NotificationStats struct {
	Total   int `json:"total"`
	Sent    int `json:"enviados"`
	Failed  int `json:"fallidos"`
	Blocked int `json:"bloqueados"`
	Today   int `json:"hoy"`
}
