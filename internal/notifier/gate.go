package notifier

import (
	"context"
	"fmt"
	"math"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/repository"

	"go.uber.org/zap"
)

// 闸门拦截原因
const (
	ReasonDisabled     = "disabled by recipient"
	ReasonCriticalOnly = "critical-only: severity below danger"
	ReasonQuietHours   = "quiet hours active"
)

// AuditLookup 闸门需要的审计查询（审计表是冷却与小时上限的唯一依据）
type AuditLookup interface {
	LastSentAt(ctx context.Context, key repository.AuditKey) (*time.Time, error)
	CountSentSince(ctx context.Context, key repository.AuditKey, since time.Time) (int, error)
}

// Candidate 待决策的通知
type Candidate struct {
	Recipient  string
	DeviceID   string
	SensorType string
	Severity   models.Severity
	Preference models.NotificationPreference
}

// Decision 闸门决策
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func block(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// GateOptions 闸门配置
type GateOptions struct {
	// SensorScoped 为 true 时冷却/上限按 (接收人, 设备, 传感器类型) 统计
	SensorScoped bool
	// Location 偏好未设置时区时使用的默认时区
	Location *time.Location
	Now      func() time.Time
}

// Gate 通知闸门
// 检查顺序（首个失败即返回）：关闭 → 仅严重 → 静默时段 → 冷却 → 小时上限
// 任何查询失败均放行（fail open）
type Gate struct {
	audits       AuditLookup
	sensorScoped bool
	loc          *time.Location
	now          func() time.Time
	logger       *zap.Logger
}

func NewGate(audits AuditLookup, opts GateOptions, logger *zap.Logger) *Gate {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Gate{
		audits:       audits,
		sensorScoped: opts.SensorScoped,
		loc:          opts.Location,
		now:          opts.Now,
		logger:       logger,
	}
}

// Key 候选通知对应的审计查询键
func (g *Gate) Key(c Candidate) repository.AuditKey {
	key := repository.AuditKey{Recipient: c.Recipient, DeviceID: c.DeviceID}
	if g.sensorScoped {
		key.SensorType = c.SensorType
	}
	return key
}

// CanNotify 判断候选通知此刻能否发送
func (g *Gate) CanNotify(ctx context.Context, c Candidate) Decision {
	pref := c.Preference
	now := g.now()

	if !pref.EmailEnabled {
		return block(ReasonDisabled)
	}

	if pref.CriticalOnly && c.Severity.Rank() < models.SeverityDanger.Rank() {
		return block(ReasonCriticalOnly)
	}

	if pref.QuietHoursEnabled {
		quiet, err := InQuietHours(now, pref.QuietHoursStart, pref.QuietHoursEnd, g.location(pref))
		if err != nil {
			g.logger.Warn("Invalid quiet hours, ignoring",
				zap.String("recipient", c.Recipient),
				zap.String("start", pref.QuietHoursStart),
				zap.String("end", pref.QuietHoursEnd),
				zap.Error(err),
			)
		} else if quiet {
			return block(ReasonQuietHours)
		}
	}

	key := g.Key(c)

	if pref.CooldownMinutes > 0 {
		last, err := g.audits.LastSentAt(ctx, key)
		if err != nil {
			g.failOpen("cooldown", c, err)
			return allow()
		}
		if last != nil {
			cooldown := time.Duration(pref.CooldownMinutes) * time.Minute
			if now.Sub(*last) < cooldown {
				remaining := int(math.Ceil(last.Add(cooldown).Sub(now).Minutes()))
				return block(fmt.Sprintf("cooldown active (%d min), %d minute(s) remaining", pref.CooldownMinutes, remaining))
			}
		}
	}

	if pref.MaxPerHour > 0 {
		count, err := g.audits.CountSentSince(ctx, key, now.Add(-time.Hour))
		if err != nil {
			g.failOpen("hourly cap", c, err)
			return allow()
		}
		if count >= pref.MaxPerHour {
			return block(fmt.Sprintf("hourly limit reached (%d per hour)", pref.MaxPerHour))
		}
	}

	return allow()
}

// location 偏好中的时区优先，无法解析时使用默认时区
func (g *Gate) location(pref models.NotificationPreference) *time.Location {
	if pref.Timezone == "" {
		return g.loc
	}
	loc, err := time.LoadLocation(pref.Timezone)
	if err != nil {
		return g.loc
	}
	return loc
}

func (g *Gate) failOpen(check string, c Candidate, err error) {
	g.logger.Warn("Notification gate lookup failed, allowing",
		zap.String("check", check),
		zap.String("recipient", c.Recipient),
		zap.String("device_id", c.DeviceID),
		zap.Error(err),
	)
}
