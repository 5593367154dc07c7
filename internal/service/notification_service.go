package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/notifier"
	"gasguard/internal/repository"

	"go.uber.org/zap"
)

// 偏好取值范围
const (
	MinCooldownMinutes = 5
	MaxCooldownMinutes = 120
	MinMaxPerHour      = 1
	MaxMaxPerHour      = 10
)

// 历史查询默认值
const (
	defaultHistoryLimit = 20
	defaultHistoryDays  = 7
)

// Principal 请求方身份（由上游网关注入）
type Principal struct {
	UserID string
	Email  string
}

// PreferenceCache 偏好缓存失效（notifier.PreferenceResolver）
type PreferenceCache interface {
	Defaults(userID string) models.NotificationPreference
	Invalidate(ctx context.Context, userID string)
}

var _ PreferenceCache = (*notifier.PreferenceResolver)(nil)

// NotificationService 通知历史与偏好设置
type NotificationService struct {
	audits repository.NotificationAuditRepository
	prefs  repository.PreferencesRepository
	cache  PreferenceCache
	loc    *time.Location
	now    func() time.Time
	logger *zap.Logger
}

func NewNotificationService(audits repository.NotificationAuditRepository, prefs repository.PreferencesRepository, cache PreferenceCache, loc *time.Location, logger *zap.Logger) *NotificationService {
	if loc == nil {
		loc = time.UTC
	}
	return &NotificationService{
		audits: audits,
		prefs:  prefs,
		cache:  cache,
		loc:    loc,
		now:    time.Now,
		logger: logger,
	}
}

// HistoryRequest 通知历史查询
type HistoryRequest struct {
	Limit  int    // 默认 20
	Estado string // sent/failed/blocked，兼容 enviado/fallido/bloqueado
	Dias   int    // 默认 7
}

// HistoryResponse 通知历史
type HistoryResponse struct {
	Items   []models.NotificationAudit `json:"historial"`
	Stats   models.NotificationStats   `json:"estadisticas"`
	Periodo string                     `json:"periodo"`
}

// ParseOutcome 解析结果过滤参数，空字符串表示不过滤
func ParseOutcome(s string) (models.Outcome, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "sent", "enviado":
		return models.OutcomeSent, nil
	case "failed", "fallido":
		return models.OutcomeFailed, nil
	case "blocked", "bloqueado":
		return models.OutcomeBlocked, nil
	default:
		return "", fmt.Errorf("%w: unknown estado %q", ErrInvalidInput, s)
	}
}

// History 当前用户作为接收人的审计记录与统计
func (s *NotificationService) History(ctx context.Context, p Principal, req HistoryRequest) (*HistoryResponse, error) {
	if p.Email == "" {
		return nil, fmt.Errorf("%w: recipient email is required", ErrInvalidInput)
	}
	outcome, err := ParseOutcome(req.Estado)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	days := req.Dias
	if days <= 0 {
		days = defaultHistoryDays
	}

	now := s.now().In(s.loc)
	since := now.AddDate(0, 0, -days)
	items, err := s.audits.ListAudits(ctx, repository.AuditFilters{
		Recipient: p.Email,
		Outcome:   outcome,
		Since:     &since,
		Limit:     limit,
	})
	if err != nil {
		s.logger.Error("ListAudits failed", zap.String("recipient", p.Email), zap.Error(err))
		return nil, fmt.Errorf("failed to list notification history: %w", err)
	}

	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	stats, err := s.audits.AuditStats(ctx, p.Email, dayStart)
	if err != nil {
		s.logger.Error("AuditStats failed", zap.String("recipient", p.Email), zap.Error(err))
		return nil, fmt.Errorf("failed to load notification stats: %w", err)
	}

	if items == nil {
		items = []models.NotificationAudit{}
	}
	return &HistoryResponse{
		Items:   items,
		Stats:   stats,
		Periodo: fmt.Sprintf("Últimos %d días", days),
	}, nil
}

// GetSettings 当前用户的偏好；没有记录时返回默认值
func (s *NotificationService) GetSettings(ctx context.Context, p Principal) (models.NotificationPreference, error) {
	if p.UserID == "" {
		return models.NotificationPreference{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	pref, err := s.prefs.GetPreference(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.cache.Defaults(p.UserID), nil
		}
		return models.NotificationPreference{}, fmt.Errorf("failed to load notification settings: %w", err)
	}
	return *pref, nil
}

// SettingsUpdate 偏好更新；未提供的字段取默认值
type SettingsUpdate struct {
	EmailEnabled      *bool   `json:"email_enabled"`
	CooldownMinutes   *int    `json:"email_cooldown_minutes"`
	MaxPerHour        *int    `json:"max_emails_per_hour"`
	CriticalOnly      *bool   `json:"critical_only"`
	QuietHoursEnabled *bool   `json:"quiet_hours_enabled"`
	QuietHoursStart   *string `json:"quiet_hours_start"`
	QuietHoursEnd     *string `json:"quiet_hours_end"`
	Timezone          *string `json:"timezone"`
}

// Validate 校验取值范围
func (u SettingsUpdate) Validate() error {
	if u.CooldownMinutes != nil && (*u.CooldownMinutes < MinCooldownMinutes || *u.CooldownMinutes > MaxCooldownMinutes) {
		return fmt.Errorf("%w: email_cooldown_minutes must be between %d and %d", ErrInvalidInput, MinCooldownMinutes, MaxCooldownMinutes)
	}
	if u.MaxPerHour != nil && (*u.MaxPerHour < MinMaxPerHour || *u.MaxPerHour > MaxMaxPerHour) {
		return fmt.Errorf("%w: max_emails_per_hour must be between %d and %d", ErrInvalidInput, MinMaxPerHour, MaxMaxPerHour)
	}
	for field, v := range map[string]*string{"quiet_hours_start": u.QuietHoursStart, "quiet_hours_end": u.QuietHoursEnd} {
		if v == nil {
			continue
		}
		if _, err := notifier.ParseClock(*v); err != nil {
			return fmt.Errorf("%w: %s must be HH:MM", ErrInvalidInput, field)
		}
	}
	if u.Timezone != nil && *u.Timezone != "" {
		if _, err := time.LoadLocation(*u.Timezone); err != nil {
			return fmt.Errorf("%w: unknown timezone %q", ErrInvalidInput, *u.Timezone)
		}
	}
	return nil
}

// UpdateSettings 校验并保存偏好，随后清除缓存
func (s *NotificationService) UpdateSettings(ctx context.Context, p Principal, u SettingsUpdate) (models.NotificationPreference, error) {
	if p.UserID == "" {
		return models.NotificationPreference{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if err := u.Validate(); err != nil {
		return models.NotificationPreference{}, err
	}

	pref := s.cache.Defaults(p.UserID)
	if u.EmailEnabled != nil {
		pref.EmailEnabled = *u.EmailEnabled
	}
	if u.CooldownMinutes != nil {
		pref.CooldownMinutes = *u.CooldownMinutes
	}
	if u.MaxPerHour != nil {
		pref.MaxPerHour = *u.MaxPerHour
	}
	if u.CriticalOnly != nil {
		pref.CriticalOnly = *u.CriticalOnly
	}
	if u.QuietHoursEnabled != nil {
		pref.QuietHoursEnabled = *u.QuietHoursEnabled
	}
	if u.QuietHoursStart != nil {
		pref.QuietHoursStart = strings.TrimSpace(*u.QuietHoursStart)
	}
	if u.QuietHoursEnd != nil {
		pref.QuietHoursEnd = strings.TrimSpace(*u.QuietHoursEnd)
	}
	if u.Timezone != nil {
		pref.Timezone = *u.Timezone
	}

	if err := s.prefs.UpsertPreference(ctx, &pref); err != nil {
		s.logger.Error("UpsertPreference failed", zap.String("user_id", p.UserID), zap.Error(err))
		return models.NotificationPreference{}, fmt.Errorf("failed to save notification settings: %w", err)
	}
	s.cache.Invalidate(ctx, p.UserID)
	return pref, nil
}

// ExportAudits 导出审计记录（不分页，上限 repository.MaxListLimit）
func (s *NotificationService) ExportAudits(ctx context.Context, p Principal, req HistoryRequest) ([]models.NotificationAudit, error) {
	req.Limit = repository.MaxListLimit
	if req.Dias <= 0 {
		req.Dias = 30
	}
	resp, err := s.History(ctx, p, req)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}
