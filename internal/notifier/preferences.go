package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/repository"
	"gasguard/internal/store"

	"go.uber.org/zap"
)

// PreferenceKeyPrefix 偏好缓存键前缀
const PreferenceKeyPrefix = "gasguard:pref:"

// PreferenceResolver 读取用户通知偏好
// - 无记录或查询失败时返回默认偏好（fail open）
// - 配置了 KV 时短期缓存，允许读到旧值
type PreferenceResolver struct {
	repo            repository.PreferencesRepository
	cache           store.KV
	ttl             time.Duration
	defaultCooldown int
	defaultMax      int
	logger          *zap.Logger
}

func NewPreferenceResolver(repo repository.PreferencesRepository, cache store.KV, ttl time.Duration, defaultCooldown, defaultMax int, logger *zap.Logger) *PreferenceResolver {
	return &PreferenceResolver{
		repo:            repo,
		cache:           cache,
		ttl:             ttl,
		defaultCooldown: defaultCooldown,
		defaultMax:      defaultMax,
		logger:          logger,
	}
}

// Defaults 指定用户的默认偏好
func (r *PreferenceResolver) Defaults(userID string) models.NotificationPreference {
	return models.DefaultPreference(userID, r.defaultCooldown, r.defaultMax)
}

// Resolve 返回用户偏好，永不失败
func (r *PreferenceResolver) Resolve(ctx context.Context, userID string) models.NotificationPreference {
	if r.cache != nil {
		if raw, err := r.cache.Get(ctx, PreferenceKeyPrefix+userID); err == nil {
			var p models.NotificationPreference
			if json.Unmarshal([]byte(raw), &p) == nil {
				return p
			}
		} else if !errors.Is(err, store.ErrMiss) {
			r.logger.Debug("Preference cache unavailable", zap.Error(err))
		}
	}

	pref, err := r.repo.GetPreference(ctx, userID)
	switch {
	case err == nil:
		r.store(ctx, *pref)
		return *pref
	case errors.Is(err, repository.ErrNotFound):
		p := r.Defaults(userID)
		r.store(ctx, p)
		return p
	default:
		r.logger.Warn("Failed to load notification settings, using defaults",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return r.Defaults(userID)
	}
}

// Invalidate 偏好更新后清除缓存
func (r *PreferenceResolver) Invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, PreferenceKeyPrefix+userID); err != nil {
		r.logger.Warn("Failed to invalidate preference cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func (r *PreferenceResolver) store(ctx context.Context, p models.NotificationPreference) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, PreferenceKeyPrefix+p.UserID, string(raw), r.ttl); err != nil {
		r.logger.Debug("Failed to cache notification settings", zap.Error(err))
	}
}
