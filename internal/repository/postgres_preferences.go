package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gasguard/internal/models"

	"go.uber.org/zap"
)

// PostgresPreferencesRepository 通知偏好仓库（PostgreSQL）
type PostgresPreferencesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPreferencesRepository 创建通知偏好仓库
func NewPostgresPreferencesRepository(db *sql.DB, logger *zap.Logger) *PostgresPreferencesRepository {
	return &PostgresPreferencesRepository{db: db, logger: logger}
}

var _ PreferencesRepository = (*PostgresPreferencesRepository)(nil)

func (r *PostgresPreferencesRepository) GetPreference(ctx context.Context, userID string) (*models.NotificationPreference, error) {
	var p models.NotificationPreference
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, email_enabled, email_cooldown_minutes, max_emails_per_hour, critical_only,
		       quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone, updated_at
		FROM user_notification_settings
		WHERE user_id = $1`, userID,
	).Scan(
		&p.UserID, &p.EmailEnabled, &p.CooldownMinutes, &p.MaxPerHour, &p.CriticalOnly,
		&p.QuietHoursEnabled, &p.QuietHoursStart, &p.QuietHoursEnd, &p.Timezone, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification settings for %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notification settings: %w", err)
	}
	return &p, nil
}

func (r *PostgresPreferencesRepository) UpsertPreference(ctx context.Context, p *models.NotificationPreference) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO user_notification_settings (
			user_id, email_enabled, email_cooldown_minutes, max_emails_per_hour, critical_only,
			quiet_hours_enabled, quiet_hours_start, quiet_hours_end, timezone, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			email_enabled = EXCLUDED.email_enabled,
			email_cooldown_minutes = EXCLUDED.email_cooldown_minutes,
			max_emails_per_hour = EXCLUDED.max_emails_per_hour,
			critical_only = EXCLUDED.critical_only,
			quiet_hours_enabled = EXCLUDED.quiet_hours_enabled,
			quiet_hours_start = EXCLUDED.quiet_hours_start,
			quiet_hours_end = EXCLUDED.quiet_hours_end,
			timezone = EXCLUDED.timezone,
			updated_at = NOW()
		RETURNING updated_at`,
		p.UserID, p.EmailEnabled, p.CooldownMinutes, p.MaxPerHour, p.CriticalOnly,
		p.QuietHoursEnabled, p.QuietHoursStart, p.QuietHoursEnd, p.Timezone,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert notification settings: %w", err)
	}
	return nil
}
