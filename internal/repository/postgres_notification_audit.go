package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gasguard/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PostgresNotificationAuditRepository 通知审计仓库（PostgreSQL）
// 只提供插入与查询：审计记录从不更新、从不删除
type PostgresNotificationAuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresNotificationAuditRepository 创建通知审计仓库
func NewPostgresNotificationAuditRepository(db *sql.DB, logger *zap.Logger) *PostgresNotificationAuditRepository {
	return &PostgresNotificationAuditRepository{db: db, logger: logger}
}

var _ NotificationAuditRepository = (*PostgresNotificationAuditRepository)(nil)

func (r *PostgresNotificationAuditRepository) InsertAudit(ctx context.Context, a *models.NotificationAudit) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	var userID sql.NullString
	if a.UserID != "" {
		userID = sql.NullString{String: a.UserID, Valid: true}
	}
	var readingID sql.NullInt64
	if a.ReadingID != nil {
		readingID = sql.NullInt64{Int64: *a.ReadingID, Valid: true}
	}
	// 闸门用应用时钟比较冷却窗口，写入时沿用调用方的时间戳
	var createdAt sql.NullTime
	if !a.CreatedAt.IsZero() {
		createdAt = sql.NullTime{Time: a.CreatedAt, Valid: true}
	}

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO notification_audit (
			id, recipient, user_id, device_id, sensor_type, subject, body,
			outcome, reading_id, severity, reason, provider_response, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, COALESCE($13::timestamptz, NOW()))
		RETURNING created_at`,
		a.ID, a.Recipient, userID, a.DeviceID, a.SensorType, a.Subject, a.Body,
		string(a.Outcome), readingID, string(a.Severity), a.Reason, a.ProviderResponse, createdAt,
	).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert notification audit: %w", err)
	}
	return nil
}

// keyWhere 结构化键条件（等值匹配），返回 WHERE 片段与参数
func keyWhere(key AuditKey, args []interface{}) (string, []interface{}) {
	args = append(args, key.Recipient, key.DeviceID, string(models.OutcomeSent))
	where := fmt.Sprintf("recipient = $%d AND device_id = $%d AND outcome = $%d", len(args)-2, len(args)-1, len(args))
	if key.SensorType != "" {
		args = append(args, key.SensorType)
		where += fmt.Sprintf(" AND sensor_type = $%d", len(args))
	}
	return where, args
}

func (r *PostgresNotificationAuditRepository) LastSentAt(ctx context.Context, key AuditKey) (*time.Time, error) {
	where, args := keyWhere(key, nil)
	var last sql.NullTime
	if err := r.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM notification_audit WHERE `+where, args...,
	).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to query last sent notification: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	t := last.Time
	return &t, nil
}

func (r *PostgresNotificationAuditRepository) CountSentSince(ctx context.Context, key AuditKey, since time.Time) (int, error) {
	where, args := keyWhere(key, nil)
	args = append(args, since)
	var count int
	if err := r.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM notification_audit WHERE %s AND created_at >= $%d`, where, len(args)),
		args...,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sent notifications: %w", err)
	}
	return count, nil
}

func (r *PostgresNotificationAuditRepository) ListAudits(ctx context.Context, filters AuditFilters) ([]models.NotificationAudit, error) {
	var where []string
	var args []interface{}
	if filters.Recipient != "" {
		args = append(args, filters.Recipient)
		where = append(where, fmt.Sprintf("recipient = $%d", len(args)))
	}
	if filters.DeviceID != "" {
		args = append(args, filters.DeviceID)
		where = append(where, fmt.Sprintf("device_id = $%d", len(args)))
	}
	if filters.Outcome != "" {
		args = append(args, string(filters.Outcome))
		where = append(where, fmt.Sprintf("outcome = $%d", len(args)))
	}
	if filters.Since != nil {
		args = append(args, *filters.Since)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}

	query := `
		SELECT id, recipient, user_id, device_id, sensor_type, subject, body,
		       outcome, reading_id, severity, reason, provider_response, created_at
		FROM notification_audit`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(filters.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query notification audit: %w", err)
	}
	defer rows.Close()

	var audits []models.NotificationAudit
	for rows.Next() {
		var a models.NotificationAudit
		var userID sql.NullString
		var readingID sql.NullInt64
		var outcome, severity string
		if err := rows.Scan(
			&a.ID, &a.Recipient, &userID, &a.DeviceID, &a.SensorType, &a.Subject, &a.Body,
			&outcome, &readingID, &severity, &a.Reason, &a.ProviderResponse, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification audit: %w", err)
		}
		a.UserID = userID.String
		if readingID.Valid {
			id := readingID.Int64
			a.ReadingID = &id
		}
		a.Outcome = models.Outcome(outcome)
		a.Severity = models.Severity(severity)
		audits = append(audits, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification audit: %w", err)
	}
	return audits, nil
}

func (r *PostgresNotificationAuditRepository) AuditStats(ctx context.Context, recipient string, dayStart time.Time) (models.NotificationStats, error) {
	var s models.NotificationStats
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE outcome = 'sent'),
		       COUNT(*) FILTER (WHERE outcome = 'failed'),
		       COUNT(*) FILTER (WHERE outcome = 'blocked'),
		       COUNT(*) FILTER (WHERE created_at >= $2)
		FROM notification_audit
		WHERE recipient = $1`, recipient, dayStart,
	).Scan(&s.Total, &s.Sent, &s.Failed, &s.Blocked, &s.Today)
	if err != nil {
		return s, fmt.Errorf("failed to query notification stats: %w", err)
	}
	return s, nil
}
