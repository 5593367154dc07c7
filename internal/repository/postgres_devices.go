package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gasguard/internal/models"

	"go.uber.org/zap"
)

// PostgresDevicesRepository 设备仓库（PostgreSQL）
type PostgresDevicesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresDevicesRepository 创建设备仓库
func NewPostgresDevicesRepository(db *sql.DB, logger *zap.Logger) *PostgresDevicesRepository {
	return &PostgresDevicesRepository{db: db, logger: logger}
}

var _ DevicesRepository = (*PostgresDevicesRepository)(nil)

// 认领者信息通过 LEFT JOIN users 获取
const deviceSelect = `
	SELECT d.device_id, d.name, d.claimed_by, d.ip_address, d.is_active, d.last_seen, d.created_at,
	       u.id, u.email, u.first_name, u.last_name
	FROM devices d
	LEFT JOIN users u ON u.id = d.claimed_by`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var claimedBy, userID, email, firstName, lastName sql.NullString
	var lastSeen sql.NullTime
	if err := row.Scan(
		&d.ID, &d.Name, &claimedBy, &d.IPAddress, &d.IsActive, &lastSeen, &d.CreatedAt,
		&userID, &email, &firstName, &lastName,
	); err != nil {
		return nil, err
	}
	if claimedBy.Valid {
		d.ClaimedBy = &claimedBy.String
	}
	if lastSeen.Valid {
		t := lastSeen.Time
		d.LastSeen = &t
	}
	if userID.Valid {
		d.Owner = &models.User{
			ID:        userID.String,
			Email:     email.String,
			FirstName: firstName.String,
			LastName:  lastName.String,
		}
	}
	return &d, nil
}

func (r *PostgresDevicesRepository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	d, err := scanDevice(r.db.QueryRowContext(ctx, deviceSelect+` WHERE d.device_id = $1`, deviceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return d, nil
}

func (r *PostgresDevicesRepository) TouchDevice(ctx context.Context, deviceID, ipAddress string, at time.Time) (*models.Device, error) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (device_id, name, ip_address, is_active, last_seen)
		VALUES ($1, $1, $2, TRUE, $3)
		ON CONFLICT (device_id) DO UPDATE SET
			ip_address = EXCLUDED.ip_address,
			is_active = TRUE,
			last_seen = EXCLUDED.last_seen`,
		deviceID, ipAddress, at,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update device heartbeat: %w", err)
	}
	return r.GetDevice(ctx, deviceID)
}

func (r *PostgresDevicesRepository) ListDevicesSeenSince(ctx context.Context, since time.Time) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, deviceSelect+`
		WHERE d.last_seen >= $1
		ORDER BY d.last_seen DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var devices []models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate devices: %w", err)
	}
	return devices, nil
}
