package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"gasguard/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresReadingsRepository 读数仓库（PostgreSQL）
type PostgresReadingsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresReadingsRepository 创建读数仓库
func NewPostgresReadingsRepository(db *sql.DB, logger *zap.Logger) *PostgresReadingsRepository {
	return &PostgresReadingsRepository{db: db, logger: logger}
}

var _ ReadingsRepository = (*PostgresReadingsRepository)(nil)

const readingColumns = `id, device_id, sensor_type, sensor_name, value, unit, severity, created_at`

func (r *PostgresReadingsRepository) InsertReading(ctx context.Context, reading *models.Reading) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO sensor_readings (device_id, sensor_type, sensor_name, value, unit, severity)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		reading.DeviceID, reading.SensorType, reading.SensorName, reading.Value, reading.Unit, string(reading.Severity),
	).Scan(&reading.ID, &reading.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert reading: %w", err)
	}
	return nil
}

func (r *PostgresReadingsRepository) ListRecentReadings(ctx context.Context, deviceID, sensorType string, limit int) ([]models.Reading, error) {
	return r.ListReadings(ctx, ReadingFilters{DeviceID: deviceID, SensorType: sensorType, Limit: limit})
}

func (r *PostgresReadingsRepository) ListReadings(ctx context.Context, filters ReadingFilters) ([]models.Reading, error) {
	var where []string
	var args []interface{}
	if filters.DeviceID != "" {
		args = append(args, filters.DeviceID)
		where = append(where, fmt.Sprintf("device_id = $%d", len(args)))
	}
	if filters.SensorType != "" {
		args = append(args, filters.SensorType)
		where = append(where, fmt.Sprintf("sensor_type = $%d", len(args)))
	}

	query := `SELECT ` + readingColumns + ` FROM sensor_readings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, normalizeLimit(filters.Limit))
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []models.Reading
	for rows.Next() {
		var reading models.Reading
		var severity string
		if err := rows.Scan(
			&reading.ID, &reading.DeviceID, &reading.SensorType, &reading.SensorName,
			&reading.Value, &reading.Unit, &severity, &reading.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reading: %w", err)
		}
		reading.Severity = models.Severity(severity)
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate readings: %w", err)
	}
	return readings, nil
}

func (r *PostgresReadingsRepository) CountReadings(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sensor_readings`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count readings: %w", err)
	}
	return count, nil
}

func (r *PostgresReadingsRepository) ListOldestReadingIDs(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sensor_readings ORDER BY created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query oldest readings: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan reading id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PostgresReadingsRepository) DeleteReadingsByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM sensor_readings WHERE id = ANY($1)`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to delete readings: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}
