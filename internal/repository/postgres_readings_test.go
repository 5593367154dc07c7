package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"gasguard/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockReadingsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresReadingsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresReadingsRepository(db, zap.NewNop())
}

func TestInsertReading_Success(t *testing.T) {
	db, mock, repo := setupMockReadingsDB(t)
	defer db.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO sensor_readings`).
		WithArgs("ESP32-01", "MQ2", "MQ2", 650.0, "ppm", "danger").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(42), createdAt))

	r := &models.Reading{DeviceID: "ESP32-01", SensorType: "MQ2", SensorName: "MQ2", Value: 650, Unit: "ppm", Severity: models.SeverityDanger}
	require.NoError(t, repo.InsertReading(context.Background(), r))
	assert.Equal(t, int64(42), r.ID)
	assert.Equal(t, createdAt, r.CreatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertReading_Error(t *testing.T) {
	db, mock, repo := setupMockReadingsDB(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO sensor_readings`).WillReturnError(errors.New("connection reset"))

	err := repo.InsertReading(context.Background(), &models.Reading{DeviceID: "ESP32-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert reading")
}

func TestListRecentReadings_NewestFirst(t *testing.T) {
	db, mock, repo := setupMockReadingsDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "device_id", "sensor_type", "sensor_name", "value", "unit", "severity", "created_at"}).
		AddRow(int64(3), "ESP32-01", "MQ2", "MQ2", 650.0, "ppm", "danger", now).
		AddRow(int64(2), "ESP32-01", "MQ2", "MQ2", 120.0, "ppm", "normal", now.Add(-time.Second))

	mock.ExpectQuery(`SELECT .* FROM sensor_readings WHERE device_id = \$1 AND sensor_type = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("ESP32-01", "MQ2", 4).
		WillReturnRows(rows)

	readings, err := repo.ListRecentReadings(context.Background(), "ESP32-01", "MQ2", 4)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.Equal(t, int64(3), readings[0].ID)
	assert.Equal(t, models.SeverityDanger, readings[0].Severity)
	assert.Equal(t, models.SeverityNormal, readings[1].Severity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListReadings_NoFiltersUsesDefaultLimit(t *testing.T) {
	db, mock, repo := setupMockReadingsDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM sensor_readings ORDER BY created_at DESC, id DESC LIMIT \$1`).
		WithArgs(DefaultListLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id", "device_id", "sensor_type", "sensor_name", "value", "unit", "severity", "created_at"}))

	readings, err := repo.ListReadings(context.Background(), ReadingFilters{})
	require.NoError(t, err)
	assert.Empty(t, readings)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountAndPruneReadings(t *testing.T) {
	db, mock, repo := setupMockReadingsDB(t)
	defer db.Close()
	ctx := context.Background()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM sensor_readings`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(53))
	mock.ExpectQuery(`SELECT id FROM sensor_readings ORDER BY created_at ASC, id ASC LIMIT \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))
	mock.ExpectExec(`DELETE FROM sensor_readings WHERE id = ANY\(\$1\)`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	count, err := repo.CountReadings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 53, count)

	ids, err := repo.ListOldestReadingIDs(ctx, count-50)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)

	deleted, err := repo.DeleteReadingsByIDs(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteReadingsByIDs_Empty(t *testing.T) {
	db, mock, repo := setupMockReadingsDB(t)
	defer db.Close()

	deleted, err := repo.DeleteReadingsByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
