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

var preferenceColumns = []string{
	"user_id", "email_enabled", "email_cooldown_minutes", "max_emails_per_hour", "critical_only",
	"quiet_hours_enabled", "quiet_hours_start", "quiet_hours_end", "timezone", "updated_at",
}

func setupMockPreferencesDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *PostgresPreferencesRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	return db, mock, NewPostgresPreferencesRepository(db, zap.NewNop())
}

func TestGetPreference_Found(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM user_notification_settings`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(preferenceColumns).
			AddRow("u1", true, 15, 4, true, true, "23:00", "06:30", "America/Lima", updated))

	p, err := repo.GetPreference(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 15, p.CooldownMinutes)
	assert.Equal(t, 4, p.MaxPerHour)
	assert.True(t, p.CriticalOnly)
	assert.Equal(t, "23:00", p.QuietHoursStart)
	assert.Equal(t, "America/Lima", p.Timezone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPreference_NotFound(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM user_notification_settings`).
		WithArgs("u2").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetPreference(context.Background(), "u2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetPreference_QueryError(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	mock.ExpectQuery(`FROM user_notification_settings`).
		WithArgs("u1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetPreference(context.Background(), "u1")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Contains(t, err.Error(), "failed to get notification settings")
}

func TestUpsertPreference(t *testing.T) {
	db, mock, repo := setupMockPreferencesDB(t)
	defer db.Close()

	p := models.DefaultPreference("u1", 5, 10)
	updated := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`INSERT INTO user_notification_settings`).
		WithArgs("u1", true, 5, 10, false, false, models.DefaultQuietHoursStart, models.DefaultQuietHoursEnd, "").
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updated))

	require.NoError(t, repo.UpsertPreference(context.Background(), &p))
	assert.Equal(t, updated, p.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
