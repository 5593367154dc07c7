package notifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"gasguard/internal/models"
	"gasguard/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var base = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type failingAudits struct{}

func (failingAudits) LastSentAt(context.Context, repository.AuditKey) (*time.Time, error) {
	return nil, errors.New("connection refused")
}

func (failingAudits) CountSentSince(context.Context, repository.AuditKey, time.Time) (int, error) {
	return 0, errors.New("connection refused")
}

// failingCount 冷却查询正常，小时计数失败
type failingCount struct{ *repository.MemoryStore }

func (failingCount) CountSentSince(context.Context, repository.AuditKey, time.Time) (int, error) {
	return 0, errors.New("timeout")
}

func newTestGate(audits AuditLookup, now time.Time) *Gate {
	return NewGate(audits, GateOptions{Now: func() time.Time { return now }}, zap.NewNop())
}

func defaultPref() models.NotificationPreference {
	return models.DefaultPreference("u1", 5, 10)
}

func candidate(pref models.NotificationPreference) Candidate {
	return Candidate{
		Recipient:  "ana@example.com",
		DeviceID:   "ESP32-01",
		SensorType: "MQ2",
		Severity:   models.SeverityDanger,
		Preference: pref,
	}
}

func addSent(t *testing.T, store *repository.MemoryStore, sensorType string, at time.Time) {
	t.Helper()
	require.NoError(t, store.InsertAudit(context.Background(), &models.NotificationAudit{
		Recipient:  "ana@example.com",
		DeviceID:   "ESP32-01",
		SensorType: sensorType,
		Outcome:    models.OutcomeSent,
		CreatedAt:  at,
	}))
}

func TestGate_AllowsWithCleanHistory(t *testing.T) {
	g := newTestGate(repository.NewMemoryStore(), base)
	d := g.CanNotify(context.Background(), candidate(defaultPref()))
	assert.True(t, d.Allowed)
	assert.Empty(t, d.Reason)
}

func TestGate_DisabledTakesPrecedence(t *testing.T) {
	store := repository.NewMemoryStore()
	addSent(t, store, "MQ2", base.Add(-time.Minute))

	pref := defaultPref()
	pref.EmailEnabled = false
	pref.CriticalOnly = true
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "00:00"
	pref.QuietHoursEnd = "23:59"

	d := newTestGate(store, base).CanNotify(context.Background(), candidate(pref))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonDisabled, d.Reason)
}

func TestGate_CriticalOnly(t *testing.T) {
	g := newTestGate(repository.NewMemoryStore(), base)
	pref := defaultPref()
	pref.CriticalOnly = true

	c := candidate(pref)
	c.Severity = models.SeverityCaution
	d := g.CanNotify(context.Background(), c)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonCriticalOnly, d.Reason)

	c.Severity = models.SeverityDanger
	assert.True(t, g.CanNotify(context.Background(), c).Allowed)
}

func TestGate_QuietHoursBeforeCooldown(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "07:00"

	night := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	nightStore := repository.NewMemoryStore()
	addSent(t, nightStore, "MQ2", night.Add(-time.Minute))

	d := newTestGate(nightStore, night).CanNotify(context.Background(), candidate(pref))
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonQuietHours, d.Reason)

	// 白天不在静默时段，落到冷却规则
	dayStore := repository.NewMemoryStore()
	addSent(t, dayStore, "MQ2", base.Add(-time.Minute))

	d = newTestGate(dayStore, base).CanNotify(context.Background(), candidate(pref))
	assert.False(t, d.Allowed)
	assert.Contains(t, d.Reason, "cooldown active")
}

func TestGate_QuietHoursUsesPreferenceTimezone(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "22:00"
	pref.QuietHoursEnd = "07:00"
	pref.Timezone = "America/Mexico_City"

	// 04:30 UTC = 22:30 前一天（UTC-6）
	now := time.Date(2026, 3, 10, 4, 30, 0, 0, time.UTC)
	d := newTestGate(repository.NewMemoryStore(), now).CanNotify(context.Background(), candidate(pref))
	assert.Equal(t, ReasonQuietHours, d.Reason)

	// 14:00 UTC = 08:00 当地
	now = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	assert.True(t, newTestGate(repository.NewMemoryStore(), now).CanNotify(context.Background(), candidate(pref)).Allowed)
}

func TestGate_InvalidQuietHoursIgnored(t *testing.T) {
	pref := defaultPref()
	pref.QuietHoursEnabled = true
	pref.QuietHoursStart = "late"
	pref.QuietHoursEnd = "07:00"

	d := newTestGate(repository.NewMemoryStore(), base).CanNotify(context.Background(), candidate(pref))
	assert.True(t, d.Allowed)
}

func TestGate_CooldownMinutesRemaining(t *testing.T) {
	cases := []struct {
		name    string
		elapsed time.Duration
		want    string
	}{
		{"four minutes elapsed", 4 * time.Minute, "cooldown active (5 min), 1 minute(s) remaining"},
		{"59 seconds elapsed rounds up", 59 * time.Second, "cooldown active (5 min), 5 minute(s) remaining"},
		{"just sent", 0, "cooldown active (5 min), 5 minute(s) remaining"},
		{"one second left", 5*time.Minute - time.Second, "cooldown active (5 min), 1 minute(s) remaining"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := repository.NewMemoryStore()
			addSent(t, store, "MQ2", base.Add(-tc.elapsed))

			d := newTestGate(store, base).CanNotify(context.Background(), candidate(defaultPref()))
			assert.False(t, d.Allowed)
			assert.Equal(t, tc.want, d.Reason)
		})
	}
}

func TestGate_CooldownExpired(t *testing.T) {
	store := repository.NewMemoryStore()
	addSent(t, store, "MQ2", base.Add(-5*time.Minute))

	d := newTestGate(store, base).CanNotify(context.Background(), candidate(defaultPref()))
	assert.True(t, d.Allowed)
}

func TestGate_CooldownIgnoresBlockedAndFailed(t *testing.T) {
	store := repository.NewMemoryStore()
	for _, outcome := range []models.Outcome{models.OutcomeBlocked, models.OutcomeFailed} {
		require.NoError(t, store.InsertAudit(context.Background(), &models.NotificationAudit{
			Recipient: "ana@example.com", DeviceID: "ESP32-01", SensorType: "MQ2",
			Outcome: outcome, CreatedAt: base.Add(-time.Minute),
		}))
	}

	assert.True(t, newTestGate(store, base).CanNotify(context.Background(), candidate(defaultPref())).Allowed)
}

func TestGate_CooldownScope(t *testing.T) {
	store := repository.NewMemoryStore()
	addSent(t, store, "DHT11_temp", base.Add(-time.Minute))

	// 默认按设备：其他传感器的发送也会触发冷却
	d := newTestGate(store, base).CanNotify(context.Background(), candidate(defaultPref()))
	assert.False(t, d.Allowed)

	sensorGate := NewGate(store, GateOptions{SensorScoped: true, Now: func() time.Time { return base }}, zap.NewNop())
	assert.True(t, sensorGate.CanNotify(context.Background(), candidate(defaultPref())).Allowed)
}

func TestGate_HourlyCapBoundary(t *testing.T) {
	pref := defaultPref()
	pref.CooldownMinutes = 5
	pref.MaxPerHour = 4

	store := repository.NewMemoryStore()
	// maxPerHour-1 次发送，最近一次在冷却之外
	for i := 1; i <= 3; i++ {
		addSent(t, store, "MQ2", base.Add(-time.Duration(i*10)*time.Minute))
	}
	assert.True(t, newTestGate(store, base).CanNotify(context.Background(), candidate(pref)).Allowed)

	addSent(t, store, "MQ2", base.Add(-40*time.Minute))
	d := newTestGate(store, base).CanNotify(context.Background(), candidate(pref))
	assert.False(t, d.Allowed)
	assert.Equal(t, "hourly limit reached (4 per hour)", d.Reason)
}

func TestGate_HourlyCapTrailingWindow(t *testing.T) {
	pref := defaultPref()
	pref.MaxPerHour = 1

	store := repository.NewMemoryStore()
	addSent(t, store, "MQ2", base.Add(-61*time.Minute))
	assert.True(t, newTestGate(store, base).CanNotify(context.Background(), candidate(pref)).Allowed)
}

func TestGate_FailOpenOnLookupError(t *testing.T) {
	d := newTestGate(failingAudits{}, base).CanNotify(context.Background(), candidate(defaultPref()))
	assert.True(t, d.Allowed)

	d = newTestGate(failingCount{repository.NewMemoryStore()}, base).CanNotify(context.Background(), candidate(defaultPref()))
	assert.True(t, d.Allowed)
}

func TestGate_FailOpenDoesNotSkipPreferenceRules(t *testing.T) {
	pref := defaultPref()
	pref.EmailEnabled = false
	d := newTestGate(failingAudits{}, base).CanNotify(context.Background(), candidate(pref))
	assert.Equal(t, ReasonDisabled, d.Reason)
}
