package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"gasguard/internal/evaluator"
	"gasguard/internal/models"
	"gasguard/internal/notifier"
	"gasguard/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func audits(t *testing.T, store *repository.MemoryStore, outcome models.Outcome) []models.NotificationAudit {
	t.Helper()
	out, err := store.ListAudits(context.Background(), repository.AuditFilters{Outcome: outcome, Limit: 100})
	require.NoError(t, err)
	return out
}

func TestIngest_GasScenarioEndToEnd(t *testing.T) {
	p := newPipeline(t, IngestOptions{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p.clock.Set(t0.Add(time.Duration(i) * 10 * time.Second))
		res, err := p.ingest.Ingest(ctx, gasReading(650))
		require.NoError(t, err)
		assert.Equal(t, 1, res.Alerts)
		assert.Equal(t, models.SeverityDanger, res.Readings[0].Severity)
	}

	sent := audits(t, p.store, models.OutcomeSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@example.com", sent[0].Recipient)
	assert.Equal(t, models.SeverityDanger, sent[0].Severity)
	assert.Contains(t, sent[0].Subject, "ALERTA CRÍTICA Gas inflamable")
	require.NotNil(t, sent[0].ReadingID)
	assert.Equal(t, int64(3), *sent[0].ReadingID)
	assert.Empty(t, audits(t, p.store, models.OutcomeBlocked))

	p.clock.Set(t0.Add(80 * time.Second))
	_, err := p.ingest.Ingest(ctx, gasReading(700))
	require.NoError(t, err)

	blocked := audits(t, p.store, models.OutcomeBlocked)
	require.Len(t, blocked, 1)
	assert.Contains(t, blocked[0].Reason, "cooldown active (5 min)")
	assert.Len(t, audits(t, p.store, models.OutcomeSent), 1)
	assert.Equal(t, 1, p.sender.count())
}

func TestIngest_NormalReadingBreaksStreak(t *testing.T) {
	p := newPipeline(t, IngestOptions{})
	ctx := context.Background()

	for _, v := range []float64{650, 650, 120, 650, 650} {
		_, err := p.ingest.Ingest(ctx, gasReading(v))
		require.NoError(t, err)
	}
	assert.Zero(t, p.sender.count())
	assert.Empty(t, audits(t, p.store, ""))
}

func TestIngest_UnclaimedDeviceNeverNotifies(t *testing.T) {
	p := newPipeline(t, IngestOptions{})
	for i := 0; i < 5; i++ {
		req := gasReading(900)
		req.DeviceID = "ESP32-02"
		_, err := p.ingest.Ingest(context.Background(), req)
		require.NoError(t, err)
	}
	assert.Zero(t, p.sender.count())
	assert.Empty(t, audits(t, p.store, ""))
}

func TestIngest_Validation(t *testing.T) {
	p := newPipeline(t, IngestOptions{})
	ctx := context.Background()

	_, err := p.ingest.Ingest(ctx, IngestRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.ingest.Ingest(ctx, IngestRequest{DeviceID: "ESP32-01"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = p.ingest.Ingest(ctx, IngestRequest{DeviceID: "ESP32-01", Sensores: []models.SensorInput{{Tipo: "MQ2"}}})
	assert.ErrorIs(t, err, ErrInvalidInput)

	req := gasReading(10)
	req.DeviceID = "NOPE"
	_, err = p.ingest.Ingest(ctx, req)
	assert.ErrorIs(t, err, ErrUnknownDevice)

	n, err := p.store.CountReadings(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing persisted on invalid input")
}

func TestIngest_MergesBothSensorLists(t *testing.T) {
	p := newPipeline(t, IngestOptions{})
	temp, hum := 24.5, 40.0
	res, err := p.ingest.Ingest(context.Background(), IngestRequest{
		DeviceID:       "ESP32-01",
		Sensores:       []models.SensorInput{{Tipo: "DHT11_temp", Valor: &temp, Unidad: "°C"}},
		SensorReadings: []models.SensorInput{{Type: "DHT11_hum", Value: &hum, Unit: "%"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Saved)
	assert.Zero(t, res.Alerts)
	assert.Equal(t, "DHT11_temp", res.Readings[0].SensorName)
}

type failingReadings struct{ *repository.MemoryStore }

func (failingReadings) InsertReading(context.Context, *models.Reading) error {
	return errors.New("connection refused")
}

func TestIngest_PersistFailureIsError(t *testing.T) {
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	store.PutDevice(models.Device{ID: "ESP32-01"})
	classifier := evaluator.NewClassifier(nil)
	svc := NewIngestService(failingReadings{store}, store, classifier,
		evaluator.NewStreakDetector(store, classifier, 3, logger), nil, nil, nil, IngestOptions{}, logger)

	_, err := svc.Ingest(context.Background(), gasReading(10))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidInput)
}

// blockingNotifier 在 release 关闭前阻塞
type blockingNotifier struct {
	release chan struct{}
	calls   chan notifier.Alert
}

func (b *blockingNotifier) Notify(_ context.Context, a notifier.Alert) models.Outcome {
	b.calls <- a
	<-b.release
	return models.OutcomeSent
}

func TestIngest_AsyncRespondsBeforeNotify(t *testing.T) {
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	store.PutUser(models.User{ID: "u1", Email: "ana@example.com"})
	owner := "u1"
	store.PutDevice(models.Device{ID: "ESP32-01", ClaimedBy: &owner})

	classifier := evaluator.NewClassifier(nil)
	n := &blockingNotifier{release: make(chan struct{}), calls: make(chan notifier.Alert, 1)}
	svc := NewIngestService(store, store, classifier, evaluator.NewStreakDetector(store, classifier, 1, logger),
		n, nil, nil, IngestOptions{NotifyAsync: true}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	res, err := svc.Ingest(ctx, gasReading(650))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Saved)
	cancel()

	select {
	case a := <-n.calls:
		assert.Equal(t, "ana@example.com", a.Recipient.Email)
		assert.Equal(t, models.KindGas, a.Kind)
		assert.Equal(t, 1, a.ConsecutiveAlerts)
	case <-time.After(time.Second):
		t.Fatal("notification pipeline did not run")
	}

	shortCtx, shortCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer shortCancel()
	assert.Error(t, svc.Shutdown(shortCtx))

	close(n.release)
	require.NoError(t, svc.Shutdown(context.Background()))
}

func TestIngestLegacyGas(t *testing.T) {
	p := newPipeline(t, IngestOptions{})
	ctx := context.Background()

	_, err := p.ingest.IngestLegacyGas(ctx, LegacyGasRequest{})
	assert.ErrorIs(t, err, ErrInvalidInput)

	v := 75.0
	r, err := p.ingest.IngestLegacyGas(ctx, LegacyGasRequest{ValorPPM: &v})
	require.NoError(t, err)
	assert.Equal(t, LegacyDeviceID, r.DeviceID)
	assert.Equal(t, models.SeverityCaution, r.Severity)
	assert.Equal(t, "Sensor Principal", r.SensorName)

	v = 91
	for i := 0; i < 3; i++ {
		r, err = p.ingest.IngestLegacyGas(ctx, LegacyGasRequest{ValorPPM: &v, DeviceID: "ESP32-01"})
		require.NoError(t, err)
	}
	assert.Equal(t, models.SeverityDanger, r.Severity)
	assert.Equal(t, 1, p.sender.count())

	_, err = p.ingest.IngestLegacyGas(ctx, LegacyGasRequest{ValorPPM: &v, DeviceID: "NOPE"})
	assert.ErrorIs(t, err, ErrUnknownDevice)
}

func TestIngest_ProbabilisticPrune(t *testing.T) {
	p := newPipeline(t, IngestOptions{MaxReadings: 2, PruneProbability: 0.5, Rand: func() float64 { return 0.9 }})
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := p.ingest.Ingest(ctx, gasReading(10))
		require.NoError(t, err)
	}
	n, _ := p.store.CountReadings(ctx)
	assert.Equal(t, 4, n, "roll above probability skips pruning")

	p.ingest.opts.Rand = func() float64 { return 0.1 }
	_, err := p.ingest.Ingest(ctx, gasReading(10))
	require.NoError(t, err)
	n, _ = p.store.CountReadings(ctx)
	assert.Equal(t, 2, n)
}
