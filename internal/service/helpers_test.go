package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"gasguard/internal/evaluator"
	"gasguard/internal/models"
	"gasguard/internal/notifier"
	"gasguard/internal/repository"

	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingSender struct {
	mu   sync.Mutex
	sent []notifier.Message
}

func (s *countingSender) Send(_ context.Context, msg notifier.Message) notifier.SendResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, msg)
	return notifier.SendResult{Success: true, ProviderMessageID: "msg-1"}
}

func (s *countingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// pipeline 内存版完整流水线
type pipeline struct {
	store  *repository.MemoryStore
	clock  *fakeClock
	sender *countingSender
	ingest *IngestService
}

func newPipeline(t *testing.T, opts IngestOptions) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	clock := &fakeClock{now: t0}

	store := repository.NewMemoryStore()
	store.SetClock(clock.Now)
	store.PutUser(models.User{ID: "u1", Email: "ana@example.com", FirstName: "Ana"})
	owner := "u1"
	store.PutDevice(models.Device{ID: "ESP32-01", Name: "Cocina", ClaimedBy: &owner})
	store.PutDevice(models.Device{ID: "ESP32-02", Name: "Garaje"})

	classifier := evaluator.NewClassifier(nil)
	streaks := evaluator.NewStreakDetector(store, classifier, 3, logger)
	gate := notifier.NewGate(store, notifier.GateOptions{Now: clock.Now}, logger)
	prefs := notifier.NewPreferenceResolver(store, nil, 0, 5, 10, logger)
	sender := &countingSender{}
	dispatcher := notifier.NewDispatcher(gate, prefs, sender, store, notifier.NewLocalLocker(),
		notifier.DispatcherOptions{Now: clock.Now}, logger)
	pruner := NewPruner(store, nil, logger)

	return &pipeline{
		store:  store,
		clock:  clock,
		sender: sender,
		ingest: NewIngestService(store, store, classifier, streaks, dispatcher, pruner, nil, opts, logger),
	}
}

func gasReading(v float64) IngestRequest {
	return IngestRequest{
		DeviceID: "ESP32-01",
		Sensores: []models.SensorInput{{Tipo: "MQ2", Valor: &v, Unidad: "ppm", Nombre: "Gas cocina"}},
	}
}
