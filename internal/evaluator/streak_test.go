package evaluator

import (
	"context"
	"errors"
	"testing"
	"time"

	"gasguard/internal/models"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// fakeHistory 按插入顺序保存读数，查询时倒序返回
type fakeHistory struct {
	readings []models.Reading
	err      error
	lastN    int
}

func (f *fakeHistory) add(sensorType string, values ...float64) {
	for _, v := range values {
		f.readings = append(f.readings, models.Reading{
			DeviceID:   "ESP32-01",
			SensorType: sensorType,
			Value:      v,
			CreatedAt:  time.Now(),
		})
	}
}

func (f *fakeHistory) ListRecentReadings(_ context.Context, deviceID, sensorType string, limit int) ([]models.Reading, error) {
	f.lastN = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []models.Reading
	for i := len(f.readings) - 1; i >= 0 && len(out) < limit; i-- {
		r := f.readings[i]
		if r.DeviceID == deviceID && r.SensorType == sensorType {
			out = append(out, r)
		}
	}
	return out, nil
}

func newDetector(h ReadingHistory, required int) *StreakDetector {
	return NewStreakDetector(h, NewClassifier(nil), required, zap.NewNop())
}

func TestStreak_ExactRunOfN(t *testing.T) {
	h := &fakeHistory{}
	h.add("MQ2", 100, 650, 700, 620)

	d := newDetector(h, 3)
	assert.Equal(t, 3, d.CountConsecutiveAlerts(context.Background(), "ESP32-01", "MQ2", 5))
}

func TestStreak_FetchesWindowPlusOne(t *testing.T) {
	h := &fakeHistory{}
	h.add("MQ2", 650, 650, 650, 650, 650, 650)

	d := newDetector(h, 3)
	count := d.CountConsecutiveAlerts(context.Background(), "ESP32-01", "MQ2", 3)
	assert.Equal(t, 4, h.lastN)
	assert.Equal(t, 4, count)
}

func TestStreak_NormalReadingResets(t *testing.T) {
	h := &fakeHistory{}
	h.add("MQ2", 650, 650, 650)

	d := newDetector(h, 2)
	_, escalate := d.ShouldEscalate(context.Background(), "ESP32-01", "MQ2")
	assert.True(t, escalate)

	h.add("MQ2", 50)
	count, escalate := d.ShouldEscalate(context.Background(), "ESP32-01", "MQ2")
	assert.Equal(t, 0, count)
	assert.False(t, escalate)
}

func TestStreak_CautionCountsAsAlert(t *testing.T) {
	h := &fakeHistory{}
	h.add("MQ2", 350, 650)

	d := newDetector(h, 2)
	count, escalate := d.ShouldEscalate(context.Background(), "ESP32-01", "MQ2")
	assert.Equal(t, 2, count)
	assert.True(t, escalate)
}

func TestStreak_ShortHistoryNeverEscalates(t *testing.T) {
	h := &fakeHistory{}
	d := newDetector(h, 3)

	count, escalate := d.ShouldEscalate(context.Background(), "ESP32-01", "MQ2")
	assert.Equal(t, 0, count)
	assert.False(t, escalate)

	h.add("MQ2", 650, 650)
	count, escalate = d.ShouldEscalate(context.Background(), "ESP32-01", "MQ2")
	assert.Equal(t, 2, count)
	assert.False(t, escalate)
}

func TestStreak_OtherSensorsIgnored(t *testing.T) {
	h := &fakeHistory{}
	h.add("MQ2", 650, 650)
	h.add("DHT11_temp", 22)

	d := newDetector(h, 2)
	assert.Equal(t, 2, d.CountConsecutiveAlerts(context.Background(), "ESP32-01", "MQ2", 2))
}

func TestStreak_LookupErrorIsNoStreak(t *testing.T) {
	h := &fakeHistory{err: errors.New("connection refused")}
	d := newDetector(h, 1)

	count, escalate := d.ShouldEscalate(context.Background(), "ESP32-01", "MQ2")
	assert.Equal(t, 0, count)
	assert.False(t, escalate)
}
