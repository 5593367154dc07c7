package evaluator

import (
	"testing"

	"gasguard/internal/models"

	"github.com/stretchr/testify/assert"
)

func floatPtr(v float64) *float64 { return &v }

func TestClassifier_DefaultTable(t *testing.T) {
	c := NewClassifier(nil)

	cases := []struct {
		sensorType string
		value      float64
		want       models.Severity
	}{
		{"MQ2", 120, models.SeverityNormal},
		{"MQ2", 300, models.SeverityCaution},
		{"MQ2", 599.9, models.SeverityCaution},
		{"MQ2", 600, models.SeverityDanger},
		{"gas", 650, models.SeverityDanger},
		{"MQ4", 49, models.SeverityNormal},
		{"MQ4", 150, models.SeverityDanger},
		{"co", 35, models.SeverityCaution},
		{"DHT11_temp", 22, models.SeverityNormal},
		{"DHT11_temp", 30, models.SeverityCaution},
		{"DHT11_temp", 15, models.SeverityCaution},
		{"DHT11_temp", 35, models.SeverityDanger},
		{"DHT11_temp", 0, models.SeverityDanger},
		{"humidity", 75, models.SeverityCaution},
		{"humidity", 85, models.SeverityDanger},
		{"humidity", 10, models.SeverityDanger},
		{"MQ135", 99999, models.SeverityNormal},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, c.Classify(tc.sensorType, tc.value), "%s=%v", tc.sensorType, tc.value)
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	c := NewClassifier(nil)
	for _, v := range []float64{0, 299, 300, 600, 601, 1e6} {
		assert.Equal(t, c.Classify("MQ2", v), c.Classify("MQ2", v))
	}
}

func TestClassifier_DangerBoundaryInclusive(t *testing.T) {
	c := NewClassifier(models.ThresholdTable{
		"gas": {Kind: models.KindGas, Danger: floatPtr(600)},
	})
	assert.Equal(t, models.SeverityDanger, c.Classify("gas", 600))
	assert.Equal(t, models.SeverityNormal, c.Classify("gas", 599.99))
}

func TestClassifier_TwoStateVariant(t *testing.T) {
	// 省略 caution 边界即为两态策略
	c := NewClassifier(models.ThresholdTable{
		"gas":  {Kind: models.KindGas, Danger: floatPtr(600)},
		"temp": {Kind: models.KindTemperature, DangerLow: floatPtr(0), DangerHigh: floatPtr(35)},
	})
	assert.Equal(t, models.SeverityNormal, c.Classify("gas", 450))
	assert.Equal(t, models.SeverityNormal, c.Classify("temp", 31))
	assert.Equal(t, models.SeverityDanger, c.Classify("temp", 36))
	assert.Equal(t, models.SeverityDanger, c.Classify("temp", -1))
}

func TestClassifier_UnknownTypeIsNormal(t *testing.T) {
	c := NewClassifier(models.ThresholdTable{})
	assert.Equal(t, models.SeverityNormal, c.Classify("MQ2", 10000))
}
