package models

import (
	"time"
)

// Severity 读数严重程度（由阈值表推导，缓存于读数中）
type Severity string

const (
	SeverityNormal  Severity = "normal"
	SeverityCaution Severity = "caution"
	SeverityDanger  Severity = "danger"
)

// Rank 严重程度排序，数值越大越严重
func (s Severity) Rank() int {
	switch s {
	case SeverityCaution:
		return 1
	case SeverityDanger:
		return 2
	default:
		return 0
	}
}

// IsAlert 非 normal 即视为报警状态
func (s Severity) IsAlert() bool {
	return s.Rank() > 0
}

// Reading 单条传感器读数（对应 sensor_readings 表）
type Reading struct {
	ID         int64     `json:"id" db:"id"`
	DeviceID   string    `json:"device_id" db:"device_id"`
	SensorType string    `json:"sensor_tipo" db:"sensor_type"`
	SensorName string    `json:"sensor_nombre" db:"sensor_name"`
	Value      float64   `json:"valor" db:"value"`
	Unit       string    `json:"unidad" db:"unit"`
	Severity   Severity  `json:"estado" db:"severity"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// SensorInput 设备上报的一条传感器数据
// 兼容固件的西语字段（tipo/valor/unidad/nombre）与英文字段
type SensorInput struct {
	Type  string   `json:"type"`
	Value *float64 `json:"value"`
	Unit  string   `json:"unit"`
	Name  string   `json:"name"`

	Tipo   string   `json:"tipo"`
	Valor  *float64 `json:"valor"`
	Unidad string   `json:"unidad"`
	Nombre string   `json:"nombre"`
}

// Normalize 合并两套字段，返回 (type, value, unit, name, ok)
func (s SensorInput) Normalize() (string, float64, string, string, bool) {
	sensorType := firstNonEmpty(s.Type, s.Tipo)
	unit := firstNonEmpty(s.Unit, s.Unidad)
	name := firstNonEmpty(s.Name, s.Nombre, sensorType)

	value := s.Value
	if value == nil {
		value = s.Valor
	}
	if sensorType == "" || value == nil {
		return "", 0, "", "", false
	}
	return sensorType, *value, unit, name, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
