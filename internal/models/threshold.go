package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SensorKind 传感器类别，用于选择邮件文案
type SensorKind string

const (
	KindGas         SensorKind = "gas"
	KindMethane     SensorKind = "methane"
	KindCO          SensorKind = "carbon_monoxide"
	KindTemperature SensorKind = "temperature"
	KindHumidity    SensorKind = "humidity"
	KindUnknown     SensorKind = "unknown"
)

// Threshold 单个传感器类型的阈值配置
// 单边阈值：设置 Danger（可选 Caution）
// 双边阈值：设置 DangerLow 和/或 DangerHigh（可选舒适区间 SafeMin/SafeMax 作为 caution 边界）
type Threshold struct {
	Kind SensorKind `json:"kind"`

	Caution *float64 `json:"caution,omitempty"`
	Danger  *float64 `json:"danger,omitempty"`

	SafeMin    *float64 `json:"safe_min,omitempty"`
	SafeMax    *float64 `json:"safe_max,omitempty"`
	DangerLow  *float64 `json:"danger_low,omitempty"`
	DangerHigh *float64 `json:"danger_high,omitempty"`
}

// IsRange 是否为双边（区间）阈值
func (t Threshold) IsRange() bool {
	return t.DangerLow != nil || t.DangerHigh != nil
}

// Validate 检查阈值形状是否合法
func (t Threshold) Validate() error {
	if t.IsRange() {
		if t.Danger != nil || t.Caution != nil {
			return fmt.Errorf("range threshold must not set danger/caution")
		}
		if t.DangerLow != nil && t.DangerHigh != nil && *t.DangerLow >= *t.DangerHigh {
			return fmt.Errorf("danger_low must be below danger_high")
		}
		if t.SafeMin != nil && t.SafeMax != nil && *t.SafeMin > *t.SafeMax {
			return fmt.Errorf("safe_min must not exceed safe_max")
		}
		return nil
	}
	if t.Danger == nil {
		return fmt.Errorf("simple threshold requires danger")
	}
	if t.Caution != nil && *t.Caution > *t.Danger {
		return fmt.Errorf("caution must not exceed danger")
	}
	return nil
}

// LegacyGasSensorType 旧版单气体接口写入的传感器类型
const LegacyGasSensorType = "gas_ppm"

// ThresholdTable 传感器类型 → 阈值
type ThresholdTable map[string]Threshold

// Lookup 按传感器类型查找阈值（大小写不敏感）
func (t ThresholdTable) Lookup(sensorType string) (Threshold, bool) {
	if th, ok := t[sensorType]; ok {
		return th, true
	}
	for k, th := range t {
		if strings.EqualFold(k, sensorType) {
			return th, true
		}
	}
	return Threshold{}, false
}

// KindOf 传感器类型对应的类别，未知类型返回 KindUnknown
func (t ThresholdTable) KindOf(sensorType string) SensorKind {
	if th, ok := t.Lookup(sensorType); ok && th.Kind != "" {
		return th.Kind
	}
	return KindUnknown
}

// ParseThresholdTable 解析 JSON 阈值表并逐项校验
func ParseThresholdTable(data []byte) (ThresholdTable, error) {
	var table ThresholdTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse threshold table: %w", err)
	}
	for sensorType, th := range table {
		if err := th.Validate(); err != nil {
			return nil, fmt.Errorf("invalid threshold for %s: %w", sensorType, err)
		}
	}
	return table, nil
}

func f(v float64) *float64 { return &v }

// DefaultThresholdTable 默认阈值表（MQ 系列气体传感器 + DHT11）
func DefaultThresholdTable() ThresholdTable {
	gas := Threshold{Kind: KindGas, Caution: f(300), Danger: f(600)}
	methane := Threshold{Kind: KindMethane, Caution: f(50), Danger: f(150)}
	co := Threshold{Kind: KindCO, Caution: f(35), Danger: f(100)}
	temp := Threshold{Kind: KindTemperature, SafeMin: f(18), SafeMax: f(28), DangerLow: f(0), DangerHigh: f(35)}
	hum := Threshold{Kind: KindHumidity, SafeMin: f(30), SafeMax: f(70), DangerLow: f(10), DangerHigh: f(85)}
	// 旧版单传感器接口（valor_ppm）：50–90 precaución，≥91 peligro
	legacy := Threshold{Kind: KindGas, Caution: f(50), Danger: f(91)}

	return ThresholdTable{
		"MQ2":               gas,
		"gas":               gas,
		"MQ4":               methane,
		"methane":           methane,
		"MQ7":               co,
		"co":                co,
		"DHT11_temp":        temp,
		"temperature":       temp,
		"DHT11_hum":         hum,
		"humidity":          hum,
		LegacyGasSensorType: legacy,
	}
}
