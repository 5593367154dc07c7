package evaluator

import (
	"gasguard/internal/models"
)

// Classifier 阈值分类器：(传感器类型, 数值) → 严重程度
// 纯函数，无副作用；未知传感器类型一律 normal
type Classifier struct {
	table models.ThresholdTable
}

// NewClassifier 创建分类器，table 为 nil 时使用默认阈值表
func NewClassifier(table models.ThresholdTable) *Classifier {
	if table == nil {
		table = models.DefaultThresholdTable()
	}
	return &Classifier{table: table}
}

// Table 当前阈值表
func (c *Classifier) Table() models.ThresholdTable {
	return c.table
}

// Classify 计算读数严重程度，danger 边界包含等号
func (c *Classifier) Classify(sensorType string, value float64) models.Severity {
	th, ok := c.table.Lookup(sensorType)
	if !ok {
		return models.SeverityNormal
	}
	if th.IsRange() {
		return classifyRange(th, value)
	}
	return classifySimple(th, value)
}

// 单边阈值
func classifySimple(th models.Threshold, value float64) models.Severity {
	if th.Danger != nil && value >= *th.Danger {
		return models.SeverityDanger
	}
	if th.Caution != nil && value >= *th.Caution {
		return models.SeverityCaution
	}
	return models.SeverityNormal
}

// 双边阈值：超出 danger 上下限为 danger，超出舒适区间为 caution
func classifyRange(th models.Threshold, value float64) models.Severity {
	if th.DangerLow != nil && value <= *th.DangerLow {
		return models.SeverityDanger
	}
	if th.DangerHigh != nil && value >= *th.DangerHigh {
		return models.SeverityDanger
	}
	if th.SafeMin != nil && value < *th.SafeMin {
		return models.SeverityCaution
	}
	if th.SafeMax != nil && value > *th.SafeMax {
		return models.SeverityCaution
	}
	return models.SeverityNormal
}
