package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics gasguard 指标；nil 接收者上的调用为空操作
type Metrics struct {
	readingsIngested   metric.Int64Counter
	escalations        metric.Int64Counter
	decisions          metric.Int64Counter
	auditWriteFailures metric.Int64Counter
	sendDuration       metric.Float64Histogram
	readingsPruned     metric.Int64Counter
}

func New(mp metric.MeterProvider) (*Metrics, error) {
	meter := mp.Meter("gasguard")

	readingsIngested, err := meter.Int64Counter("gasguard_readings_ingested_total",
		metric.WithDescription("Sensor readings persisted, by severity"))
	if err != nil {
		return nil, err
	}
	escalations, err := meter.Int64Counter("gasguard_escalations_total",
		metric.WithDescription("Consecutive-alert streaks that reached the escalation threshold"))
	if err != nil {
		return nil, err
	}
	decisions, err := meter.Int64Counter("gasguard_notification_decisions_total",
		metric.WithDescription("Notification decisions, by outcome"))
	if err != nil {
		return nil, err
	}
	auditWriteFailures, err := meter.Int64Counter("gasguard_audit_write_failures_total",
		metric.WithDescription("Audit records that could not be written; after_send=true defeats rate limiting"))
	if err != nil {
		return nil, err
	}
	sendDuration, err := meter.Float64Histogram("gasguard_email_send_duration_seconds",
		metric.WithDescription("Wall time of an email send in seconds"))
	if err != nil {
		return nil, err
	}
	readingsPruned, err := meter.Int64Counter("gasguard_readings_pruned_total",
		metric.WithDescription("Readings deleted by retention pruning"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		readingsIngested:   readingsIngested,
		escalations:        escalations,
		decisions:          decisions,
		auditWriteFailures: auditWriteFailures,
		sendDuration:       sendDuration,
		readingsPruned:     readingsPruned,
	}, nil
}

func (m *Metrics) RecordReading(ctx context.Context, sensorType, severity string) {
	if m == nil {
		return
	}
	m.readingsIngested.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sensor_type", sensorType),
		attribute.String("severity", severity),
	))
}

func (m *Metrics) RecordEscalation(ctx context.Context, sensorType string) {
	if m == nil {
		return
	}
	m.escalations.Add(ctx, 1, metric.WithAttributes(attribute.String("sensor_type", sensorType)))
}

func (m *Metrics) RecordDecision(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *Metrics) RecordAuditWriteFailure(ctx context.Context, afterSend bool) {
	if m == nil {
		return
	}
	m.auditWriteFailures.Add(ctx, 1, metric.WithAttributes(attribute.Bool("after_send", afterSend)))
}

func (m *Metrics) RecordSendDuration(ctx context.Context, seconds float64, success bool) {
	if m == nil {
		return
	}
	m.sendDuration.Record(ctx, seconds, metric.WithAttributes(attribute.Bool("success", success)))
}

func (m *Metrics) RecordPruned(ctx context.Context, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.readingsPruned.Add(ctx, n)
}
