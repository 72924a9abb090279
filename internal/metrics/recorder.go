// Package metrics records request, cost, latency, and escalation metrics via
// OpenTelemetry. Recording is best-effort: errors are logged, never
// propagated to the generation call.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
)

// Recorder implements ports.MetricsRecorder on an otel Meter.
type Recorder struct {
	requests    metric.Int64Counter
	cost        metric.Float64Histogram
	latency     metric.Float64Histogram
	escalations metric.Int64Counter
	fallbacks   metric.Int64Counter
	logger      *slog.Logger
}

var _ ports.MetricsRecorder = (*Recorder)(nil)

// NewRecorder creates a recorder. Instrument creation failures are logged
// and the affected instrument is skipped.
func NewRecorder(meter metric.Meter, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{logger: logger}

	var err error
	if r.requests, err = meter.Int64Counter("structgen.requests",
		metric.WithDescription("Generation requests by provider, model, tier, category, and outcome"),
	); err != nil {
		logger.Error("failed to create requests counter", slog.String("error", err.Error()))
	}
	if r.cost, err = meter.Float64Histogram("structgen.cost.usd",
		metric.WithDescription("Cost per generation request in USD"),
	); err != nil {
		logger.Error("failed to create cost histogram", slog.String("error", err.Error()))
	}
	if r.latency, err = meter.Float64Histogram("structgen.latency.ms",
		metric.WithDescription("Wall-clock latency per generation request"),
		metric.WithUnit("ms"),
	); err != nil {
		logger.Error("failed to create latency histogram", slog.String("error", err.Error()))
	}
	if r.escalations, err = meter.Int64Counter("structgen.escalations",
		metric.WithDescription("Tier escalations by from/to tier and reason"),
	); err != nil {
		logger.Error("failed to create escalations counter", slog.String("error", err.Error()))
	}
	if r.fallbacks, err = meter.Int64Counter("structgen.tier.fallbacks",
		metric.WithDescription("Tier selections that fell back to the default tier"),
	); err != nil {
		logger.Error("failed to create fallbacks counter", slog.String("error", err.Error()))
	}

	return r
}

// RecordRequest records one completed generation request.
func (r *Recorder) RecordRequest(ctx context.Context, m ports.RequestMetric) {
	attrs := metric.WithAttributes(
		attribute.String("provider", m.Provider),
		attribute.String("model", m.Model),
		attribute.String("tier", m.Tier.String()),
		attribute.String("task_category", m.TaskCategory),
		attribute.String("outcome", m.Outcome),
	)
	if r.requests != nil {
		r.requests.Add(ctx, 1, attrs)
	}
	if r.cost != nil {
		r.cost.Record(ctx, m.CostUSD, attrs)
	}
	if r.latency != nil {
		r.latency.Record(ctx, float64(m.LatencyMs), attrs)
	}
}

// RecordEscalation records one tier escalation.
func (r *Recorder) RecordEscalation(ctx context.Context, ev domain.EscalationEvent) {
	if r.escalations == nil {
		return
	}
	r.escalations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from_tier", ev.FromTier.String()),
		attribute.String("to_tier", ev.ToTier.String()),
		attribute.String("reason", ev.Reason),
	))
}

// RecordTierFallback records a tier-table miss.
func (r *Recorder) RecordTierFallback(ctx context.Context, taskCategory string) {
	if r.fallbacks == nil {
		return
	}
	r.fallbacks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_category", taskCategory),
	))
}
