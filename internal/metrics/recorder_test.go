package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
)

func TestRecorderIsBestEffort(t *testing.T) {
	r := NewRecorder(noop.NewMeterProvider().Meter("test"), nil)
	ctx := context.Background()

	// Recording must never panic or return; the generation path depends on it.
	r.RecordRequest(ctx, ports.RequestMetric{
		Provider:     "openai",
		Model:        "gpt-5-mini",
		Tier:         domain.TierMini,
		TaskCategory: "summarize",
		Outcome:      "success",
		CostUSD:      0.003,
		LatencyMs:    420,
	})
	r.RecordEscalation(ctx, domain.EscalationEvent{
		FromTier: domain.TierNano,
		ToTier:   domain.TierMini,
		Reason:   "quality gate rejected lower tier",
	})
	r.RecordTierFallback(ctx, "unheard_of")
}

func TestRecorderImplementsPort(t *testing.T) {
	var _ ports.MetricsRecorder = NewRecorder(noop.NewMeterProvider().Meter("test"), nil)
}
