package pricing

import (
	"math"
	"testing"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
)

func testRegistry() *Registry {
	return NewRegistry(config.PricingConfig{
		Version: "2025-08",
		Models: map[string]config.ModelPricing{
			"gpt-5-nano": {InputPer1K: 0.00005, OutputPer1K: 0.0004},
			"gpt-5":      {InputPer1K: 0.00125, OutputPer1K: 0.01},
		},
	}, nil)
}

func TestCost(t *testing.T) {
	r := testRegistry()

	tests := []struct {
		name  string
		model string
		usage domain.Usage
		want  float64
	}{
		{
			name:  "nano",
			model: "gpt-5-nano",
			usage: domain.Usage{InputTokens: 1000, OutputTokens: 500},
			want:  0.00005 + 0.0002,
		},
		{
			name:  "frontier",
			model: "gpt-5",
			usage: domain.Usage{InputTokens: 2000, OutputTokens: 1000},
			want:  0.0025 + 0.01,
		},
		{
			name:  "zero usage",
			model: "gpt-5",
			usage: domain.Usage{},
			want:  0,
		},
		{
			name:  "unknown model costs zero",
			model: "gpt-99",
			usage: domain.Usage{InputTokens: 1000, OutputTokens: 1000},
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Cost(tt.model, tt.usage)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("Cost(%s, %+v) = %v, want %v", tt.model, tt.usage, got, tt.want)
			}
		})
	}
}

func TestVersion(t *testing.T) {
	r := testRegistry()
	if r.Version() != "2025-08" {
		t.Errorf("Version() = %q, want 2025-08", r.Version())
	}
}

func TestUnknownModelWarnsOnce(t *testing.T) {
	r := testRegistry()

	// Repeated lookups must not grow the warned set beyond one entry per model.
	for i := 0; i < 5; i++ {
		r.Cost("gpt-99", domain.Usage{InputTokens: 10})
	}
	r.warnedMu.Lock()
	defer r.warnedMu.Unlock()
	if len(r.warned) != 1 {
		t.Errorf("warned set has %d entries, want 1", len(r.warned))
	}
}
