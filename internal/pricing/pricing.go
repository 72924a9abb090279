// Package pricing computes model call cost from a versioned, configurable
// pricing table. Every pack records the table version in force at generation
// time so cost audits survive pricing changes.
package pricing

import (
	"log/slog"
	"sync"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
)

// Registry is a read-only pricing table loaded at startup.
type Registry struct {
	version string
	models  map[string]config.ModelPricing
	logger  *slog.Logger

	warnedMu sync.Mutex
	warned   map[string]struct{}
}

// NewRegistry creates a registry from config.
func NewRegistry(cfg config.PricingConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	models := make(map[string]config.ModelPricing, len(cfg.Models))
	for model, p := range cfg.Models {
		models[model] = p
	}
	return &Registry{
		version: cfg.Version,
		models:  models,
		logger:  logger,
		warned:  make(map[string]struct{}),
	}
}

// Version returns the pricing table version.
func (r *Registry) Version() string {
	return r.version
}

// Cost returns the USD cost of a call. Unknown models cost zero and are
// warned about once per model.
func (r *Registry) Cost(model string, usage domain.Usage) float64 {
	p, ok := r.models[model]
	if !ok {
		r.warnOnce(model)
		return 0
	}
	return float64(usage.InputTokens)/1000*p.InputPer1K +
		float64(usage.OutputTokens)/1000*p.OutputPer1K
}

func (r *Registry) warnOnce(model string) {
	r.warnedMu.Lock()
	defer r.warnedMu.Unlock()
	if _, seen := r.warned[model]; seen {
		return
	}
	r.warned[model] = struct{}{}
	r.logger.Warn("no pricing entry for model, recording zero cost",
		slog.String("model", model),
		slog.String("pricing_version", r.version),
	)
}
