// Package runtime assembles the generation core from configuration and an
// injected provider adapter.
package runtime

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"

	storesqlite "github.com/halcyonlabs/structgen/internal/adapters/storage/sqlite"
	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/gate"
	"github.com/halcyonlabs/structgen/internal/generate"
	"github.com/halcyonlabs/structgen/internal/metrics"
	"github.com/halcyonlabs/structgen/internal/pricing"
	"github.com/halcyonlabs/structgen/internal/provenance"
	"github.com/halcyonlabs/structgen/internal/router"
	"github.com/halcyonlabs/structgen/internal/safety"
	"github.com/halcyonlabs/structgen/internal/tier"
)

// Engine is the assembled generation core.
type Engine struct {
	generator *generate.Generator
	ledger    *provenance.Ledger
	store     ports.ProvenanceStore
	ownsStore bool
	logger    *slog.Logger
}

type options struct {
	logger  *slog.Logger
	store   ports.ProvenanceStore
	metrics ports.MetricsRecorder
}

// Option configures the engine.
type Option func(*options)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithProvenanceStore injects a provenance store, overriding the configured
// storage type. The engine does not close injected stores.
func WithProvenanceStore(store ports.ProvenanceStore) Option {
	return func(o *options) { o.store = store }
}

// WithMetricsRecorder injects a metrics recorder, replacing the default
// otel-backed one.
func WithMetricsRecorder(recorder ports.MetricsRecorder) Option {
	return func(o *options) { o.metrics = recorder }
}

// New assembles an engine. The provider adapter is the host's collaborator;
// the core never implements provider transport itself.
func New(cfg *config.Config, adapter ports.ProviderAdapter, opts ...Option) (*Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if adapter == nil {
		return nil, fmt.Errorf("provider adapter is required")
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	scanner := safety.NewScanner()

	rejectAt, err := domain.ParseSeverity(cfg.Safety.RejectSeverity)
	if err != nil {
		return nil, err
	}

	selector, err := tier.NewSelector(cfg.Tiers)
	if err != nil {
		return nil, err
	}

	registry := pricing.NewRegistry(cfg.Pricing, o.logger)

	recorder := o.metrics
	if recorder == nil {
		recorder = metrics.NewRecorder(otel.Meter("structgen"), o.logger)
	}

	store := o.store
	ownsStore := false
	if store == nil {
		switch cfg.Storage.Type {
		case "", "memory":
			store = provenance.NewMemoryStore()
		case "sqlite":
			s, err := storesqlite.New(cfg.Storage.SQLite.Path)
			if err != nil {
				return nil, err
			}
			store = s
			ownsStore = true
		default:
			return nil, fmt.Errorf("unknown storage type: %q", cfg.Storage.Type)
		}
	}

	ledger := provenance.NewLedger(scanner, store, o.logger)

	rt, err := router.New(adapter, selector, gate.New(scanner, rejectAt), registry, recorder, cfg.Routing, o.logger)
	if err != nil {
		return nil, err
	}

	generator, err := generate.New(rt, ledger, recorder, registry, cfg.Generation, o.logger)
	if err != nil {
		return nil, err
	}

	return &Engine{
		generator: generator,
		ledger:    ledger,
		store:     store,
		ownsStore: ownsStore,
		logger:    o.logger,
	}, nil
}

// Generate produces one schema-conformant pack or one error outcome.
func (e *Engine) Generate(ctx context.Context, task string, schema domain.SchemaDescriptor, stage domain.StageContext, opts domain.Options) *domain.Outcome {
	return e.generator.Generate(ctx, task, schema, stage, opts)
}

// Provenance returns the ordered attempt log for a research session.
func (e *Engine) Provenance(ctx context.Context, researchID string) ([]domain.PromptLogEntry, error) {
	return e.ledger.List(ctx, researchID)
}

// Close releases resources the engine owns.
func (e *Engine) Close() error {
	if !e.ownsStore {
		return nil
	}
	if closer, ok := e.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
