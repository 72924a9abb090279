// Package router orchestrates provider calls per request, applying the tier
// selector and quality gate and escalating tiers on gate failures.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/gate"
	"github.com/halcyonlabs/structgen/internal/pricing"
	"github.com/halcyonlabs/structgen/internal/tier"
)

// Request is one routed generation attempt.
type Request struct {
	Prompt         string
	SystemPrompt   string
	TaskCategory   string
	ResponseFormat string // "text" or "json"
	Temperature    float32
	MaxTokens      int
	AttemptTimeout time.Duration
	Metadata       map[string]string
}

// Response is the routed result. When the gate fails at the ceiling tier,
// Content is empty and Gate.Passed is false; that outcome is terminal for
// the caller, not retryable.
type Response struct {
	Content   string
	Usage     domain.Usage
	Routing   domain.RoutingDecision
	Gate      domain.QualityGateResult
	CostUSD   float64
	LatencyMs int64
	Attempts  int
}

// Router resolves a tier, invokes the provider adapter, and gates the
// result, escalating one tier at a time up to the configured ceiling.
type Router struct {
	adapter        ports.ProviderAdapter
	selector       *tier.Selector
	gate           *gate.Gate
	pricing        *pricing.Registry
	metrics        ports.MetricsRecorder
	models         map[domain.Tier]config.ModelPairing
	maxEscalations int
	logger         *slog.Logger
}

// New creates a router. The pairing table must cover every tier; config
// validation guarantees that for config-sourced tables.
func New(
	adapter ports.ProviderAdapter,
	selector *tier.Selector,
	g *gate.Gate,
	registry *pricing.Registry,
	metrics ports.MetricsRecorder,
	cfg config.RoutingConfig,
	logger *slog.Logger,
) (*Router, error) {
	if adapter == nil {
		return nil, fmt.Errorf("provider adapter is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	models := make(map[domain.Tier]config.ModelPairing, len(cfg.Models))
	for tierName, pairing := range cfg.Models {
		t, err := domain.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("routing.models: %w", err)
		}
		models[t] = pairing
	}
	for t := domain.TierNano; t <= domain.TierFrontier; t++ {
		if _, ok := models[t]; !ok {
			return nil, fmt.Errorf("routing.models: no pairing for tier %s", t)
		}
	}

	return &Router{
		adapter:        adapter,
		selector:       selector,
		gate:           g,
		pricing:        registry,
		metrics:        metrics,
		models:         models,
		maxEscalations: cfg.MaxEscalations,
		logger:         logger,
	}, nil
}

// Route executes one-or-more adapter calls for the request. A non-nil error
// means the provider/transport failed; a gate failure at the ceiling tier
// returns a Response with empty content and Gate.Passed=false instead.
func (r *Router) Route(ctx context.Context, req *Request) (*Response, error) {
	initial, known, err := r.selector.Select(req.TaskCategory)
	if err != nil {
		return nil, err
	}
	if !known && r.metrics != nil {
		r.metrics.RecordTierFallback(ctx, req.TaskCategory)
		r.logger.Warn("task category not in tier table, using default tier",
			slog.String("task_category", req.TaskCategory),
			slog.String("tier", initial.String()),
		)
	}

	ceiling := initial
	for i := 0; i < r.maxEscalations; i++ {
		next, ok := ceiling.Next()
		if !ok {
			break
		}
		ceiling = next
	}

	var (
		totalLatency int64
		totalCost    float64
		attempts     int
		lastGate     domain.QualityGateResult
	)

	for current := initial; ; {
		pairing := r.models[current]
		attempts++

		result, latencyMs, err := r.invoke(ctx, req, current, pairing)
		if err != nil {
			return nil, err
		}
		totalLatency += latencyMs
		totalCost += r.costOf(pairing.Model, result)

		gateResult := r.gate.Evaluate(result.Content, req.ResponseFormat == "json")
		lastGate = gateResult

		if gateResult.Passed {
			return &Response{
				Content: result.Content,
				Usage:   result.Usage,
				Routing: domain.RoutingDecision{
					Provider:    providerName(result, pairing),
					Model:       modelName(result, pairing),
					InitialTier: initial,
					FinalTier:   current,
					Escalated:   current > initial,
					EscalationReason: func() string {
						if current > initial {
							return "quality gate rejected lower tier"
						}
						return ""
					}(),
				},
				Gate:      gateResult,
				CostUSD:   totalCost,
				LatencyMs: totalLatency,
				Attempts:  attempts,
			}, nil
		}

		reasons := strings.Join(gateResult.FailureReasons(), "; ")

		if current < ceiling {
			next, _ := current.Next()
			if r.metrics != nil {
				r.metrics.RecordEscalation(ctx, domain.EscalationEvent{
					FromTier: current,
					ToTier:   next,
					Reason:   reasons,
				})
			}
			r.logger.Info("quality gate failed, escalating tier",
				slog.String("from_tier", current.String()),
				slog.String("to_tier", next.String()),
				slog.String("reason", reasons),
			)
			current = next
			continue
		}

		// Gate failed at the ceiling: terminal for this call.
		r.logger.Warn("quality gate failed at ceiling tier",
			slog.String("tier", current.String()),
			slog.String("reason", reasons),
		)
		escalationReason := ""
		if current > initial {
			escalationReason = reasons
		}
		return &Response{
			Content: "",
			Routing: domain.RoutingDecision{
				Provider:         pairing.Provider,
				Model:            pairing.Model,
				InitialTier:      initial,
				FinalTier:        current,
				Escalated:        current > initial,
				EscalationReason: escalationReason,
			},
			Gate:      lastGate,
			CostUSD:   totalCost,
			LatencyMs: totalLatency,
			Attempts:  attempts,
		}, nil
	}
}

// invoke executes a single bounded adapter call and returns its measured
// latency. A per-attempt timeout while the parent context is still live maps
// to domain.ErrProviderTimeout so the caller can spend retry budget on it.
func (r *Router) invoke(ctx context.Context, req *Request, t domain.Tier, pairing config.ModelPairing) (*ports.InvokeResult, int64, error) {
	attemptCtx := ctx
	cancel := func() {}
	if req.AttemptTimeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, req.AttemptTimeout)
	}
	defer cancel()

	start := time.Now()
	result, err := r.adapter.Invoke(attemptCtx, &ports.InvokeRequest{
		Tier:           t,
		Provider:       pairing.Provider,
		Model:          pairing.Model,
		Prompt:         req.Prompt,
		SystemPrompt:   req.SystemPrompt,
		ResponseFormat: req.ResponseFormat,
		Temperature:    req.Temperature,
		MaxTokens:      req.MaxTokens,
	})
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		if ctx.Err() != nil {
			return nil, elapsed, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, elapsed, fmt.Errorf("%w: tier %s model %s", domain.ErrProviderTimeout, t, pairing.Model)
		}
		return nil, elapsed, fmt.Errorf("provider %s invoke failed: %w", pairing.Provider, err)
	}

	if result.LatencyMs > 0 {
		elapsed = result.LatencyMs
	}
	return result, elapsed, nil
}

func (r *Router) costOf(model string, result *ports.InvokeResult) float64 {
	if result.CostUSD > 0 {
		return result.CostUSD
	}
	if r.pricing == nil {
		return 0
	}
	return r.pricing.Cost(model, result.Usage)
}

func providerName(result *ports.InvokeResult, pairing config.ModelPairing) string {
	if result.Provider != "" {
		return result.Provider
	}
	return pairing.Provider
}

func modelName(result *ports.InvokeResult, pairing config.ModelPairing) string {
	if result.Model != "" {
		return result.Model
	}
	return pairing.Model
}
