package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/gate"
	"github.com/halcyonlabs/structgen/internal/pricing"
	"github.com/halcyonlabs/structgen/internal/safety"
	"github.com/halcyonlabs/structgen/internal/tier"
)

type stubAdapter struct {
	mu       sync.Mutex
	respond  func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error)
	requests []ports.InvokeRequest
}

func (a *stubAdapter) Invoke(ctx context.Context, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
	a.mu.Lock()
	call := len(a.requests)
	a.requests = append(a.requests, *req)
	a.mu.Unlock()
	return a.respond(call, req)
}

type stubMetrics struct {
	mu          sync.Mutex
	requests    []ports.RequestMetric
	escalations []domain.EscalationEvent
	fallbacks   []string
}

func (m *stubMetrics) RecordRequest(ctx context.Context, r ports.RequestMetric) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, r)
}

func (m *stubMetrics) RecordEscalation(ctx context.Context, ev domain.EscalationEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.escalations = append(m.escalations, ev)
}

func (m *stubMetrics) RecordTierFallback(ctx context.Context, category string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, category)
}

func testRoutingConfig() config.RoutingConfig {
	return config.RoutingConfig{
		Models: map[string]config.ModelPairing{
			"nano":     {Provider: "openai", Model: "gpt-5-nano"},
			"mini":     {Provider: "openai", Model: "gpt-5-mini"},
			"frontier": {Provider: "openai", Model: "gpt-5"},
		},
		MaxEscalations: 1,
	}
}

func newTestRouter(t *testing.T, adapter ports.ProviderAdapter, metrics ports.MetricsRecorder) *Router {
	t.Helper()

	selector, err := tier.NewSelector(config.TierConfig{
		Categories: map[string]string{
			"classify":   "nano",
			"summarize":  "mini",
			"synthesize": "frontier",
		},
		Default: "mini",
	})
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}

	registry := pricing.NewRegistry(config.PricingConfig{
		Version: "test",
		Models: map[string]config.ModelPricing{
			"gpt-5-nano": {InputPer1K: 0.00005, OutputPer1K: 0.0004},
			"gpt-5-mini": {InputPer1K: 0.00025, OutputPer1K: 0.002},
			"gpt-5":      {InputPer1K: 0.00125, OutputPer1K: 0.01},
		},
	}, nil)

	g := gate.New(safety.NewScanner(), domain.SeverityMedium)

	r, err := New(adapter, selector, g, registry, metrics, testRoutingConfig(), nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return r
}

func TestRouteFirstTierPass(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return &ports.InvokeResult{
			Content: `{"label": "methods"}`,
			Usage:   domain.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
		}, nil
	}}
	metrics := &stubMetrics{}
	r := newTestRouter(t, adapter, metrics)

	resp, err := r.Route(context.Background(), &Request{
		Prompt:         "classify this section",
		TaskCategory:   "classify",
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}

	if resp.Routing.InitialTier != domain.TierNano || resp.Routing.FinalTier != domain.TierNano {
		t.Errorf("routing tiers = %+v, want nano/nano", resp.Routing)
	}
	if resp.Routing.Escalated {
		t.Error("Escalated = true on first-tier pass")
	}
	if resp.Routing.Provider != "openai" || resp.Routing.Model != "gpt-5-nano" {
		t.Errorf("routing pairing = %s/%s", resp.Routing.Provider, resp.Routing.Model)
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", resp.Attempts)
	}
	if resp.CostUSD <= 0 {
		t.Errorf("CostUSD = %v, want > 0 from pricing registry", resp.CostUSD)
	}
	if !resp.Gate.Passed {
		t.Errorf("gate failed: %+v", resp.Gate.Checks)
	}
	if len(adapter.requests) != 1 || adapter.requests[0].Tier != domain.TierNano {
		t.Errorf("adapter requests = %+v", adapter.requests)
	}
	if len(metrics.escalations) != 0 {
		t.Errorf("escalations recorded = %d, want 0", len(metrics.escalations))
	}
}

func TestRouteEscalatesOnGateFailure(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		if call == 0 {
			return &ports.InvokeResult{Content: `{"note": "ssn 123-45-6789"}`}, nil
		}
		return &ports.InvokeResult{Content: `{"note": "clean"}`}, nil
	}}
	metrics := &stubMetrics{}
	r := newTestRouter(t, adapter, metrics)

	resp, err := r.Route(context.Background(), &Request{
		Prompt:         "classify this",
		TaskCategory:   "classify",
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}

	if !resp.Routing.Escalated {
		t.Fatal("Escalated = false, want escalation after gate failure")
	}
	if resp.Routing.InitialTier != domain.TierNano || resp.Routing.FinalTier != domain.TierMini {
		t.Errorf("tiers = %v -> %v, want nano -> mini", resp.Routing.InitialTier, resp.Routing.FinalTier)
	}
	if resp.Routing.EscalationReason == "" {
		t.Error("EscalationReason is empty on escalated pass")
	}
	if resp.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", resp.Attempts)
	}
	if len(metrics.escalations) != 1 {
		t.Fatalf("escalations = %d, want 1", len(metrics.escalations))
	}
	ev := metrics.escalations[0]
	if ev.FromTier != domain.TierNano || ev.ToTier != domain.TierMini {
		t.Errorf("escalation event = %+v", ev)
	}
	if adapter.requests[1].Model != "gpt-5-mini" {
		t.Errorf("second attempt model = %s, want gpt-5-mini", adapter.requests[1].Model)
	}
}

func TestRouteGateFailureAtCeilingIsTerminal(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return &ports.InvokeResult{Content: `{"note": "ssn 123-45-6789"}`}, nil
	}}
	metrics := &stubMetrics{}
	r := newTestRouter(t, adapter, metrics)

	// synthesize starts at frontier, which is already the ceiling.
	resp, err := r.Route(context.Background(), &Request{
		Prompt:         "synthesize findings",
		TaskCategory:   "synthesize",
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}

	if resp.Gate.Passed {
		t.Fatal("gate passed, want terminal failure")
	}
	if resp.Content != "" {
		t.Errorf("Content = %q, want empty on terminal gate failure", resp.Content)
	}
	if resp.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 at ceiling start", resp.Attempts)
	}
	if len(metrics.escalations) != 0 {
		t.Errorf("escalations = %d, want 0 at ceiling", len(metrics.escalations))
	}
	if resp.Routing.Escalated {
		t.Error("Escalated = true without any tier change")
	}
	if resp.Routing.EscalationReason != "" {
		t.Errorf("EscalationReason = %q, want empty when no escalation happened", resp.Routing.EscalationReason)
	}
}

func TestRouteEscalatedTerminalFailureKeepsReason(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return &ports.InvokeResult{Content: `{"note": "ssn 123-45-6789"}`}, nil
	}}
	r := newTestRouter(t, adapter, &stubMetrics{})

	// nano start, escalates once to mini, fails there too.
	resp, err := r.Route(context.Background(), &Request{
		Prompt:         "classify this",
		TaskCategory:   "classify",
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}

	if resp.Gate.Passed {
		t.Fatal("gate passed, want terminal failure")
	}
	if !resp.Routing.Escalated {
		t.Fatal("Escalated = false after a tier change")
	}
	if resp.Routing.EscalationReason == "" {
		t.Error("EscalationReason empty on escalated terminal failure")
	}
}

func TestRouteEscalationStopsAtConfiguredCeiling(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return &ports.InvokeResult{Content: `{"note": "ssn 123-45-6789"}`}, nil
	}}
	r := newTestRouter(t, adapter, &stubMetrics{})

	resp, err := r.Route(context.Background(), &Request{
		Prompt:         "classify this",
		TaskCategory:   "classify",
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}

	// nano start, max_escalations 1: nano then mini, never frontier.
	if resp.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", resp.Attempts)
	}
	if resp.Routing.FinalTier != domain.TierMini {
		t.Errorf("FinalTier = %v, want mini", resp.Routing.FinalTier)
	}
	for _, req := range adapter.requests {
		if req.Tier == domain.TierFrontier {
			t.Error("request escalated past the configured ceiling")
		}
	}
}

func TestRouteUnknownCategoryFallsBack(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return &ports.InvokeResult{Content: `{"ok": true}`}, nil
	}}
	metrics := &stubMetrics{}
	r := newTestRouter(t, adapter, metrics)

	resp, err := r.Route(context.Background(), &Request{
		Prompt:         "do a thing",
		TaskCategory:   "unheard_of",
		ResponseFormat: "json",
	})
	if err != nil {
		t.Fatalf("Route() error: %v", err)
	}

	if resp.Routing.InitialTier != domain.TierMini {
		t.Errorf("InitialTier = %v, want default mini", resp.Routing.InitialTier)
	}
	if len(metrics.fallbacks) != 1 || metrics.fallbacks[0] != "unheard_of" {
		t.Errorf("fallbacks = %v, want [unheard_of]", metrics.fallbacks)
	}
}

func TestRouteProviderError(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return nil, fmt.Errorf("upstream 503")
	}}
	r := newTestRouter(t, adapter, &stubMetrics{})

	_, err := r.Route(context.Background(), &Request{
		Prompt:       "classify",
		TaskCategory: "classify",
	})
	if err == nil {
		t.Fatal("Route() returned nil error for provider failure")
	}
	if !strings.Contains(err.Error(), "invoke failed") {
		t.Errorf("error = %v, want invoke failure", err)
	}
}

func TestRouteAttemptTimeout(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return nil, context.DeadlineExceeded
	}}
	r := newTestRouter(t, adapter, &stubMetrics{})

	_, err := r.Route(context.Background(), &Request{
		Prompt:         "classify",
		TaskCategory:   "classify",
		AttemptTimeout: 5 * time.Millisecond,
	})
	if !errors.Is(err, domain.ErrProviderTimeout) {
		t.Errorf("error = %v, want ErrProviderTimeout", err)
	}
}

func TestRouteParentCancellation(t *testing.T) {
	adapter := &stubAdapter{respond: func(call int, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return nil, context.Canceled
	}}
	r := newTestRouter(t, adapter, &stubMetrics{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.Route(ctx, &Request{
		Prompt:       "classify",
		TaskCategory: "classify",
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestNewRequiresFullPairingTable(t *testing.T) {
	cfg := testRoutingConfig()
	delete(cfg.Models, "frontier")

	selector, err := tier.NewSelector(config.TierConfig{Default: "mini"})
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}

	adapter := &stubAdapter{respond: func(int, *ports.InvokeRequest) (*ports.InvokeResult, error) {
		return nil, nil
	}}
	_, err = New(adapter, selector, gate.New(safety.NewScanner(), domain.SeverityMedium), nil, nil, cfg, nil)
	if err == nil {
		t.Fatal("New() accepted pairing table with missing tier")
	}
}
