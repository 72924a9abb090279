// Package ports defines the collaborator interfaces the generation core
// depends on. Implementations live under internal/adapters and in host
// applications.
package ports

import (
	"context"

	"github.com/halcyonlabs/structgen/internal/core/domain"
)

// InvokeRequest is one model call handed to a provider adapter.
type InvokeRequest struct {
	Tier           domain.Tier
	Provider       string
	Model          string
	Prompt         string
	SystemPrompt   string
	ResponseFormat string // "text" or "json"
	Temperature    float32
	MaxTokens      int
}

// InvokeResult is the adapter's view of a completed model call. CostUSD and
// LatencyMs may be zero when the adapter cannot report them; the router
// fills them in from the pricing registry and its own clock.
type InvokeResult struct {
	Content   string
	Usage     domain.Usage
	CostUSD   float64
	LatencyMs int64
	Model     string
	Provider  string
}

// ProviderAdapter executes a single model call for a given tier. Transport
// details (HTTP, SDKs, auth) are entirely the adapter's concern.
type ProviderAdapter interface {
	Invoke(ctx context.Context, req *InvokeRequest) (*InvokeResult, error)
}

// ProvenanceStore persists the append-only prompt ledger. Implementations
// must support concurrent appends from many simultaneous calls.
type ProvenanceStore interface {
	Append(ctx context.Context, entry domain.PromptLogEntry) error
	List(ctx context.Context, researchID string) ([]domain.PromptLogEntry, error)
}

// RequestMetric is one completed generation attempt for metrics purposes.
type RequestMetric struct {
	Provider     string
	Model        string
	Tier         domain.Tier
	TaskCategory string
	Outcome      string
	CostUSD      float64
	LatencyMs    int64
}

// MetricsRecorder records counters and observations. Recording is
// best-effort: implementations swallow and log their own errors and must
// never fail the generation call.
type MetricsRecorder interface {
	RecordRequest(ctx context.Context, m RequestMetric)
	RecordEscalation(ctx context.Context, ev domain.EscalationEvent)
	RecordTierFallback(ctx context.Context, taskCategory string)
}
