// Package domain holds the canonical types for the structured generation core.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Tier is a model capability/cost level. Tiers are strictly ordered and
// escalation only ever moves upward.
type Tier int

const (
	TierNano Tier = iota
	TierMini
	TierFrontier
)

// String returns the lowercase tier name used in config and metrics.
func (t Tier) String() string {
	switch t {
	case TierNano:
		return "nano"
	case TierMini:
		return "mini"
	case TierFrontier:
		return "frontier"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// Valid returns true if the tier is a known value.
func (t Tier) Valid() bool {
	return t >= TierNano && t <= TierFrontier
}

// Next returns the next tier up, or false at the ceiling.
func (t Tier) Next() (Tier, bool) {
	if t >= TierFrontier {
		return t, false
	}
	return t + 1, true
}

// ParseTier parses a tier name from config.
func ParseTier(s string) (Tier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nano":
		return TierNano, nil
	case "mini":
		return TierMini, nil
	case "frontier":
		return TierFrontier, nil
	default:
		return 0, fmt.Errorf("unknown tier: %q", s)
	}
}

// Severity classifies a content-safety finding.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// ParseSeverity parses a severity name from config.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return SeverityLow, nil
	case "medium":
		return SeverityMedium, nil
	case "high":
		return SeverityHigh, nil
	default:
		return 0, fmt.Errorf("unknown severity: %q", s)
	}
}

// SchemaDescriptor is the machine-readable description of the required
// output shape. It is embedded in prompts and used for validation, and is
// carried verbatim on the resulting pack.
type SchemaDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Schema      json.RawMessage `json:"schema"`
}

// StageContext identifies the research session and pipeline stage a
// generation belongs to. The core trusts this context; authorization is
// resolved upstream.
type StageContext struct {
	ResearchID        string            `json:"research_id"`
	StageID           string            `json:"stage_id"`
	StageName         string            `json:"stage_name"`
	AdditionalContext map[string]string `json:"additional_context,omitempty"`
}

// Options are per-call generation options. Nil pointer fields fall back to
// the configured defaults.
type Options struct {
	Temperature              *float32      `json:"temperature,omitempty"`
	MaxTokens                int           `json:"max_tokens,omitempty"`
	RetryOnValidationFailure *bool         `json:"retry_on_validation_failure,omitempty"`
	MaxRetries               *int          `json:"max_retries,omitempty"`
	AttemptTimeout           time.Duration `json:"-"`
}

// Usage is token usage reported by a provider adapter.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// RoutingDecision describes how a request was routed, including any
// escalation that happened along the way.
type RoutingDecision struct {
	Provider         string `json:"provider"`
	Model            string `json:"model"`
	InitialTier      Tier   `json:"initial_tier"`
	FinalTier        Tier   `json:"final_tier"`
	Escalated        bool   `json:"escalated"`
	EscalationReason string `json:"escalation_reason,omitempty"`
}

// GateCheck is a single quality-gate check result.
type GateCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// QualityGateResult is produced once per router attempt.
type QualityGateResult struct {
	Passed bool        `json:"passed"`
	Checks []GateCheck `json:"checks"`
}

// FailureReasons returns the reasons of all failed checks.
func (r QualityGateResult) FailureReasons() []string {
	var reasons []string
	for _, c := range r.Checks {
		if !c.Passed {
			reason := c.Reason
			if reason == "" {
				reason = c.Name
			}
			reasons = append(reasons, reason)
		}
	}
	return reasons
}

// ValidationError is a single schema violation.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult is produced once per validator attempt.
type ValidationResult struct {
	Valid  bool              `json:"is_valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// EscalationEvent feeds the metrics recorder when the router moves a
// request up a tier.
type EscalationEvent struct {
	FromTier Tier   `json:"from_tier"`
	ToTier   Tier   `json:"to_tier"`
	Reason   string `json:"reason"`
}

// PackMetadata carries stage info, model identity, integrity hashes, and
// cost accounting for a generation pack.
type PackMetadata struct {
	ResearchID     string          `json:"research_id"`
	StageID        string          `json:"stage_id"`
	StageName      string          `json:"stage_name"`
	Routing        RoutingDecision `json:"routing"`
	PromptHash     string          `json:"prompt_hash"`
	ResponseHash   string          `json:"response_hash"`
	Usage          Usage           `json:"token_usage"`
	LatencyMs      int64           `json:"latency_ms"`
	CostUSD        float64         `json:"cost_usd"`
	PricingVersion string          `json:"pricing_version"`
}

// GenerationPack is the success artifact. A pack is only ever constructed
// when Validation.Valid is true.
type GenerationPack struct {
	PackID     string           `json:"pack_id"`
	Type       string           `json:"type"`
	Metadata   PackMetadata     `json:"metadata"`
	Content    json.RawMessage  `json:"content"`
	Schema     SchemaDescriptor `json:"schema_descriptor"`
	Validation ValidationResult `json:"validation"`
	CreatedAt  time.Time        `json:"created_at"`
}

// PromptLogEntry is one provenance record per router attempt. Rendered
// prompts are redacted before storage; only hashes of responses are kept.
type PromptLogEntry struct {
	EntryID          string    `json:"entry_id"`
	ResearchID       string    `json:"research_id"`
	StageID          string    `json:"stage_id"`
	PromptTemplate   string    `json:"prompt_template"`
	RenderedPrompt   string    `json:"rendered_prompt"`
	SystemPrompt     string    `json:"system_prompt,omitempty"`
	ModelUsed        string    `json:"model_used"`
	TokenCount       int       `json:"token_count"`
	CostUSD          float64   `json:"cost_usd"`
	ResponseHash     string    `json:"response_hash,omitempty"`
	PHIDetected      bool      `json:"phi_detected"`
	PHIRedactedCount int       `json:"phi_redacted_count"`
	CreatedAt        time.Time `json:"created_at"`
}

// Outcome is the result of a generation call: either a pack or an error,
// never both.
type Outcome struct {
	Success        bool             `json:"success"`
	Pack           *GenerationPack  `json:"pack,omitempty"`
	Err            *GenerationError `json:"error,omitempty"`
	RetryCount     int              `json:"retry_count"`
	TotalLatencyMs int64            `json:"total_latency_ms"`
}
