// Package generate drives the outer structured-output loop: it calls the
// model router, parses and validates the response against the target schema,
// and re-prompts with violation feedback until the retry budget runs out.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/hash"
	"github.com/halcyonlabs/structgen/internal/pricing"
	"github.com/halcyonlabs/structgen/internal/provenance"
	"github.com/halcyonlabs/structgen/internal/router"
	"github.com/halcyonlabs/structgen/internal/tokens"
)

// Generator turns a task plus target schema into a schema-conformant pack.
type Generator struct {
	router         *router.Router
	ledger         *provenance.Ledger
	metrics        ports.MetricsRecorder
	pricing        *pricing.Registry
	estimator      *tokens.Estimator
	defaults       config.GenerationConfig
	attemptTimeout time.Duration
	logger         *slog.Logger
	tracer         trace.Tracer
}

// New creates a generator with configured defaults.
func New(
	rt *router.Router,
	ledger *provenance.Ledger,
	metrics ports.MetricsRecorder,
	registry *pricing.Registry,
	cfg config.GenerationConfig,
	logger *slog.Logger,
) (*Generator, error) {
	if rt == nil {
		return nil, fmt.Errorf("router is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	var attemptTimeout time.Duration
	if cfg.AttemptTimeout != "" {
		d, err := time.ParseDuration(cfg.AttemptTimeout)
		if err != nil {
			return nil, fmt.Errorf("generation.attempt_timeout: %w", err)
		}
		attemptTimeout = d
	}

	return &Generator{
		router:         rt,
		ledger:         ledger,
		metrics:        metrics,
		pricing:        registry,
		estimator:      tokens.NewEstimator(),
		defaults:       cfg,
		attemptTimeout: attemptTimeout,
		logger:         logger,
		tracer:         otel.Tracer("structgen"),
	}, nil
}

// attemptKind is the tagged outcome of a single attempt. Per-attempt control
// flow is driven by this union rather than boolean flags.
type attemptKind int

const (
	attemptValid attemptKind = iota
	attemptInvalidRetry
	attemptInvalidTerminal
	attemptGateFailed
)

type attemptResult struct {
	kind       attemptKind
	content    json.RawMessage           // attemptValid
	errors     []domain.ValidationError  // invalid kinds
	gate       domain.QualityGateResult  // attemptGateFailed
	promptHash string
	entry      domain.PromptLogEntry
	response   *router.Response
}

// Generate runs up to maxRetries+1 attempts and returns exactly one pack or
// one error outcome. Any non-success outcome means no artifact was produced.
func (g *Generator) Generate(ctx context.Context, task string, schema domain.SchemaDescriptor, stage domain.StageContext, opts domain.Options) *domain.Outcome {
	start := time.Now()
	category := strings.ToLower(strings.TrimSpace(stage.StageName))

	ctx, span := g.tracer.Start(ctx, "structgen.generate", trace.WithAttributes(
		attribute.String("schema", schema.Name),
		attribute.String("task_category", category),
		attribute.String("research_id", stage.ResearchID),
	))
	defer span.End()

	maxRetries := g.defaults.MaxRetries
	if opts.MaxRetries != nil && *opts.MaxRetries >= 0 {
		maxRetries = *opts.MaxRetries
	}
	retryOnFailure := g.defaults.RetryOnValidationFailure
	if opts.RetryOnValidationFailure != nil {
		retryOnFailure = *opts.RetryOnValidationFailure
	}
	if !retryOnFailure {
		maxRetries = 0
	}

	temperature := g.defaults.Temperature
	if opts.Temperature != nil {
		temperature = *opts.Temperature
	}
	maxTokens := g.defaults.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	attemptTimeout := g.attemptTimeout
	if opts.AttemptTimeout > 0 {
		attemptTimeout = opts.AttemptTimeout
	}

	compiled, err := CompileSchema(schema)
	if err != nil {
		return g.fail(ctx, domain.ErrGenerationFailed(err.Error()), 0, start, category, domain.RoutingDecision{}, 0)
	}

	prompt := BuildPrompt(task, stage)

	var (
		lastErrors  []domain.ValidationError
		lastRouting domain.RoutingDecision
		totalCost   float64
	)

	for attempt := 0; ; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return g.fail(ctx, domain.ErrCancelled("generation aborted: "+cerr.Error()),
				attempt, start, category, lastRouting, totalCost)
		}

		systemPrompt := BuildSystemPrompt(schema, lastErrors)

		resp, rerr := g.router.Route(ctx, &router.Request{
			Prompt:         prompt,
			SystemPrompt:   systemPrompt,
			TaskCategory:   category,
			ResponseFormat: "json",
			Temperature:    temperature,
			MaxTokens:      maxTokens,
			AttemptTimeout: attemptTimeout,
		})
		if rerr != nil {
			if ctx.Err() != nil {
				return g.fail(ctx, domain.ErrCancelled("generation aborted: "+ctx.Err().Error()),
					attempt, start, category, lastRouting, totalCost)
			}
			if errors.Is(rerr, domain.ErrProviderTimeout) {
				// A per-attempt timeout consumes the validation-retry budget.
				// It is not model output, so it contributes no prompt feedback;
				// lastErrors keeps reflecting the last actual response.
				g.recordAttempt(ctx, stage, prompt, systemPrompt, "", nil, 0)
				if attempt < maxRetries {
					continue
				}
				return g.fail(ctx, domain.ErrGenerationFailed("provider attempts timed out").WithDetails(
					[]domain.ValidationError{{Path: "", Message: rerr.Error(), Code: "provider_timeout"}}),
					attempt, start, category, lastRouting, totalCost)
			}
			return g.fail(ctx, domain.ErrGenerationFailed(rerr.Error()),
				attempt, start, category, lastRouting, totalCost)
		}

		totalCost += resp.CostUSD
		lastRouting = resp.Routing

		result := g.evaluate(ctx, compiled, resp, stage, prompt, systemPrompt, attempt, maxRetries)

		switch result.kind {
		case attemptValid:
			pack := g.assemble(schema, stage, result, totalCost, start)
			g.record(ctx, category, resp.Routing, "success", totalCost, time.Since(start).Milliseconds())
			span.SetAttributes(attribute.Int("attempts", attempt+1))
			return &domain.Outcome{
				Success:        true,
				Pack:           pack,
				RetryCount:     attempt,
				TotalLatencyMs: time.Since(start).Milliseconds(),
			}

		case attemptGateFailed:
			// Terminal: quality-gate rejection survived escalation to the
			// ceiling tier. Not a retryable condition.
			msg := "quality gate rejected response: " + strings.Join(result.gate.FailureReasons(), "; ")
			return g.fail(ctx, domain.ErrGenerationFailed(msg),
				attempt, start, category, resp.Routing, totalCost)

		case attemptInvalidTerminal:
			return g.fail(ctx, domain.ErrValidationFailed("response did not conform to schema").WithDetails(result.errors),
				attempt, start, category, resp.Routing, totalCost)

		case attemptInvalidRetry:
			lastErrors = result.errors
			g.logger.Info("validation failed, retrying with feedback",
				slog.String("schema", schema.Name),
				slog.Int("attempt", attempt+1),
				slog.Int("violations", len(result.errors)),
			)
		}
	}
}

// evaluate logs provenance for the attempt and classifies it.
func (g *Generator) evaluate(
	ctx context.Context,
	compiled *jsonschema.Schema,
	resp *router.Response,
	stage domain.StageContext,
	prompt, systemPrompt string,
	attempt, maxRetries int,
) attemptResult {
	entry := g.recordAttempt(ctx, stage, prompt, systemPrompt, resp.Routing.Model, resp, resp.CostUSD)
	promptHash := hash.DigestText(entry.RenderedPrompt)

	if !resp.Gate.Passed {
		return attemptResult{kind: attemptGateFailed, gate: resp.Gate, promptHash: promptHash, entry: entry, response: resp}
	}

	raw, perr := ExtractJSON(resp.Content)
	var validation domain.ValidationResult
	if perr != nil {
		validation = domain.ValidationResult{
			Valid:  false,
			Errors: []domain.ValidationError{{Path: "", Message: perr.Error(), Code: "parse_error"}},
		}
	} else {
		validation = ValidateDocument(compiled, raw)
	}

	if validation.Valid {
		return attemptResult{kind: attemptValid, content: raw, promptHash: promptHash, entry: entry, response: resp}
	}
	if attempt >= maxRetries {
		return attemptResult{kind: attemptInvalidTerminal, errors: validation.Errors, promptHash: promptHash, entry: entry, response: resp}
	}
	return attemptResult{kind: attemptInvalidRetry, errors: validation.Errors, promptHash: promptHash, entry: entry, response: resp}
}

// recordAttempt appends one provenance entry and returns it as stored
// (redacted). resp may be nil when the provider call never returned content.
func (g *Generator) recordAttempt(
	ctx context.Context,
	stage domain.StageContext,
	prompt, systemPrompt, model string,
	resp *router.Response,
	costUSD float64,
) domain.PromptLogEntry {
	if g.ledger == nil {
		return domain.PromptLogEntry{RenderedPrompt: prompt, SystemPrompt: systemPrompt}
	}

	tokenCount := 0
	responseHash := ""
	if resp != nil {
		tokenCount = resp.Usage.InputTokens
		if resp.Content != "" {
			responseHash = hash.DigestContent(resp.Content)
		}
	}
	if tokenCount == 0 {
		tokenCount = g.estimator.Estimate(model, systemPrompt+prompt)
	}

	return g.ledger.Record(ctx, domain.PromptLogEntry{
		ResearchID:     stage.ResearchID,
		StageID:        stage.StageID,
		PromptTemplate: PromptTemplateID,
		RenderedPrompt: prompt,
		SystemPrompt:   systemPrompt,
		ModelUsed:      model,
		TokenCount:     tokenCount,
		CostUSD:        costUSD,
		ResponseHash:   responseHash,
	})
}

func (g *Generator) assemble(schema domain.SchemaDescriptor, stage domain.StageContext, result attemptResult, totalCost float64, start time.Time) *domain.GenerationPack {
	pricingVersion := ""
	if g.pricing != nil {
		pricingVersion = g.pricing.Version()
	}

	return &domain.GenerationPack{
		PackID: "pack_" + uuid.New().String(),
		Type:   schema.Name,
		Metadata: domain.PackMetadata{
			ResearchID:     stage.ResearchID,
			StageID:        stage.StageID,
			StageName:      stage.StageName,
			Routing:        result.response.Routing,
			PromptHash:     result.promptHash,
			ResponseHash:   result.entry.ResponseHash,
			Usage:          result.response.Usage,
			LatencyMs:      time.Since(start).Milliseconds(),
			CostUSD:        totalCost,
			PricingVersion: pricingVersion,
		},
		Content:    result.content,
		Schema:     schema,
		Validation: domain.ValidationResult{Valid: true},
		CreatedAt:  time.Now().UTC(),
	}
}

func (g *Generator) fail(ctx context.Context, genErr *domain.GenerationError, attempt int, start time.Time, category string, routing domain.RoutingDecision, totalCost float64) *domain.Outcome {
	outcome := strings.ToLower(string(genErr.Code))
	latencyMs := time.Since(start).Milliseconds()
	g.record(ctx, category, routing, outcome, totalCost, latencyMs)

	g.logger.Warn("generation failed",
		slog.String("code", string(genErr.Code)),
		slog.String("task_category", category),
		slog.Int("retry_count", attempt),
	)

	return &domain.Outcome{
		Success:        false,
		Err:            genErr,
		RetryCount:     attempt,
		TotalLatencyMs: latencyMs,
	}
}

func (g *Generator) record(ctx context.Context, category string, routing domain.RoutingDecision, outcome string, costUSD float64, latencyMs int64) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordRequest(ctx, ports.RequestMetric{
		Provider:     routing.Provider,
		Model:        routing.Model,
		Tier:         routing.FinalTier,
		TaskCategory: category,
		Outcome:      outcome,
		CostUSD:      costUSD,
		LatencyMs:    latencyMs,
	})
}
