// Package replay is a scripted provider adapter that serves canned responses
// in sequence. It lets the full generation pipeline run offline, for local
// schema development and for tests, without any provider transport.
package replay

import (
	"context"
	"fmt"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/tokens"
)

// Adapter implements ports.ProviderAdapter from a fixed response script.
// Once the script is exhausted the last response repeats.
type Adapter struct {
	mu        sync.Mutex
	responses []string
	next      int
	estimator *tokens.Estimator
}

var _ ports.ProviderAdapter = (*Adapter)(nil)

// New creates an adapter serving the given responses in order.
func New(responses ...string) *Adapter {
	return &Adapter{
		responses: responses,
		estimator: tokens.NewEstimator(),
	}
}

// Load reads a YAML script of the form:
//
//	responses:
//	  - '{"title": "..."}'
//	  - '{"title": "...", "sections": []}'
func Load(path string) (*Adapter, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("failed to load replay script: %w", err)
	}

	responses := k.Strings("responses")
	if len(responses) == 0 {
		return nil, fmt.Errorf("replay script %s has no responses", path)
	}

	return New(responses...), nil
}

// Invoke returns the next scripted response with estimated usage.
func (a *Adapter) Invoke(ctx context.Context, req *ports.InvokeRequest) (*ports.InvokeResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	if len(a.responses) == 0 {
		a.mu.Unlock()
		return nil, fmt.Errorf("replay adapter has no responses")
	}
	content := a.responses[a.next]
	if a.next < len(a.responses)-1 {
		a.next++
	}
	a.mu.Unlock()

	input := a.estimator.Estimate(req.Model, req.SystemPrompt+req.Prompt)
	output := a.estimator.Estimate(req.Model, content)

	return &ports.InvokeResult{
		Content: content,
		Usage: domain.Usage{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
		},
		Model:    req.Model,
		Provider: "replay",
	}, nil
}
