// Package tier maps task categories to initial model tiers.
package tier

import (
	"fmt"
	"strings"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
)

// Selector is a total, validated mapping from task category to initial tier.
// It is read-only after construction and safe for concurrent use.
type Selector struct {
	categories map[string]domain.Tier
	fallback   domain.Tier
	strict     bool
}

// NewSelector validates the category table up front so unknown tier names
// fail at startup rather than at request time.
func NewSelector(cfg config.TierConfig) (*Selector, error) {
	categories := make(map[string]domain.Tier, len(cfg.Categories))
	for category, tierName := range cfg.Categories {
		t, err := domain.ParseTier(tierName)
		if err != nil {
			return nil, fmt.Errorf("tier table entry %q: %w", category, err)
		}
		categories[strings.ToLower(category)] = t
	}

	fallback, err := domain.ParseTier(cfg.Default)
	if err != nil {
		return nil, fmt.Errorf("tier table default: %w", err)
	}

	return &Selector{
		categories: categories,
		fallback:   fallback,
		strict:     cfg.Strict,
	}, nil
}

// Select resolves the initial tier for a task category. known is false when
// the category is absent from the table; in strict mode that is an error,
// otherwise the configured default is returned so the caller can record the
// fallback.
func (s *Selector) Select(category string) (t domain.Tier, known bool, err error) {
	if t, ok := s.categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return t, true, nil
	}
	if s.strict {
		return 0, false, fmt.Errorf("unknown task category: %q", category)
	}
	return s.fallback, false, nil
}
