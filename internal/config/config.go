// Package config loads the generation core configuration from YAML and
// environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/halcyonlabs/structgen/internal/core/domain"
)

type Config struct {
	Routing    RoutingConfig    `koanf:"routing"`
	Tiers      TierConfig       `koanf:"tiers"`
	Safety     SafetyConfig     `koanf:"safety"`
	Pricing    PricingConfig    `koanf:"pricing"`
	Generation GenerationConfig `koanf:"generation"`
	Storage    StorageConfig    `koanf:"storage"`
}

// RoutingConfig maps tiers to provider/model pairings and bounds escalation.
type RoutingConfig struct {
	// Models is keyed by tier name: nano, mini, frontier.
	Models map[string]ModelPairing `koanf:"models"`
	// MaxEscalations is how many tiers above the initial tier a single call
	// may climb. The ceiling is always clamped to frontier.
	MaxEscalations int `koanf:"max_escalations"`
}

type ModelPairing struct {
	Provider string `koanf:"provider"`
	Model    string `koanf:"model"`
}

// TierConfig is the task-category to tier table. The table is validated at
// construction time; unknown categories at request time either fail (strict)
// or fall back to Default with a recorded metric.
type TierConfig struct {
	Categories map[string]string `koanf:"categories"`
	Default    string            `koanf:"default"`
	Strict     bool              `koanf:"strict"`
}

type SafetyConfig struct {
	// RejectSeverity is the minimum finding severity that fails the quality
	// gate. Findings below it are accepted with a flag.
	RejectSeverity string `koanf:"reject_severity"`
}

// PricingConfig is the versioned cost table keyed by model identifier.
// Packs record the version in force at generation time.
type PricingConfig struct {
	Version string                  `koanf:"version"`
	Models  map[string]ModelPricing `koanf:"models"`
}

type ModelPricing struct {
	InputPer1K  float64 `koanf:"input_per_1k"`
	OutputPer1K float64 `koanf:"output_per_1k"`
}

type GenerationConfig struct {
	MaxRetries               int     `koanf:"max_retries"`
	RetryOnValidationFailure bool    `koanf:"retry_on_validation_failure"`
	Temperature              float32 `koanf:"temperature"`
	MaxTokens                int     `koanf:"max_tokens"`
	// AttemptTimeout bounds a single provider call, e.g. "60s".
	AttemptTimeout string `koanf:"attempt_timeout"`
}

type StorageConfig struct {
	Type   string       `koanf:"type"` // memory, sqlite
	SQLite SQLiteConfig `koanf:"sqlite"`
}

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Routing: RoutingConfig{
			Models: map[string]ModelPairing{
				"nano":     {Provider: "openai", Model: "gpt-5-nano"},
				"mini":     {Provider: "openai", Model: "gpt-5-mini"},
				"frontier": {Provider: "openai", Model: "gpt-5"},
			},
			MaxEscalations: 1,
		},
		Tiers: TierConfig{
			Categories: map[string]string{
				"classify":         "nano",
				"extract_metadata": "nano",
				"safety_check":     "nano",
				"summarize":        "mini",
				"draft_section":    "mini",
				"synthesize":       "frontier",
				"reason":           "frontier",
				"final_review":     "frontier",
			},
			Default: "mini",
		},
		Safety: SafetyConfig{
			RejectSeverity: "medium",
		},
		Pricing: PricingConfig{
			Version: "2025-08",
			Models: map[string]ModelPricing{
				"gpt-5-nano": {InputPer1K: 0.00005, OutputPer1K: 0.0004},
				"gpt-5-mini": {InputPer1K: 0.00025, OutputPer1K: 0.002},
				"gpt-5":      {InputPer1K: 0.00125, OutputPer1K: 0.01},
			},
		},
		Generation: GenerationConfig{
			MaxRetries:               2,
			RetryOnValidationFailure: true,
			Temperature:              0.2,
			MaxTokens:                4096,
			AttemptTimeout:           "60s",
		},
		Storage: StorageConfig{
			Type: "memory",
		},
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads configuration from the given YAML file (missing file is fine)
// and STRUCTGEN_ environment variables, layered over the defaults.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	// Environment variables override file config: STRUCTGEN_ROUTING__MAX_ESCALATIONS=2
	if err := k.Load(env.Provider("STRUCTGEN_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "STRUCTGEN_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	cfg.Storage.SQLite.Path = substituteEnvVars(cfg.Storage.SQLite.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects tier tables and pairings that would otherwise fail at
// request time.
func (c *Config) Validate() error {
	for category, tierName := range c.Tiers.Categories {
		if _, err := domain.ParseTier(tierName); err != nil {
			return fmt.Errorf("tiers.categories[%s]: %w", category, err)
		}
	}
	if _, err := domain.ParseTier(c.Tiers.Default); err != nil {
		return fmt.Errorf("tiers.default: %w", err)
	}
	for _, tierName := range []string{"nano", "mini", "frontier"} {
		pairing, ok := c.Routing.Models[tierName]
		if !ok || pairing.Provider == "" || pairing.Model == "" {
			return fmt.Errorf("routing.models.%s: provider/model pairing is required", tierName)
		}
	}
	if c.Routing.MaxEscalations < 0 {
		return fmt.Errorf("routing.max_escalations must be >= 0, got %d", c.Routing.MaxEscalations)
	}
	if _, err := domain.ParseSeverity(c.Safety.RejectSeverity); err != nil {
		return fmt.Errorf("safety.reject_severity: %w", err)
	}
	if c.Pricing.Version == "" {
		return fmt.Errorf("pricing.version is required")
	}
	if c.Generation.MaxRetries < 0 {
		return fmt.Errorf("generation.max_retries must be >= 0, got %d", c.Generation.MaxRetries)
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
