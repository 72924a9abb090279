package tier

import (
	"testing"

	"github.com/halcyonlabs/structgen/internal/config"
	"github.com/halcyonlabs/structgen/internal/core/domain"
)

func testTable() config.TierConfig {
	return config.TierConfig{
		Categories: map[string]string{
			"classify":   "nano",
			"summarize":  "mini",
			"synthesize": "frontier",
		},
		Default: "mini",
	}
}

func TestNewSelectorRejectsBadTierNames(t *testing.T) {
	cfg := testTable()
	cfg.Categories["broken"] = "turbo"
	if _, err := NewSelector(cfg); err == nil {
		t.Fatal("NewSelector() accepted unknown tier name in category table")
	}

	cfg = testTable()
	cfg.Default = "xl"
	if _, err := NewSelector(cfg); err == nil {
		t.Fatal("NewSelector() accepted unknown default tier")
	}
}

func TestSelect(t *testing.T) {
	s, err := NewSelector(testTable())
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}

	tests := []struct {
		category  string
		want      domain.Tier
		wantKnown bool
	}{
		{"classify", domain.TierNano, true},
		{"summarize", domain.TierMini, true},
		{"synthesize", domain.TierFrontier, true},
		{"  Classify ", domain.TierNano, true},
		{"unheard_of", domain.TierMini, false},
		{"", domain.TierMini, false},
	}

	for _, tt := range tests {
		t.Run(tt.category, func(t *testing.T) {
			got, known, err := s.Select(tt.category)
			if err != nil {
				t.Fatalf("Select(%q) error: %v", tt.category, err)
			}
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("Select(%q) = %v, %v, want %v, %v", tt.category, got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestSelectStrict(t *testing.T) {
	cfg := testTable()
	cfg.Strict = true
	s, err := NewSelector(cfg)
	if err != nil {
		t.Fatalf("NewSelector() error: %v", err)
	}

	if _, _, err := s.Select("unheard_of"); err == nil {
		t.Error("Select() in strict mode returned no error for unknown category")
	}
	if got, _, err := s.Select("classify"); err != nil || got != domain.TierNano {
		t.Errorf("Select(classify) = %v, %v, want nano, nil", got, err)
	}
}
