// Package safety detects and redacts identifiable sensitive content in text.
//
// The scanner is used with two policies: the quality gate rejects content at
// or above a configured severity, while the provenance ledger redacts on any
// nonzero finding count since logged text outlives a single request.
package safety

import (
	"regexp"
	"sort"

	"github.com/halcyonlabs/structgen/internal/core/domain"
)

// FindingType identifies the kind of sensitive value detected.
type FindingType string

const (
	FindingSSN        FindingType = "SSN"
	FindingMRN        FindingType = "MRN"
	FindingCreditCard FindingType = "CREDIT_CARD"
	FindingDOB        FindingType = "DOB"
	FindingPhone      FindingType = "PHONE"
	FindingEmail      FindingType = "EMAIL"
)

// Finding is one detected sensitive span. Location is byte offsets into the
// scanned text; the raw value is deliberately not carried.
type Finding struct {
	Type     FindingType
	Severity domain.Severity
	Start    int
	End      int
}

type pattern struct {
	typ      FindingType
	severity domain.Severity
	re       *regexp.Regexp
}

// Scanner detects sensitive spans with a fixed pattern table. It is
// stateless and safe for concurrent use.
type Scanner struct {
	patterns []pattern
}

// NewScanner creates a scanner with the built-in pattern table.
func NewScanner() *Scanner {
	return &Scanner{
		patterns: []pattern{
			{FindingSSN, domain.SeverityHigh, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
			{FindingMRN, domain.SeverityHigh, regexp.MustCompile(`(?i)\bMRN[:#]?\s*\d{6,10}\b`)},
			{FindingCreditCard, domain.SeverityHigh, regexp.MustCompile(`\b\d{4}[ -]?\d{4}[ -]?\d{4}[ -]?\d{4}\b`)},
			{FindingDOB, domain.SeverityMedium, regexp.MustCompile(`(?i)\b(?:DOB|date of birth)[:\s]+\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)},
			{FindingPhone, domain.SeverityMedium, regexp.MustCompile(`\b(?:\+?1[-. ])?\(?\d{3}\)?[-. ]\d{3}[-. ]\d{4}\b`)},
			{FindingEmail, domain.SeverityLow, regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		},
	}
}

// Scan returns all findings in the text, ordered by position. Overlapping
// matches keep the higher-severity finding.
func (s *Scanner) Scan(text string) []Finding {
	var findings []Finding
	for _, p := range s.patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			findings = append(findings, Finding{
				Type:     p.typ,
				Severity: p.severity,
				Start:    loc[0],
				End:      loc[1],
			})
		}
	}

	// Patterns are ordered by severity, so earlier findings win overlaps.
	var kept []Finding
	for _, f := range findings {
		overlaps := false
		for _, k := range kept {
			if f.Start < k.End && k.Start < f.End {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, f)
		}
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].Start < kept[j].Start })
	return kept
}

// Redact replaces every finding with a fixed type-tagged placeholder. No
// part of the original value survives in the output.
func (s *Scanner) Redact(text string) (string, []Finding) {
	findings := s.Scan(text)
	if len(findings) == 0 {
		return text, nil
	}

	out := text
	for i := len(findings) - 1; i >= 0; i-- {
		f := findings[i]
		out = out[:f.Start] + "[REDACTED:" + string(f.Type) + "]" + out[f.End:]
	}
	return out, findings
}

// MaxSeverity returns the highest severity among findings, or ok=false when
// there are none.
func MaxSeverity(findings []Finding) (domain.Severity, bool) {
	if len(findings) == 0 {
		return 0, false
	}
	max := findings[0].Severity
	for _, f := range findings[1:] {
		if f.Severity > max {
			max = f.Severity
		}
	}
	return max, true
}
