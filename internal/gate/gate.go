// Package gate implements the quality gate applied to every candidate model
// response before it reaches the outer validator.
package gate

import (
	"fmt"
	"strings"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/safety"
)

// Gate evaluates candidate responses. A failed gate triggers tier
// escalation in the router.
type Gate struct {
	scanner  *safety.Scanner
	rejectAt domain.Severity
}

// New creates a gate rejecting findings at or above rejectAt.
func New(scanner *safety.Scanner, rejectAt domain.Severity) *Gate {
	return &Gate{scanner: scanner, rejectAt: rejectAt}
}

// Evaluate runs all checks against the response content. wantJSON enables
// the response-format sanity check for structured output requests.
func (g *Gate) Evaluate(content string, wantJSON bool) domain.QualityGateResult {
	checks := []domain.GateCheck{
		g.checkNonEmpty(content),
		g.checkContentSafety(content),
	}
	if wantJSON {
		checks = append(checks, g.checkResponseFormat(content))
	}

	passed := true
	for _, c := range checks {
		if !c.Passed {
			passed = false
		}
	}

	return domain.QualityGateResult{Passed: passed, Checks: checks}
}

func (g *Gate) checkNonEmpty(content string) domain.GateCheck {
	check := domain.GateCheck{Name: "non_empty_content", Passed: true}
	if strings.TrimSpace(content) == "" {
		check.Passed = false
		check.Reason = "model returned empty content"
	}
	return check
}

func (g *Gate) checkContentSafety(content string) domain.GateCheck {
	check := domain.GateCheck{Name: "content_safety", Passed: true}

	findings := g.scanner.Scan(content)
	max, any := safety.MaxSeverity(findings)
	if !any {
		return check
	}

	if max >= g.rejectAt {
		check.Passed = false
		check.Reason = fmt.Sprintf("content-safety findings at severity %s (%d total)", max, len(findings))
		return check
	}

	// Below the threshold: accept with a flag so the caller can see it.
	check.Reason = fmt.Sprintf("low-severity findings accepted (%d total)", len(findings))
	return check
}

// checkResponseFormat is a cheap sanity check that the response plausibly
// carries a JSON document. Real parsing and schema validation happen in the
// outer validator.
func (g *Gate) checkResponseFormat(content string) domain.GateCheck {
	check := domain.GateCheck{Name: "response_format", Passed: true}
	if !strings.ContainsAny(content, "{[") {
		check.Passed = false
		check.Reason = "response contains no JSON document"
	}
	return check
}
