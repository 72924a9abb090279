// Package provenance maintains the append-only, per-research-session record
// of generation attempts used for audit and reproducibility.
package provenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
	"github.com/halcyonlabs/structgen/internal/safety"
)

// Ledger redacts and appends prompt log entries to an injected store.
// Storage failures are logged, never propagated to the request path.
type Ledger struct {
	scanner *safety.Scanner
	store   ports.ProvenanceStore
	logger  *slog.Logger
}

// NewLedger creates a ledger writing to store.
func NewLedger(scanner *safety.Scanner, store ports.ProvenanceStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{scanner: scanner, store: store, logger: logger}
}

// Record redacts the entry's prompts, assigns identity, appends it, and
// returns the entry exactly as stored. Logged text is redacted on any
// nonzero finding count regardless of severity, since it is retained far
// longer than a single request.
func (l *Ledger) Record(ctx context.Context, entry domain.PromptLogEntry) domain.PromptLogEntry {
	redactedPrompt, promptFindings := l.scanner.Redact(entry.RenderedPrompt)
	redactedSystem, systemFindings := l.scanner.Redact(entry.SystemPrompt)

	entry.RenderedPrompt = redactedPrompt
	entry.SystemPrompt = redactedSystem
	entry.PHIRedactedCount = len(promptFindings) + len(systemFindings)
	entry.PHIDetected = entry.PHIRedactedCount > 0

	if entry.EntryID == "" {
		entry.EntryID = "att_" + uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	if entry.PHIDetected {
		// Counts and finding types only; raw values never reach the log.
		l.logger.Warn("sensitive content redacted from prompt log entry",
			slog.String("entry_id", entry.EntryID),
			slog.String("research_id", entry.ResearchID),
			slog.String("stage_id", entry.StageID),
			slog.Int("redacted_count", entry.PHIRedactedCount),
			slog.Any("finding_types", findingTypes(promptFindings, systemFindings)),
		)
	}

	if l.store != nil {
		if err := l.store.Append(ctx, entry); err != nil {
			l.logger.Error("failed to append prompt log entry",
				slog.String("entry_id", entry.EntryID),
				slog.String("research_id", entry.ResearchID),
				slog.String("error", err.Error()),
			)
		}
	}

	return entry
}

// List returns the ordered log for a research session.
func (l *Ledger) List(ctx context.Context, researchID string) ([]domain.PromptLogEntry, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.List(ctx, researchID)
}

func findingTypes(groups ...[]safety.Finding) []string {
	seen := make(map[safety.FindingType]struct{})
	var types []string
	for _, findings := range groups {
		for _, f := range findings {
			if _, ok := seen[f.Type]; ok {
				continue
			}
			seen[f.Type] = struct{}{}
			types = append(types, string(f.Type))
		}
	}
	return types
}
