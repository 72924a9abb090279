// Package sqlite provides a durable SQLite-backed provenance store.
package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
)

// Store implements ports.ProvenanceStore on SQLite.
type Store struct {
	db *sqlx.DB
}

var _ ports.ProvenanceStore = (*Store)(nil)

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute pragma: %w", err)
		}
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS prompt_log (
seq INTEGER PRIMARY KEY AUTOINCREMENT,
entry_id TEXT NOT NULL UNIQUE,
research_id TEXT NOT NULL,
stage_id TEXT NOT NULL,
prompt_template TEXT NOT NULL,
rendered_prompt TEXT NOT NULL,
system_prompt TEXT,
model_used TEXT NOT NULL,
token_count INTEGER NOT NULL,
cost_usd REAL NOT NULL,
response_hash TEXT,
phi_detected INTEGER NOT NULL DEFAULT 0,
phi_redacted_count INTEGER NOT NULL DEFAULT 0,
created_at TIMESTAMP NOT NULL
)`)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_prompt_log_research ON prompt_log (research_id, seq)`)
	return err
}

type row struct {
	EntryID          string    `db:"entry_id"`
	ResearchID       string    `db:"research_id"`
	StageID          string    `db:"stage_id"`
	PromptTemplate   string    `db:"prompt_template"`
	RenderedPrompt   string    `db:"rendered_prompt"`
	SystemPrompt     string    `db:"system_prompt"`
	ModelUsed        string    `db:"model_used"`
	TokenCount       int       `db:"token_count"`
	CostUSD          float64   `db:"cost_usd"`
	ResponseHash     string    `db:"response_hash"`
	PHIDetected      bool      `db:"phi_detected"`
	PHIRedactedCount int       `db:"phi_redacted_count"`
	CreatedAt        time.Time `db:"created_at"`
}

// Append inserts an entry. The log is append-only; there is no update path.
func (s *Store) Append(ctx context.Context, entry domain.PromptLogEntry) error {
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO prompt_log (
entry_id, research_id, stage_id, prompt_template, rendered_prompt,
system_prompt, model_used, token_count, cost_usd, response_hash,
phi_detected, phi_redacted_count, created_at
) VALUES (
:entry_id, :research_id, :stage_id, :prompt_template, :rendered_prompt,
:system_prompt, :model_used, :token_count, :cost_usd, :response_hash,
:phi_detected, :phi_redacted_count, :created_at
)`, row{
		EntryID:          entry.EntryID,
		ResearchID:       entry.ResearchID,
		StageID:          entry.StageID,
		PromptTemplate:   entry.PromptTemplate,
		RenderedPrompt:   entry.RenderedPrompt,
		SystemPrompt:     entry.SystemPrompt,
		ModelUsed:        entry.ModelUsed,
		TokenCount:       entry.TokenCount,
		CostUSD:          entry.CostUSD,
		ResponseHash:     entry.ResponseHash,
		PHIDetected:      entry.PHIDetected,
		PHIRedactedCount: entry.PHIRedactedCount,
		CreatedAt:        entry.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to insert prompt log entry: %w", err)
	}
	return nil
}

// List returns a session's entries in append order.
func (s *Store) List(ctx context.Context, researchID string) ([]domain.PromptLogEntry, error) {
	var rows []row
	err := s.db.SelectContext(ctx, &rows,
		`SELECT entry_id, research_id, stage_id, prompt_template, rendered_prompt,
system_prompt, model_used, token_count, cost_usd, response_hash,
phi_detected, phi_redacted_count, created_at
FROM prompt_log WHERE research_id = ? ORDER BY seq`, researchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prompt log: %w", err)
	}

	entries := make([]domain.PromptLogEntry, len(rows))
	for i, r := range rows {
		entries[i] = domain.PromptLogEntry{
			EntryID:          r.EntryID,
			ResearchID:       r.ResearchID,
			StageID:          r.StageID,
			PromptTemplate:   r.PromptTemplate,
			RenderedPrompt:   r.RenderedPrompt,
			SystemPrompt:     r.SystemPrompt,
			ModelUsed:        r.ModelUsed,
			TokenCount:       r.TokenCount,
			CostUSD:          r.CostUSD,
			ResponseHash:     r.ResponseHash,
			PHIDetected:      r.PHIDetected,
			PHIRedactedCount: r.PHIRedactedCount,
			CreatedAt:        r.CreatedAt,
		}
	}
	return entries, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
