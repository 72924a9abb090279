package provenance

import (
	"context"
	"sync"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/core/ports"
)

// MemoryStore is a process-lifetime, concurrency-safe provenance store keyed
// by research session. Hosts needing durability inject the sqlite adapter or
// their own ports.ProvenanceStore instead.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]domain.PromptLogEntry
}

var _ ports.ProvenanceStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]domain.PromptLogEntry)}
}

// Append adds an entry to the session's log.
func (s *MemoryStore) Append(ctx context.Context, entry domain.PromptLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ResearchID] = append(s.entries[entry.ResearchID], entry)
	return nil
}

// List returns a copy of the session's log in append order.
func (s *MemoryStore) List(ctx context.Context, researchID string) ([]domain.PromptLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entries[researchID]
	out := make([]domain.PromptLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
