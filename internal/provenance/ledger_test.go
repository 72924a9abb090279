package provenance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/halcyonlabs/structgen/internal/core/domain"
	"github.com/halcyonlabs/structgen/internal/safety"
)

func TestRecordAssignsIdentity(t *testing.T) {
	store := NewMemoryStore()
	l := NewLedger(safety.NewScanner(), store, nil)

	entry := l.Record(context.Background(), domain.PromptLogEntry{
		ResearchID:     "res-1",
		StageID:        "stage-1",
		PromptTemplate: "structured-output/v1",
		RenderedPrompt: "summarize the draft",
	})

	if !strings.HasPrefix(entry.EntryID, "att_") {
		t.Errorf("EntryID = %q, want att_ prefix", entry.EntryID)
	}
	if entry.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}
	if entry.PHIDetected || entry.PHIRedactedCount != 0 {
		t.Errorf("clean prompt flagged: detected=%v count=%d", entry.PHIDetected, entry.PHIRedactedCount)
	}

	stored, err := store.List(context.Background(), "res-1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(stored) != 1 || stored[0].EntryID != entry.EntryID {
		t.Errorf("stored = %+v", stored)
	}
}

func TestRecordRedactsBeforeStorage(t *testing.T) {
	store := NewMemoryStore()
	l := NewLedger(safety.NewScanner(), store, nil)

	entry := l.Record(context.Background(), domain.PromptLogEntry{
		ResearchID:     "res-2",
		StageID:        "stage-1",
		RenderedPrompt: "summarize record for patient 123-45-6789",
		SystemPrompt:   "contact jane@example.org on completion",
	})

	if !entry.PHIDetected {
		t.Fatal("PHIDetected = false, want true")
	}
	if entry.PHIRedactedCount != 2 {
		t.Errorf("PHIRedactedCount = %d, want 2", entry.PHIRedactedCount)
	}
	if strings.Contains(entry.RenderedPrompt, "123-45-6789") {
		t.Errorf("returned prompt still carries raw SSN: %q", entry.RenderedPrompt)
	}
	if !strings.Contains(entry.RenderedPrompt, "[REDACTED:SSN]") {
		t.Errorf("returned prompt missing placeholder: %q", entry.RenderedPrompt)
	}

	stored, err := store.List(context.Background(), "res-2")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("stored %d entries, want 1", len(stored))
	}
	if strings.Contains(stored[0].RenderedPrompt, "123-45-6789") ||
		strings.Contains(stored[0].SystemPrompt, "jane@example.org") {
		t.Error("raw sensitive values reached the store")
	}
}

type failingStore struct{}

func (failingStore) Append(ctx context.Context, entry domain.PromptLogEntry) error {
	return fmt.Errorf("disk full")
}

func (failingStore) List(ctx context.Context, researchID string) ([]domain.PromptLogEntry, error) {
	return nil, fmt.Errorf("disk full")
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	l := NewLedger(safety.NewScanner(), failingStore{}, nil)

	entry := l.Record(context.Background(), domain.PromptLogEntry{
		ResearchID:     "res-3",
		RenderedPrompt: "summarize the draft",
	})
	if entry.EntryID == "" {
		t.Error("Record() did not return a usable entry after store failure")
	}
}

func TestMemoryStoreAppendOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := store.Append(ctx, domain.PromptLogEntry{
			EntryID:    fmt.Sprintf("att_%d", i),
			ResearchID: "res-1",
		})
		if err != nil {
			t.Fatalf("Append() error: %v", err)
		}
	}
	if err := store.Append(ctx, domain.PromptLogEntry{EntryID: "att_other", ResearchID: "res-2"}); err != nil {
		t.Fatalf("Append() error: %v", err)
	}

	entries, err := store.List(ctx, "res-1")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("List() = %d entries, want 3", len(entries))
	}
	for i, e := range entries {
		if e.EntryID != fmt.Sprintf("att_%d", i) {
			t.Errorf("entries[%d] = %s, out of append order", i, e.EntryID)
		}
	}

	// Mutating the returned slice must not affect the store.
	entries[0].EntryID = "mutated"
	again, _ := store.List(ctx, "res-1")
	if again[0].EntryID != "att_0" {
		t.Error("List() returned shared backing storage")
	}
}

func TestMemoryStoreConcurrentAppend(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	const goroutines = 8
	const perGoroutine = 25

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			researchID := fmt.Sprintf("res-%d", g)
			for i := 0; i < perGoroutine; i++ {
				err := store.Append(ctx, domain.PromptLogEntry{
					EntryID:    fmt.Sprintf("att_%d_%d", g, i),
					ResearchID: researchID,
				})
				if err != nil {
					t.Errorf("Append() error: %v", err)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	for g := 0; g < goroutines; g++ {
		entries, err := store.List(ctx, fmt.Sprintf("res-%d", g))
		if err != nil {
			t.Fatalf("List() error: %v", err)
		}
		if len(entries) != perGoroutine {
			t.Fatalf("session res-%d has %d entries, want %d", g, len(entries), perGoroutine)
		}
		// Appends within one session came from one goroutine, so the log
		// must preserve their order.
		for i, e := range entries {
			if e.EntryID != fmt.Sprintf("att_%d_%d", g, i) {
				t.Errorf("res-%d entries[%d] = %s, out of append order", g, i, e.EntryID)
			}
		}
	}
}

func TestLedgerConcurrentRecord(t *testing.T) {
	store := NewMemoryStore()
	l := NewLedger(safety.NewScanner(), store, nil)
	ctx := context.Background()

	const goroutines = 8
	const perGoroutine = 10

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				l.Record(ctx, domain.PromptLogEntry{
					ResearchID:     "res-shared",
					StageID:        fmt.Sprintf("stage-%d", g),
					RenderedPrompt: "summarize record for patient 123-45-6789",
				})
			}
		}(g)
	}
	wg.Wait()

	entries, err := store.List(ctx, "res-shared")
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(entries) != goroutines*perGoroutine {
		t.Fatalf("session has %d entries, want %d", len(entries), goroutines*perGoroutine)
	}
	seen := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.EntryID]; dup {
			t.Errorf("duplicate entry id %s", e.EntryID)
		}
		seen[e.EntryID] = struct{}{}
		if strings.Contains(e.RenderedPrompt, "123-45-6789") {
			t.Error("raw SSN reached the store under concurrency")
		}
	}
}
