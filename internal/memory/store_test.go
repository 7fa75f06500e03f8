package memory

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/diogenes-labs/diogenes/internal/config"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(config.MemoryConfig{
		Database:   filepath.Join(t.TempDir(), "memories.db"),
		MaxContext: 10,
	}, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, "user-1", TypeFact, "employer", "works at a physics lab", PriorityMedium, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !strings.HasPrefix(added.ID, "mem_") {
		t.Fatalf("unexpected id %q", added.ID)
	}

	got, err := s.Get(ctx, added.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Value != "works at a physics lab" {
		t.Fatalf("unexpected value %q", got.Value)
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", got.AccessCount)
	}

	// Second read bumps the counter again.
	got, err = s.Get(ctx, added.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.AccessCount != 2 {
		t.Fatalf("expected access count 2, got %d", got.AccessCount)
	}
}

func TestGetUnknownMemory(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "mem_missing")
	if !errors.Is(err, ErrMemoryNotFound) {
		t.Fatalf("expected ErrMemoryNotFound, got %v", err)
	}
}

func TestSoftDeleteHidesMemory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, "user-1", TypeFact, "k", "v", PriorityLow, "")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Delete(ctx, added.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, added.ID); !errors.Is(err, ErrMemoryNotFound) {
		t.Fatalf("expected ErrMemoryNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, added.ID); err != nil {
		// A second delete touches the already-inactive row.
		t.Fatalf("repeat delete: %v", err)
	}
}

func TestListForUserPriorityOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, p := range []Priority{PriorityLow, PriorityCritical, PriorityMedium, PriorityHigh} {
		if _, err := s.Add(ctx, "user-1", TypeFact, string(p), "v", p, ""); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	memories, err := s.ListForUser(ctx, "user-1", ListOptions{})
	if err != nil {
		t.Fatalf("ListForUser: %v", err)
	}
	want := []Priority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}
	if len(memories) != len(want) {
		t.Fatalf("expected %d memories, got %d", len(want), len(memories))
	}
	for i, p := range want {
		if memories[i].Priority != p {
			t.Fatalf("position %d: expected %q, got %q", i, p, memories[i].Priority)
		}
	}
}

func TestSearchMatchesKeyAndValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "user-1", TypeFact, "field", "quantum computing researcher", PriorityMedium, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, "user-1", TypePreference, "citation style", "prefers footnotes", PriorityMedium, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := s.Search(ctx, "user-1", "quantum", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Key != "field" {
		t.Fatalf("unexpected hits: %+v", hits)
	}
}

func TestBuildContextString(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Add(ctx, "user-1", TypeInstruction, "sources", "prefer primary sources", PriorityCritical, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := s.Add(ctx, "user-1", TypeContext, "domain", "background in astrophysics", PriorityMedium, ""); err != nil {
		t.Fatalf("Add: %v", err)
	}

	out, err := s.BuildContextString(ctx, "user-1", "astrophysics of black holes")
	if err != nil {
		t.Fatalf("BuildContextString: %v", err)
	}
	if !strings.HasPrefix(out, "### User Context (from memory)") {
		t.Fatalf("missing header: %q", out)
	}
	if !strings.Contains(out, "[Standing Instruction] sources: prefer primary sources") {
		t.Fatalf("missing critical instruction: %q", out)
	}
	// The medium-priority memory is pulled in by the query keyword match.
	if !strings.Contains(out, "[User Context] domain: background in astrophysics") {
		t.Fatalf("missing query-related memory: %q", out)
	}
}

func TestBuildContextStringEmpty(t *testing.T) {
	s := newTestStore(t)
	out, err := s.BuildContextString(context.Background(), "nobody", "anything")
	if err != nil {
		t.Fatalf("BuildContextString: %v", err)
	}
	if out != "" {
		t.Fatalf("expected empty context, got %q", out)
	}
}

func TestContextMemoriesCapped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		if _, err := s.Add(ctx, "user-1", TypeInstruction, "rule", "always cite", PriorityCritical, ""); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	memories, err := s.ContextMemories(ctx, "user-1", "")
	if err != nil {
		t.Fatalf("ContextMemories: %v", err)
	}
	if len(memories) > 10 {
		t.Fatalf("expected at most 10 memories, got %d", len(memories))
	}
}

func TestStatsForUserQueries(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	s := NewStoreWithDB(sqlx.NewDb(mockDB, "sqlmock"), nil)
	t.Cleanup(func() { s.Close() })

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM memories").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("SELECT memory_type AS k").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"k", "c"}).
			AddRow("fact", 2).AddRow("preference", 1))
	mock.ExpectQuery("SELECT priority AS k").
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"k", "c"}).
			AddRow("medium", 3))

	stats, err := s.StatsForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("StatsForUser: %v", err)
	}
	if stats.Total != 3 || stats.ByType["fact"] != 2 || stats.ByPriority["medium"] != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
