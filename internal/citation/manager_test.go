package citation

import (
	"strings"
	"testing"
	"time"

	"github.com/diogenes-labs/diogenes/internal/processing"
)

func TestRegisterSourceIdempotent(t *testing.T) {
	m := NewManager(nil)
	first := m.RegisterSource("https://example.com/a", "Example A", "content", 0.8, time.Now())
	second := m.RegisterSource("https://example.com/a", "Example A", "content", 0.8, time.Now())

	if first.CitationIndex != 1 {
		t.Fatalf("first source should get index 1, got %d", first.CitationIndex)
	}
	if second.CitationIndex != first.CitationIndex {
		t.Fatalf("re-registration changed index: %d vs %d", second.CitationIndex, first.CitationIndex)
	}
	if got := len(m.Sources()); got != 1 {
		t.Fatalf("expected 1 source, got %d", got)
	}
}

func TestRegisterSourceAssignsSequentialIndexes(t *testing.T) {
	m := NewManager(nil)
	urls := []string{"https://a.com", "https://b.com", "https://c.com"}
	for i, u := range urls {
		s := m.RegisterSource(u, "T", "", 0.5, time.Now())
		if s.CitationIndex != i+1 {
			t.Fatalf("source %d got index %d", i, s.CitationIndex)
		}
	}
}

func TestRegisterSourceClampsScore(t *testing.T) {
	m := NewManager(nil)
	s := m.RegisterSource("https://a.com", "T", "", 1.7, time.Now())
	if s.QualityScore != 1.0 {
		t.Fatalf("score not clamped: %v", s.QualityScore)
	}
	s = m.RegisterSource("https://b.com", "T", "", -0.3, time.Now())
	if s.QualityScore != 0.0 {
		t.Fatalf("negative score not clamped: %v", s.QualityScore)
	}
}

func TestRegisterSourceDerivesFields(t *testing.T) {
	m := NewManager(nil)
	s := m.RegisterSource("https://www.example.com/path", "", strings.Repeat("word ", 100), 0.5, time.Now())
	if s.Domain != "example.com" {
		t.Fatalf("domain = %q", s.Domain)
	}
	if s.Title != "example.com" {
		t.Fatalf("empty title should fall back to domain, got %q", s.Title)
	}
	if len(s.Snippet) != 200 {
		t.Fatalf("snippet not truncated to 200 chars: %d", len(s.Snippet))
	}
	if s.WordCount != 100 {
		t.Fatalf("word count = %d", s.WordCount)
	}
}

func TestAnnotateAnswerStripsUnknownMarkers(t *testing.T) {
	m := NewManager(nil)
	m.RegisterSource("https://example.com", "Example", "content", 0.7, time.Now())

	got := m.AnnotateAnswer("See [1] and [99].")
	if got != "See [1] and ." {
		t.Fatalf("AnnotateAnswer = %q, want %q", got, "See [1] and .")
	}
	if n := m.Summarize().TotalCitations; n != 1 {
		t.Fatalf("expected exactly 1 recorded citation, got %d", n)
	}
}

func TestAnnotateAnswerCollapsesSpaces(t *testing.T) {
	m := NewManager(nil)
	got := m.AnnotateAnswer("Claim [7] stands alone.")
	if got != "Claim stands alone." {
		t.Fatalf("AnnotateAnswer = %q", got)
	}
}

func TestAnnotateAnswerRecordsPositions(t *testing.T) {
	m := NewManager(nil)
	m.RegisterSource("https://a.com", "A", "", 0.5, time.Now())
	m.RegisterSource("https://b.com", "B", "", 0.5, time.Now())

	answer := "First [1] then [2] then [1] again."
	m.AnnotateAnswer(answer)

	cites := m.Summarize()
	if cites.TotalCitations != 3 {
		t.Fatalf("expected 3 citations, got %d", cites.TotalCitations)
	}
	if cites.UsedSources != 2 {
		t.Fatalf("expected 2 used sources, got %d", cites.UsedSources)
	}
}

func TestSourceCardsUsedOnly(t *testing.T) {
	m := NewManager(nil)
	m.RegisterSource("https://a.com", "A", "", 0.5, time.Now())
	m.RegisterSource("https://b.com", "B", "", 0.5, time.Now())
	m.AnnotateAnswer("Only [2] is cited.")

	used := m.SourceCards(true)
	if len(used) != 1 || used[0].Index != 2 {
		t.Fatalf("expected only source 2 in used cards: %+v", used)
	}
	all := m.SourceCards(false)
	if len(all) != 2 {
		t.Fatalf("expected 2 cards for all sources, got %d", len(all))
	}
	if all[0].Index != 1 || all[1].Index != 2 {
		t.Fatalf("cards not sorted by index: %+v", all)
	}
}

func TestBuildContextUsesMarkers(t *testing.T) {
	m := NewManager(nil)
	s := m.RegisterSource("https://a.com", "Source A", "", 0.5, time.Now())

	chunks := []processing.ContentChunk{
		{ID: "chunk1", SourceTitle: "Source A", Content: "attributed content"},
		{ID: "chunk2", SourceTitle: "Orphan", Content: "unattributed content"},
	}
	m.RegisterChunk("chunk1", s.ID)

	ctx := m.BuildContext(chunks)
	if !strings.Contains(ctx, "[Source [1]: Source A]") {
		t.Fatalf("attributed chunk missing marker header: %q", ctx)
	}
	if !strings.Contains(ctx, "[Source: Orphan]") {
		t.Fatalf("orphan chunk missing fallback header: %q", ctx)
	}
	if !strings.Contains(ctx, "\n\n---\n\n") {
		t.Fatalf("chunks not separated: %q", ctx)
	}
}

func TestResetClearsState(t *testing.T) {
	m := NewManager(nil)
	m.RegisterSource("https://a.com", "A", "", 0.5, time.Now())
	m.AnnotateAnswer("Cited [1].")
	m.Reset()

	sum := m.Summarize()
	if sum.TotalSources != 0 || sum.TotalCitations != 0 {
		t.Fatalf("state survived reset: %+v", sum)
	}
	s := m.RegisterSource("https://b.com", "B", "", 0.5, time.Now())
	if s.CitationIndex != 1 {
		t.Fatalf("index counter not reset, got %d", s.CitationIndex)
	}
}

func TestFormatFootnotes(t *testing.T) {
	sources := []Source{
		{Title: "B", URL: "https://b.com", CitationIndex: 2},
		{Title: "A", URL: "https://a.com", CitationIndex: 1},
	}
	out := FormatFootnotes(sources)
	if !strings.Contains(out, "[1] [A](https://a.com)") || !strings.Contains(out, "[2] [B](https://b.com)") {
		t.Fatalf("footnotes malformed: %q", out)
	}
	if strings.Index(out, "[1]") > strings.Index(out, "[2]") {
		t.Fatalf("footnotes not sorted by index: %q", out)
	}
}
