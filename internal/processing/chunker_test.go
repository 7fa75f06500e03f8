package processing

import (
	"strings"
	"testing"
)

func TestChunkEmptyContent(t *testing.T) {
	c := NewChunker(ChunkerOptions{}, nil)
	if got := c.Chunk("", "http://example.com", "Example"); got != nil {
		t.Fatalf("expected nil for empty content, got %d chunks", len(got))
	}
	if got := c.Chunk("   \n\n  ", "http://example.com", "Example"); got != nil {
		t.Fatalf("expected nil for whitespace content, got %d chunks", len(got))
	}
}

func TestChunkShortContentSingleChunk(t *testing.T) {
	c := NewChunker(ChunkerOptions{MinChunkSize: 1}, nil)
	content := strings.Repeat("All work and no play makes a dull boy. ", 5)
	chunks := c.Chunk(content, "http://example.com/a", "A")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 || chunks[0].TotalChunks != 1 {
		t.Fatalf("bad position info: %+v", chunks[0])
	}
	if chunks[0].ID == "" || !strings.HasPrefix(chunks[0].ID, "chunk_") {
		t.Fatalf("bad chunk id %q", chunks[0].ID)
	}
}

func TestChunkRespectsTokenLimit(t *testing.T) {
	c := NewChunker(ChunkerOptions{ChunkSize: 50, ChunkOverlap: 5, MinChunkSize: 1}, nil)

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog near the river bank.\n\n")
	}
	chunks := c.Chunk(b.String(), "http://example.com", "Foxes")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	// Overlap can push a chunk slightly past the limit.
	limit := 50 + 5 + 2
	for _, ch := range chunks {
		if ch.TokenCount > limit {
			t.Fatalf("chunk %d has %d tokens, limit %d", ch.ChunkIndex, ch.TokenCount, limit)
		}
	}
}

func TestChunkOverlapSharesTail(t *testing.T) {
	c := NewChunker(ChunkerOptions{ChunkSize: 40, ChunkOverlap: 10, MinChunkSize: 1}, nil)

	var b strings.Builder
	for i := 0; i < 30; i++ {
		b.WriteString("Sentence number with several distinct words inside it goes here.\n\n")
	}
	chunks := c.Chunk(b.String(), "http://example.com", "T")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i := 1; i < len(chunks); i++ {
		words := strings.Fields(chunks[i].Content)
		if len(words) == 0 {
			t.Fatalf("chunk %d is empty", i)
		}
		// The first word of each later chunk must appear in the
		// previous chunk's tail: that word came from the overlap.
		if !strings.Contains(chunks[i-1].Content, words[0]) {
			t.Fatalf("chunk %d does not overlap its predecessor: leading word %q", i, words[0])
		}
	}
}

func TestChunkDropsFragmentsBeforeOverlap(t *testing.T) {
	c := NewChunker(ChunkerOptions{ChunkSize: 100, ChunkOverlap: 20, MinChunkSize: 50}, nil)

	big := strings.Repeat("A reasonably long paragraph with plenty of words to stay above the floor. ", 10)
	content := big + "\n\n\nok\n\n\n" + big
	chunks := c.Chunk(content, "http://example.com", "T")
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Content) == "ok" {
			t.Fatalf("tiny fragment survived the minimum size filter")
		}
	}
}

func TestChunkForContextSamples(t *testing.T) {
	c := NewChunker(ChunkerOptions{ChunkSize: 30, ChunkOverlap: 2, MinChunkSize: 1}, nil)
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString("Filler paragraph text that is split into many small chunks here.\n\n")
	}
	chunks := c.ChunkForContext(b.String(), "http://example.com", "T", 4)
	if len(chunks) > 4 {
		t.Fatalf("expected at most 4 chunks, got %d", len(chunks))
	}
	if len(chunks) > 0 && chunks[0].ChunkIndex != 0 {
		t.Fatalf("sampling must keep the first chunk, got index %d", chunks[0].ChunkIndex)
	}
}

func TestChunkIDDeterministic(t *testing.T) {
	a := NewContentChunk("http://example.com", "T", "same content", 0, 1)
	b := NewContentChunk("http://example.com", "T", "same content", 0, 1)
	if a.ID != b.ID {
		t.Fatalf("ids differ for identical inputs: %q vs %q", a.ID, b.ID)
	}
	c := NewContentChunk("http://example.com", "T", "same content", 1, 2)
	if a.ID == c.ID {
		t.Fatalf("ids should differ across chunk indexes")
	}
}
