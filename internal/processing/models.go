// Package processing turns raw crawled pages into scored, chunked,
// citation-ready content.
package processing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ContentChunk is one semantically coherent slice of a source document.
type ContentChunk struct {
	ID          string `json:"id"`
	SourceURL   string `json:"source_url"`
	SourceTitle string `json:"source_title"`
	Content     string `json:"content"`

	ChunkIndex  int `json:"chunk_index"`
	TotalChunks int `json:"total_chunks"`

	TokenCount int `json:"token_count"`
	WordCount  int `json:"word_count"`
	CharCount  int `json:"char_count"`

	QualityScore   float64 `json:"quality_score"`
	RelevanceScore float64 `json:"relevance_score"`
}

// NewContentChunk builds a chunk and fills in the derived fields.
func NewContentChunk(sourceURL, sourceTitle, content string, index, total int) ContentChunk {
	c := ContentChunk{
		SourceURL:   sourceURL,
		SourceTitle: sourceTitle,
		Content:     content,
		ChunkIndex:  index,
		TotalChunks: total,
	}
	c.CharCount = len(content)
	c.WordCount = len(strings.Fields(content))
	c.TokenCount = EstimateTokens(content)
	c.ID = chunkID(sourceURL, index, content)
	return c
}

// ContextHeader is prepended to the chunk text when it is placed in a
// model prompt, so the model can attribute what it reads.
func (c ContentChunk) ContextHeader() string {
	return fmt.Sprintf("[Source: %s]\n[URL: %s]\n", c.SourceTitle, c.SourceURL)
}

func chunkID(sourceURL string, index int, content string) string {
	head := content
	if len(head) > 100 {
		head = head[:100]
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%d:%s", sourceURL, index, head)))
	return "chunk_" + hex.EncodeToString(sum[:])[:12]
}

// ExtractedFact is a single factual statement pulled from a chunk,
// carrying enough attribution to cite it later.
type ExtractedFact struct {
	ID            string  `json:"id"`
	Content       string  `json:"content"`
	SourceChunkID string  `json:"source_chunk_id"`
	SourceURL     string  `json:"source_url"`
	SourceTitle   string  `json:"source_title"`
	Category      string  `json:"category,omitempty"`
	Confidence    float64 `json:"confidence"`
	CitationIndex int     `json:"citation_index,omitempty"`
}

// NewExtractedFact builds a fact with a content-derived id.
func NewExtractedFact(content, chunkID, sourceURL, sourceTitle string) ExtractedFact {
	sum := sha256.Sum256([]byte(content))
	return ExtractedFact{
		ID:            "fact_" + hex.EncodeToString(sum[:])[:12],
		Content:       content,
		SourceChunkID: chunkID,
		SourceURL:     sourceURL,
		SourceTitle:   sourceTitle,
		Confidence:    1.0,
	}
}

// ProcessedDocument is a crawled page after cleaning, chunking and
// fact extraction.
type ProcessedDocument struct {
	URL             string          `json:"url"`
	Title           string          `json:"title"`
	OriginalContent string          `json:"-"`
	Chunks          []ContentChunk  `json:"chunks"`
	Facts           []ExtractedFact `json:"facts"`
	TotalTokens     int             `json:"total_tokens"`
	QualityScore    float64         `json:"quality_score"`
	ProcessedAt     time.Time       `json:"processed_at"`
}

// BestChunks returns the top n chunks by quality score.
func (d *ProcessedDocument) BestChunks(n int) []ContentChunk {
	sorted := make([]ContentChunk, len(d.Chunks))
	copy(sorted, d.Chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].QualityScore > sorted[j].QualityScore
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// EstimateTokens approximates token count as one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}
