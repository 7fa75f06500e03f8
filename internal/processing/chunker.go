package processing

import (
	"strings"

	"go.uber.org/zap"
)

// Separator preference order, coarsest structure first.
var chunkSeparators = []string{
	"\n\n\n",
	"\n\n",
	"\n",
	". ",
	"? ",
	"! ",
	"; ",
	", ",
	" ",
}

// Chunker splits cleaned content into overlapping, token-bounded chunks
// that respect document structure where possible.
type Chunker struct {
	chunkSize    int // tokens
	chunkOverlap int // tokens
	minChunkSize int // tokens
	logger       *zap.Logger
}

// ChunkerOptions override the default chunk geometry. Zero values keep
// the defaults.
type ChunkerOptions struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

const (
	defaultChunkSize    = 512
	defaultChunkOverlap = 64
	defaultMinChunkSize = 100
)

// NewChunker creates a chunker. A nil logger disables debug logging.
func NewChunker(opts ChunkerOptions, logger *zap.Logger) *Chunker {
	c := &Chunker{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		minChunkSize: defaultMinChunkSize,
		logger:       logger,
	}
	if opts.ChunkSize > 0 {
		c.chunkSize = opts.ChunkSize
	}
	if opts.ChunkOverlap > 0 {
		c.chunkOverlap = opts.ChunkOverlap
	}
	if opts.MinChunkSize > 0 {
		c.minChunkSize = opts.MinChunkSize
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return c
}

// Chunk splits content into ContentChunks. Chunks smaller than the
// minimum size are dropped before overlap is applied, so overlap text
// never rescues a fragment that was too small on its own.
func (c *Chunker) Chunk(content, sourceURL, sourceTitle string) []ContentChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	raw := c.recursiveSplit(content, chunkSeparators)

	filtered := raw[:0]
	for _, chunk := range raw {
		if EstimateTokens(chunk) >= c.minChunkSize {
			filtered = append(filtered, chunk)
		}
	}

	overlapped := c.addOverlap(filtered)

	result := make([]ContentChunk, 0, len(overlapped))
	for i, text := range overlapped {
		result = append(result, NewContentChunk(
			sourceURL, sourceTitle, strings.TrimSpace(text), i, len(overlapped),
		))
	}

	c.logger.Debug("chunked content",
		zap.Int("input_chars", len(content)),
		zap.Int("chunks", len(result)),
		zap.String("source_url", sourceURL),
	)
	return result
}

// ChunkForContext chunks and then thins the result to at most maxChunks
// by even sampling, keeping the first chunk.
func (c *Chunker) ChunkForContext(content, sourceURL, sourceTitle string, maxChunks int) []ContentChunk {
	chunks := c.Chunk(content, sourceURL, sourceTitle)
	if maxChunks <= 0 || len(chunks) <= maxChunks {
		return chunks
	}
	step := len(chunks) / maxChunks
	sampled := make([]ContentChunk, 0, maxChunks)
	for i := 0; i < len(chunks) && len(sampled) < maxChunks; i += step {
		sampled = append(sampled, chunks[i])
	}
	return sampled
}

// TotalTokens sums the estimated token count across chunks.
func TotalTokens(chunks []ContentChunk) int {
	total := 0
	for _, c := range chunks {
		total += c.TokenCount
	}
	return total
}

func (c *Chunker) recursiveSplit(text string, separators []string) []string {
	if EstimateTokens(text) <= c.chunkSize {
		if strings.TrimSpace(text) == "" {
			return nil
		}
		return []string{text}
	}

	if len(separators) == 0 {
		// Hard split by character count as a last resort.
		charLimit := c.chunkSize * 4
		var chunks []string
		for len(text) > 0 {
			end := charLimit
			if end > len(text) {
				end = len(text)
			}
			chunks = append(chunks, text[:end])
			text = text[end:]
		}
		return chunks
	}

	sep := separators[0]
	if !strings.Contains(text, sep) {
		return c.recursiveSplit(text, separators[1:])
	}

	parts := splitKeepingSeparator(text, sep)

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}

	for _, part := range parts {
		partTokens := EstimateTokens(part)
		currentTokens := EstimateTokens(current.String())

		switch {
		case partTokens > c.chunkSize:
			flush()
			chunks = append(chunks, c.recursiveSplit(part, separators[1:])...)
		case currentTokens+partTokens <= c.chunkSize:
			current.WriteString(part)
		default:
			flush()
			current.WriteString(part)
		}
	}
	flush()

	return chunks
}

// splitKeepingSeparator splits text on sep, re-attaching the separator
// to the end of each part except the last. Blank parts are dropped.
func splitKeepingSeparator(text, sep string) []string {
	if sep == " " {
		return strings.Split(text, " ")
	}
	parts := strings.Split(text, sep)
	result := make([]string, 0, len(parts))
	for i, part := range parts {
		if i < len(parts)-1 {
			part += sep
		}
		if strings.TrimSpace(part) != "" {
			result = append(result, part)
		}
	}
	return result
}

// addOverlap prefixes each chunk after the first with the tail of its
// predecessor, trimmed to a word boundary.
func (c *Chunker) addOverlap(chunks []string) []string {
	if len(chunks) <= 1 {
		return chunks
	}

	overlapChars := c.chunkOverlap * 4
	overlapped := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		if i == 0 {
			overlapped = append(overlapped, chunk)
			continue
		}
		prev := chunks[i-1]
		overlap := prev
		if len(prev) > overlapChars {
			overlap = prev[len(prev)-overlapChars:]
		}
		if idx := strings.LastIndex(overlap, " "); idx > 0 {
			overlap = overlap[idx+1:]
		}
		overlapped = append(overlapped, overlap+chunk)
	}
	return overlapped
}
