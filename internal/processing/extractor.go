package processing

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// StructuredGenerator produces JSON-constrained model output decoded
// into out. Implemented by the llm package's client.
type StructuredGenerator interface {
	GenerateStructured(ctx context.Context, prompt string, out interface{}) error
}

const extractionPrompt = `Extract the key facts from the following content.

Content:
%s

Instructions:
1. Extract 3-7 key facts from this content
2. Each fact should be a single, clear statement
3. Focus on factual information, not opinions
4. Include specific data, numbers, or names when present
5. Make each fact self-contained and understandable

Return the facts as a JSON object with a "facts" array.`

type extractedFactsResponse struct {
	Facts []string `json:"facts"`
}

// FactExtractor pulls key facts out of chunks with a model call per
// chunk, attributing each fact to its source chunk.
type FactExtractor struct {
	gen    StructuredGenerator
	logger *zap.Logger
}

// NewFactExtractor builds an extractor backed by gen.
func NewFactExtractor(gen StructuredGenerator, logger *zap.Logger) *FactExtractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FactExtractor{gen: gen, logger: logger}
}

// ExtractFacts extracts up to maxFacts facts from one chunk. Model
// failures yield an empty list, not an error, so one bad chunk does
// not sink the batch.
func (e *FactExtractor) ExtractFacts(ctx context.Context, chunk ContentChunk, maxFacts int) []ExtractedFact {
	var resp extractedFactsResponse
	err := e.gen.GenerateStructured(ctx, fmt.Sprintf(extractionPrompt, chunk.Content), &resp)
	if err != nil {
		e.logger.Warn("fact extraction failed",
			zap.String("chunk_id", chunk.ID),
			zap.Error(err),
		)
		return nil
	}

	if len(resp.Facts) > maxFacts {
		resp.Facts = resp.Facts[:maxFacts]
	}
	facts := make([]ExtractedFact, 0, len(resp.Facts))
	for _, text := range resp.Facts {
		facts = append(facts, NewExtractedFact(text, chunk.ID, chunk.SourceURL, chunk.SourceTitle))
	}
	return facts
}

// ExtractFactsBatch extracts facts from many chunks concurrently,
// capping the combined result at maxTotal.
func (e *FactExtractor) ExtractFactsBatch(ctx context.Context, chunks []ContentChunk, maxPerChunk, maxTotal int) []ExtractedFact {
	results := make([][]ExtractedFact, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			results[i] = e.ExtractFacts(gctx, chunk, maxPerChunk)
			return nil
		})
	}
	_ = g.Wait() // per-chunk failures already downgraded to empty lists

	var all []ExtractedFact
	for _, facts := range results {
		all = append(all, facts...)
	}
	if len(all) > maxTotal {
		all = all[:maxTotal]
	}
	e.logger.Debug("extracted facts", zap.Int("chunks", len(chunks)), zap.Int("facts", len(all)))
	return all
}

// Sentence patterns that suggest factual content.
var factIndicators = []*regexp.Regexp{
	regexp.MustCompile(`\d+%`),
	regexp.MustCompile(`\$[\d,]+`),
	regexp.MustCompile(`\d{4}`),
	regexp.MustCompile(`(?i)\d+\s*(million|billion|trillion)`),
	regexp.MustCompile(`(?i)according to`),
	regexp.MustCompile(`(?i)research shows`),
	regexp.MustCompile(`(?i)studies show`),
	regexp.MustCompile(`(?i)data indicates`),
}

var sentenceSplitRe = regexp.MustCompile(`[.!?]\s+`)

// QuickFactExtractor finds fact-like sentences with heuristics alone,
// for paths where a model call per chunk would be too slow.
type QuickFactExtractor struct{}

// ExtractFacts returns up to maxFacts sentences from the chunk, ranked
// by how fact-like they look.
func (QuickFactExtractor) ExtractFacts(chunk ContentChunk, maxFacts int) []ExtractedFact {
	sentences := splitSentences(chunk.Content)

	type scored struct {
		text  string
		score float64
	}
	var candidates []scored
	for _, sentence := range sentences {
		if score := scoreSentence(sentence); score > 0 {
			candidates = append(candidates, scored{sentence, score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > maxFacts {
		candidates = candidates[:maxFacts]
	}

	facts := make([]ExtractedFact, 0, len(candidates))
	for _, c := range candidates {
		facts = append(facts, NewExtractedFact(
			strings.TrimSpace(c.text), chunk.ID, chunk.SourceURL, chunk.SourceTitle,
		))
	}
	return facts
}

func splitSentences(text string) []string {
	// Lookbehind is unavailable in RE2, so split on the terminator and
	// re-attach it.
	var sentences []string
	locs := sentenceSplitRe.FindAllStringIndex(text, -1)
	start := 0
	for _, loc := range locs {
		sentences = append(sentences, text[start:loc[0]+1])
		start = loc[1]
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}

	filtered := sentences[:0]
	for _, s := range sentences {
		if len(s) > 20 {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

func scoreSentence(sentence string) float64 {
	score := 0.0
	for _, re := range factIndicators {
		if re.MatchString(sentence) {
			score += 1.0
		}
	}
	words := len(strings.Fields(sentence))
	if words >= 10 && words <= 40 {
		score += 0.5
	}
	if strings.HasSuffix(strings.TrimSpace(sentence), ".") {
		score += 0.2
	}
	return score
}
