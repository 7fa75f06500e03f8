package citation

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/processing"
)

var (
	markerRe      = regexp.MustCompile(`\[(\d+)\]`)
	doubleSpaceRe = regexp.MustCompile(`  +`)
)

// Manager owns the citation state for one research session: source
// registration, chunk attribution, and answer annotation. Safe for
// concurrent use.
type Manager struct {
	mu            sync.Mutex
	citations     *Map
	chunkToSource map[string]string
	logger        *zap.Logger
}

// NewManager returns an empty citation manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		citations:     NewMap(),
		chunkToSource: make(map[string]string),
		logger:        logger,
	}
}

// RegisterSource registers a crawled page as a source and returns it
// with its citation index assigned. Registering the same URL again
// returns the existing entry.
func (m *Manager) RegisterSource(pageURL, title, content string, qualityScore float64, crawledAt time.Time) Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	if qualityScore < 0 || qualityScore > 1 {
		m.logger.Warn("clamping out-of-range quality score",
			zap.String("url", pageURL),
			zap.Float64("score", qualityScore),
		)
		qualityScore = clamp01(qualityScore)
	}

	source := NewSource(pageURL, title)
	source.QualityScore = qualityScore
	source.CrawledAt = crawledAt
	source.WordCount = len(strings.Fields(content))
	if len(content) > 200 {
		source.Snippet = content[:200]
	} else {
		source.Snippet = content
	}

	idx := m.citations.AddSource(source)
	registered := m.citations.Source(source.ID)
	m.logger.Debug("registered source",
		zap.Int("index", idx),
		zap.String("title", registered.Title),
	)
	return *registered
}

// RegisterSearchResult registers a search hit that has not been
// crawled yet.
func (m *Manager) RegisterSearchResult(pageURL, title, snippet string, score float64) Source {
	m.mu.Lock()
	defer m.mu.Unlock()

	source := NewSource(pageURL, title)
	source.Snippet = snippet
	source.QualityScore = clamp01(score)
	m.citations.AddSource(source)
	return *m.citations.Source(source.ID)
}

// RegisterChunk attributes a chunk to a registered source.
func (m *Manager) RegisterChunk(chunkID, sourceID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkToSource[chunkID] = sourceID
}

// SourceForChunk resolves the source a chunk came from, or nil.
func (m *Manager) SourceForChunk(chunkID string) *Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	sourceID, ok := m.chunkToSource[chunkID]
	if !ok {
		return nil
	}
	return m.citations.Source(sourceID)
}

// BuildContext assembles the model prompt context from chunks, each
// prefixed with its source marker so the model knows what to cite.
func (m *Manager) BuildContext(chunks []processing.ContentChunk) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		var header string
		if sourceID, ok := m.chunkToSource[chunk.ID]; ok {
			if source := m.citations.Source(sourceID); source != nil {
				header = fmt.Sprintf("[Source %s: %s]\n", m.citations.Marker(sourceID), source.Title)
			}
		}
		if header == "" {
			header = fmt.Sprintf("[Source: %s]\n", chunk.SourceTitle)
		}
		parts = append(parts, header+chunk.Content)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// AnnotateAnswer validates the [n] markers in a synthesized answer.
// Markers that reference a registered source are kept and recorded as
// citations; markers pointing at nothing are removed. Double spaces
// left behind by removals are collapsed.
func (m *Manager) AnnotateAnswer(answer string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	annotated := replaceAllStringSubmatchIndex(answer, markerRe, func(match []int) string {
		index, err := strconv.Atoi(answer[match[2]:match[3]])
		if err != nil {
			return ""
		}
		source := m.citations.SourceByIndex(index)
		if source == nil {
			return ""
		}
		if _, err := m.citations.AddCitation(source.ID, match[0], "", 1.0); err != nil {
			m.logger.Warn("failed to record citation", zap.Error(err))
		}
		return fmt.Sprintf("[%d]", index)
	})

	return doubleSpaceRe.ReplaceAllString(annotated, " ")
}

// replaceAllStringSubmatchIndex is ReplaceAllStringFunc with access to
// submatch positions, which the stdlib variant does not expose.
func replaceAllStringSubmatchIndex(s string, re *regexp.Regexp, repl func(match []int) string) string {
	var b strings.Builder
	last := 0
	for _, match := range re.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:match[0]])
		b.WriteString(repl(match))
		last = match[1]
	}
	b.WriteString(s[last:])
	return b.String()
}

// SourceCards returns display cards for sources, cited-only by default.
func (m *Manager) SourceCards(usedOnly bool) []SourceCard {
	m.mu.Lock()
	defer m.mu.Unlock()

	var sources []Source
	if usedOnly {
		sources = m.citations.UsedSources()
	} else {
		sources = m.citations.AllSources()
	}
	cards := make([]SourceCard, 0, len(sources))
	for _, s := range sources {
		cards = append(cards, s.Card())
	}
	return cards
}

// Summary reports session-level citation counts.
type Summary struct {
	TotalSources   int `json:"total_sources"`
	UsedSources    int `json:"used_sources"`
	TotalCitations int `json:"total_citations"`
}

// Summarize returns the citation counts for the session.
func (m *Manager) Summarize() Summary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Summary{
		TotalSources:   len(m.citations.AllSources()),
		UsedSources:    len(m.citations.UsedSources()),
		TotalCitations: len(m.citations.Citations()),
	}
}

// Sources returns every registered source sorted by index.
func (m *Manager) Sources() []Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.citations.AllSources()
}

// SourceByURL resolves a registered source by URL, or nil.
func (m *Manager) SourceByURL(rawURL string) *Source {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.citations.SourceByURL(rawURL)
}

// Reset clears all state for a new research session.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.citations.Clear()
	m.chunkToSource = make(map[string]string)
}

// FormatFootnotes renders cited sources as markdown footnotes.
func FormatFootnotes(sources []Source) string {
	lines := []string{"\n\n---\n**Sources:**\n"}
	sorted := sortedByIndex(sources)
	for _, s := range sorted {
		if s.CitationIndex > 0 {
			lines = append(lines, fmt.Sprintf("[%d] [%s](%s)", s.CitationIndex, s.Title, s.URL))
		}
	}
	return strings.Join(lines, "\n")
}

// FormatBibliography renders cited sources in reference-list style.
func FormatBibliography(sources []Source) string {
	lines := []string{"\n\n## References\n"}
	sorted := sortedByIndex(sources)
	for _, s := range sorted {
		if s.CitationIndex > 0 {
			lines = append(lines, fmt.Sprintf("%d. %s. Retrieved from %s", s.CitationIndex, s.Title, s.URL))
		}
	}
	return strings.Join(lines, "\n")
}

func sortedByIndex(sources []Source) []Source {
	sorted := make([]Source, len(sources))
	copy(sorted, sources)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CitationIndex < sorted[j].CitationIndex
	})
	return sorted
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
