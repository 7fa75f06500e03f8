// Package citation tracks research sources and the inline [n] markers
// that reference them in synthesized answers.
package citation

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// Source is one registered research source. Sources are identified by
// a hash of their URL, so the same page registered twice resolves to
// one entry.
type Source struct {
	ID    string `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`

	Domain     string `json:"domain"`
	FaviconURL string `json:"favicon"`
	Snippet    string `json:"snippet"`

	QualityScore float64 `json:"quality_score"`

	CrawledAt   time.Time `json:"crawled_at,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	WordCount   int       `json:"word_count,omitempty"`

	// Assigned when the source enters a Map. Zero means unassigned.
	CitationIndex int `json:"citation_index,omitempty"`
}

// SourceID derives the stable id for a URL.
func SourceID(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])[:16]
}

// NewSource builds a source for a URL, deriving the id, domain and
// favicon URL.
func NewSource(rawURL, title string) Source {
	s := Source{
		ID:    SourceID(rawURL),
		URL:   rawURL,
		Title: title,
	}
	if u, err := url.Parse(rawURL); err == nil && u.Host != "" {
		s.Domain = strings.TrimPrefix(u.Host, "www.")
		s.FaviconURL = fmt.Sprintf("%s://%s/favicon.ico", u.Scheme, u.Host)
	}
	if s.Title == "" {
		s.Title = s.Domain
	}
	return s
}

// SourceCard is the frontend-facing projection of a source.
type SourceCard struct {
	Index        int     `json:"index"`
	URL          string  `json:"url"`
	Title        string  `json:"title"`
	Domain       string  `json:"domain"`
	Favicon      string  `json:"favicon"`
	Snippet      string  `json:"snippet"`
	QualityScore float64 `json:"quality_score"`
}

// Card converts the source to its display form.
func (s Source) Card() SourceCard {
	return SourceCard{
		Index:        s.CitationIndex,
		URL:          s.URL,
		Title:        s.Title,
		Domain:       s.Domain,
		Favicon:      s.FaviconURL,
		Snippet:      s.Snippet,
		QualityScore: s.QualityScore,
	}
}

// Citation is one occurrence of a [n] marker in an answer.
type Citation struct {
	SourceID      string  `json:"source_id"`
	CitationIndex int     `json:"citation_index"`
	Position      int     `json:"position"`
	Claim         string  `json:"claim,omitempty"`
	Confidence    float64 `json:"confidence"`
}

// Map holds every source and citation for one research session.
// Indexes are 1-based and assigned in registration order. Not safe for
// concurrent use; the Manager serializes access.
type Map struct {
	sources   map[string]*Source
	citations []Citation
	indexes   map[string]int
	nextIndex int
}

// NewMap returns an empty citation map.
func NewMap() *Map {
	return &Map{
		sources:   make(map[string]*Source),
		indexes:   make(map[string]int),
		nextIndex: 1,
	}
}

// AddSource registers a source and returns its citation index. A
// source already present keeps its original index.
func (m *Map) AddSource(source Source) int {
	if idx, ok := m.indexes[source.ID]; ok {
		return idx
	}
	idx := m.nextIndex
	m.nextIndex++
	source.CitationIndex = idx
	m.sources[source.ID] = &source
	m.indexes[source.ID] = idx
	return idx
}

// AddCitation records one marker occurrence for a registered source.
func (m *Map) AddCitation(sourceID string, position int, claim string, confidence float64) (Citation, error) {
	idx, ok := m.indexes[sourceID]
	if !ok {
		return Citation{}, fmt.Errorf("source %s not found", sourceID)
	}
	c := Citation{
		SourceID:      sourceID,
		CitationIndex: idx,
		Position:      position,
		Claim:         claim,
		Confidence:    confidence,
	}
	m.citations = append(m.citations, c)
	return c, nil
}

// SourceByIndex finds the source with the given citation index, or nil.
func (m *Map) SourceByIndex(index int) *Source {
	for _, s := range m.sources {
		if s.CitationIndex == index {
			return s
		}
	}
	return nil
}

// SourceByURL finds a registered source by its URL, or nil.
func (m *Map) SourceByURL(rawURL string) *Source {
	return m.sources[SourceID(rawURL)]
}

// Source returns the source with the given id, or nil.
func (m *Map) Source(id string) *Source {
	return m.sources[id]
}

// UsedSources returns sources with at least one recorded citation,
// sorted by citation index.
func (m *Map) UsedSources() []Source {
	used := make(map[string]struct{}, len(m.citations))
	for _, c := range m.citations {
		used[c.SourceID] = struct{}{}
	}
	var out []Source
	for id := range used {
		if s, ok := m.sources[id]; ok {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitationIndex < out[j].CitationIndex })
	return out
}

// AllSources returns every source sorted by citation index.
func (m *Map) AllSources() []Source {
	out := make([]Source, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CitationIndex < out[j].CitationIndex })
	return out
}

// Citations returns the recorded citation occurrences.
func (m *Map) Citations() []Citation {
	return m.citations
}

// Marker formats the [n] marker for a source id, or "" if unknown.
func (m *Map) Marker(sourceID string) string {
	idx, ok := m.indexes[sourceID]
	if !ok {
		return ""
	}
	return fmt.Sprintf("[%d]", idx)
}

// Clear resets the map for a new session.
func (m *Map) Clear() {
	m.sources = make(map[string]*Source)
	m.citations = nil
	m.indexes = make(map[string]int)
	m.nextIndex = 1
}
