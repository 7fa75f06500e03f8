package processing

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Domain authority scores. Exact hosts first, then parent domains,
// then bare TLDs.
var domainScores = map[string]float64{
	"edu": 0.9,
	"gov": 0.9,
	"org": 0.75,

	"arxiv.org":   0.95,
	"nature.com":  0.95,
	"science.org": 0.95,
	"ieee.org":    0.9,
	"acm.org":     0.9,
	"nih.gov":     0.9,
	"cdc.gov":     0.9,
	"who.int":     0.9,

	"github.com":            0.85,
	"stackoverflow.com":     0.8,
	"docs.python.org":       0.85,
	"developer.mozilla.org": 0.85,
	"kubernetes.io":         0.85,

	"reuters.com":        0.8,
	"apnews.com":         0.8,
	"bbc.com":            0.75,
	"nytimes.com":        0.75,
	"theguardian.com":    0.75,
	"washingtonpost.com": 0.75,

	"wikipedia.org":  0.7,
	"britannica.com": 0.8,

	"techcrunch.com":  0.7,
	"wired.com":       0.7,
	"arstechnica.com": 0.75,

	"com": 0.5,
	"net": 0.5,
	"io":  0.6,
}

var academicDomains = map[string]struct{}{
	"arxiv.org": {}, "nature.com": {}, "science.org": {}, "ieee.org": {},
	"acm.org": {}, "nih.gov": {}, "pubmed.ncbi.nlm.nih.gov": {},
	"scholar.google.com": {}, "researchgate.net": {}, "sciencedirect.com": {},
	"springer.com": {}, "jstor.org": {}, "wiley.com": {}, "sagepub.com": {},
	"tandfonline.com": {},
}

var primarySourceDomains = map[string]struct{}{
	"arxiv.org": {}, "nih.gov": {}, "cdc.gov": {}, "who.int": {},
	"census.gov": {}, "bls.gov": {}, "sec.gov": {}, "data.gov": {},
	"europa.eu": {}, "un.org": {},
}

var lowQualityPatterns = []string{
	"clickbait",
	"sponsored",
	"advertisement",
	"affiliate",
	"buy now",
	"limited time",
	"act now",
	"click here",
}

// Scorer assigns quality scores to sources and chunks by combining
// domain authority, freshness, content quality and query relevance.
type Scorer struct {
	weights ScorerWeights
	logger  *zap.Logger
}

// ScorerWeights controls how the four factor scores combine. The
// defaults sum to 1.0; a set that does not can push the weighted sum
// out of [0, 1], which the scorer warns about and clamps.
type ScorerWeights struct {
	Authority float64
	Freshness float64
	Relevance float64
	Quality   float64
}

// DefaultScorerWeights returns the standard split
// (authority 0.3, freshness 0.2, relevance 0.3, quality 0.2).
func DefaultScorerWeights() ScorerWeights {
	return ScorerWeights{Authority: 0.3, Freshness: 0.2, Relevance: 0.3, Quality: 0.2}
}

// NewScorer builds a scorer with the default weight split.
func NewScorer(logger *zap.Logger) *Scorer {
	return NewScorerWithWeights(DefaultScorerWeights(), logger)
}

// NewScorerWithWeights builds a scorer with a custom weight split. An
// all-zero weight set falls back to the defaults.
func NewScorerWithWeights(w ScorerWeights, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if w == (ScorerWeights{}) {
		w = DefaultScorerWeights()
	}
	return &Scorer{weights: w, logger: logger}
}

// ScoreDomain scores the authority of a URL's host in [0, 1].
func (s *Scorer) ScoreDomain(rawURL string) float64 {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return 0.5
	}
	domain := strings.ToLower(u.Hostname())
	domain = strings.TrimPrefix(domain, "www.")

	if score, ok := domainScores[domain]; ok {
		return score
	}
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		parent := strings.Join(parts[len(parts)-2:], ".")
		if score, ok := domainScores[parent]; ok {
			return score
		}
	}
	if len(parts) > 0 {
		if score, ok := domainScores[parts[len(parts)-1]]; ok {
			return score
		}
	}
	return 0.5
}

const maxFreshnessAge = 365 * 24 * time.Hour

// ScoreFreshness scores how recent a source is, decaying linearly from
// 1.0 at age zero to a 0.1 floor at one year. A zero time scores 1.0.
func (s *Scorer) ScoreFreshness(referenceTime time.Time) float64 {
	if referenceTime.IsZero() {
		return 1.0
	}
	age := time.Since(referenceTime)
	if age <= 0 {
		return 1.0
	}
	if age >= maxFreshnessAge {
		return 0.1
	}
	return 1.0 - (age.Hours()/maxFreshnessAge.Hours())*0.9
}

// ScoreContentQuality scores text characteristics in [0, 1]: length,
// sentence structure, presence of code or references, and the absence
// of spam phrasing.
func (s *Scorer) ScoreContentQuality(content string) float64 {
	if content == "" {
		return 0.0
	}
	score := 0.5
	lower := strings.ToLower(content)

	for _, pattern := range lowQualityPatterns {
		if strings.Contains(lower, pattern) {
			score -= 0.1
		}
	}

	wordCount := len(strings.Fields(content))
	switch {
	case wordCount > 500:
		score += 0.2
	case wordCount > 200:
		score += 0.1
	case wordCount < 50:
		score -= 0.2
	}

	sentenceCount := strings.Count(content, ". ") + strings.Count(content, ".\n")
	if sentenceCount < 1 {
		sentenceCount = 1
	}
	avgSentenceLen := float64(wordCount) / float64(sentenceCount)
	if avgSentenceLen >= 10 && avgSentenceLen <= 30 {
		score += 0.1
	}

	if strings.Contains(content, "```") || strings.Contains(content, "    ") {
		score += 0.05
	}
	if strings.Contains(content, "[") && strings.Contains(content, "]") {
		score += 0.05
	}

	return clamp01(score)
}

// ScoreRelevance scores keyword overlap between content and query.
func (s *Scorer) ScoreRelevance(content, query string) float64 {
	if content == "" || query == "" {
		return 0.0
	}
	contentLower := strings.ToLower(content)
	queryLower := strings.ToLower(query)

	var terms []string
	for _, term := range strings.Fields(queryLower) {
		if len(term) > 2 && isAlphanumeric(term) {
			terms = append(terms, term)
		}
	}
	if len(terms) == 0 {
		return 0.5
	}

	matches := 0
	for _, term := range terms {
		if strings.Contains(contentLower, term) {
			matches++
		}
	}
	ratio := float64(matches) / float64(len(terms))

	if strings.Contains(contentLower, queryLower) {
		ratio += 0.3
		if ratio > 1.0 {
			ratio = 1.0
		}
	}
	return ratio
}

// ScoreSource combines the component scores for a crawled page into an
// overall score in [0, 1]. An empty query fixes relevance at 0.5.
func (s *Scorer) ScoreSource(pageURL, content string, crawledAt time.Time, query string) float64 {
	authority := s.ScoreDomain(pageURL)
	freshness := s.ScoreFreshness(crawledAt)
	quality := s.ScoreContentQuality(content)
	relevance := 0.5
	if query != "" {
		relevance = s.ScoreRelevance(content, query)
	}

	overall := authority*s.weights.Authority +
		freshness*s.weights.Freshness +
		quality*s.weights.Quality +
		relevance*s.weights.Relevance

	s.logger.Debug("scored source",
		zap.String("url", pageURL),
		zap.Float64("authority", authority),
		zap.Float64("freshness", freshness),
		zap.Float64("quality", quality),
		zap.Float64("relevance", relevance),
		zap.Float64("overall", overall),
	)
	return s.clampScore(overall, pageURL)
}

// clampScore warns when a weight set pushes the weighted sum out of
// [0, 1] before clamping, so a misconfiguration surfaces in the logs
// instead of silently flattening the ranking.
func (s *Scorer) clampScore(overall float64, pageURL string) float64 {
	if overall < 0.0 || overall > 1.0 {
		s.logger.Warn("overall score out of range, clamping",
			zap.String("url", pageURL),
			zap.Float64("overall", overall),
		)
	}
	return clamp01(overall)
}

// ScoreChunk scores a chunk. Chunks carry no freshness signal, so the
// freshness weight is split between authority and content quality.
func (s *Scorer) ScoreChunk(chunk ContentChunk, query string) float64 {
	authority := s.ScoreDomain(chunk.SourceURL)
	quality := s.ScoreContentQuality(chunk.Content)
	relevance := 0.5
	if query != "" {
		relevance = s.ScoreRelevance(chunk.Content, query)
	}

	authWeight := s.weights.Authority + s.weights.Freshness/2
	qualWeight := s.weights.Quality + s.weights.Freshness/2

	return s.clampScore(authority*authWeight+quality*qualWeight+relevance*s.weights.Relevance, chunk.SourceURL)
}

// RankChunks returns chunks sorted by score descending, with each
// chunk's QualityScore filled in.
func (s *Scorer) RankChunks(chunks []ContentChunk, query string) []ContentChunk {
	ranked := make([]ContentChunk, len(chunks))
	copy(ranked, chunks)
	for i := range ranked {
		ranked[i].QualityScore = s.ScoreChunk(ranked[i], query)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].QualityScore > ranked[j].QualityScore
	})
	return ranked
}

// ScoreBreakdown is the per-factor detail behind an overall score.
type ScoreBreakdown struct {
	Authority      float64 `json:"authority"`
	Freshness      float64 `json:"freshness"`
	Relevance      float64 `json:"relevance"`
	ContentQuality float64 `json:"content_quality"`
}

// Breakdown returns the individual factor scores for a source.
func (s *Scorer) Breakdown(pageURL, content string, crawledAt time.Time, query string) ScoreBreakdown {
	relevance := 0.5
	if query != "" {
		relevance = s.ScoreRelevance(content, query)
	}
	return ScoreBreakdown{
		Authority:      s.ScoreDomain(pageURL),
		Freshness:      s.ScoreFreshness(crawledAt),
		Relevance:      relevance,
		ContentQuality: s.ScoreContentQuality(content),
	}
}

// Badges are quality flags surfaced alongside a cited source.
type Badges struct {
	IsVerified      bool `json:"is_verified"`
	IsRecent        bool `json:"is_recent"`
	IsAuthoritative bool `json:"is_authoritative"`
	IsPrimarySource bool `json:"is_primary_source"`
	IsAcademic      bool `json:"is_academic"`
}

// ComputeBadges derives quality badges from a source's URL and its
// authority and freshness scores.
func (s *Scorer) ComputeBadges(rawURL string, authority, freshness float64, verified bool) Badges {
	domain := ""
	if u, err := url.Parse(rawURL); err == nil {
		domain = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	}

	isAcademic := matchesDomainSet(domain, academicDomains) ||
		strings.HasSuffix(domain, ".edu") || strings.HasSuffix(domain, ".ac.uk")

	return Badges{
		IsVerified:      verified,
		IsRecent:        freshness >= 0.7,
		IsAuthoritative: authority >= 0.8,
		IsPrimarySource: matchesDomainSet(domain, primarySourceDomains),
		IsAcademic:      isAcademic,
	}
}

func matchesDomainSet(domain string, set map[string]struct{}) bool {
	if _, ok := set[domain]; ok {
		return true
	}
	for d := range set {
		if strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return len(s) > 0
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
