package orchestrator

import (
	"time"

	"github.com/diogenes-labs/diogenes/internal/citation"
	"github.com/diogenes-labs/diogenes/internal/coordinator"
	"github.com/diogenes-labs/diogenes/internal/protocol"
)

// EventType tags one streamed research event.
type EventType string

const (
	EventProgress    EventType = "progress"
	EventSource      EventType = "source"
	EventAnswerChunk EventType = "answer_chunk"
	EventSuggestions EventType = "suggestions"
	EventComplete    EventType = "complete"
	EventError       EventType = "error"
)

// Event is one message on a research stream.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// StreamPhase names the coarse stage reported in progress events. It is
// the consumer-facing view; the coordinator's phases are finer grained.
type StreamPhase string

const (
	StreamInitializing StreamPhase = "initializing"
	StreamPlanning     StreamPhase = "planning"
	StreamResearching  StreamPhase = "researching"
	StreamVerifying    StreamPhase = "verifying"
	StreamSynthesizing StreamPhase = "synthesizing"
	StreamComplete     StreamPhase = "complete"
	StreamFailed       StreamPhase = "failed"
)

// Progress is the payload of a progress event.
type Progress struct {
	SessionID      string      `json:"session_id"`
	Query          string      `json:"query"`
	Phase          StreamPhase `json:"phase"`
	ProgressPct    float64     `json:"progress_pct"`
	SourcesFound   int         `json:"sources_found"`
	SourcesCrawled int         `json:"sources_crawled"`
	ClaimsVerified int         `json:"claims_verified"`
	Iterations     int         `json:"iterations"`
	ElapsedSeconds float64     `json:"elapsed_seconds"`
}

// SourceEvent is the payload of a source event.
type SourceEvent struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// AnswerChunk is one fixed-size slice of the synthesized answer.
type AnswerChunk struct {
	Content string `json:"content"`
}

// SuggestionsEvent carries the best-effort follow-up suggestions.
type SuggestionsEvent struct {
	SuggestedQuestions []string `json:"suggested_questions"`
	RelatedTopics      []string `json:"related_topics"`
}

// ErrorEvent is the terminal payload of a failed stream.
type ErrorEvent struct {
	Error    string   `json:"error"`
	Progress Progress `json:"progress"`
}

// Result is the outcome of one research session. A failed session is
// still a Result: Failed is set, reliability and confidence are zero,
// and Answer explains what went wrong.
type Result struct {
	SessionID          string                    `json:"session_id"`
	Query              string                    `json:"query"`
	Answer             string                    `json:"answer"`
	Sources            []citation.SourceCard     `json:"sources"`
	VerifiedClaims     []protocol.VerifiedClaim  `json:"verified_claims,omitempty"`
	Contradictions     []protocol.Contradiction  `json:"contradictions,omitempty"`
	ReliabilityScore   float64                   `json:"reliability_score"`
	Confidence         float64                   `json:"confidence"`
	Mode               string                    `json:"mode"`
	Iterations         int                       `json:"iterations"`
	Duration           time.Duration             `json:"-"`
	DurationSeconds    float64                   `json:"duration_seconds"`
	SuggestedQuestions []string                  `json:"suggested_questions,omitempty"`
	RelatedTopics      []string                  `json:"related_topics,omitempty"`
	PhaseErrors        []coordinator.PhaseError  `json:"phase_errors,omitempty"`
	TokensUsed         int                       `json:"tokens_used"`
	Failed             bool                      `json:"failed"`
}

// SourceURLs lists the cited source URLs in citation order.
func (r *Result) SourceURLs() []string {
	urls := make([]string, 0, len(r.Sources))
	for _, s := range r.Sources {
		urls = append(urls, s.URL)
	}
	return urls
}
