package coordinator

import (
	"time"

	"github.com/diogenes-labs/diogenes/internal/agent"
	"github.com/diogenes-labs/diogenes/internal/citation"
	"github.com/diogenes-labs/diogenes/internal/modes"
	"github.com/diogenes-labs/diogenes/internal/processing"
	"github.com/diogenes-labs/diogenes/internal/protocol"
	"github.com/diogenes-labs/diogenes/internal/search"
)

// Phase names one stage of the research pipeline.
type Phase string

const (
	PhasePlanning     Phase = "planning"
	PhaseResearch     Phase = "research"
	PhaseProcessing   Phase = "processing"
	PhaseVerification Phase = "verification"
	PhaseSynthesis    Phase = "synthesis"
	PhaseReview       Phase = "review"

	// PhaseCoordination attributes errors raised by the pipeline itself
	// rather than by any single phase.
	PhaseCoordination Phase = "coordination"
)

// PhaseError records a non-fatal failure in one phase. Phases degrade
// instead of aborting, so errors accumulate here and the pipeline keeps
// whatever it produced before the failure.
type PhaseError struct {
	Phase Phase  `json:"phase"`
	Error string `json:"error"`
}

// ResearchContext is the shared state of one research session as it
// moves through the phases. The coordinator owns it for the duration of
// the run; callers read it afterwards.
type ResearchContext struct {
	Query       string           `json:"query"`
	SessionID   string           `json:"session_id"`
	UserContext string           `json:"user_context,omitempty"`
	Mode        modes.SearchMode `json:"mode"`
	Config      modes.Config     `json:"-"`
	StartTime   time.Time        `json:"start_time"`

	Plan           *protocol.ResearchPlan     `json:"plan,omitempty"`
	SearchResults  []search.Result            `json:"search_results,omitempty"`
	Pages          []agent.ProcessedPage      `json:"-"`
	Facts          []processing.ExtractedFact `json:"facts,omitempty"`
	VerifiedClaims []protocol.VerifiedClaim   `json:"verified_claims,omitempty"`
	Contradictions []protocol.Contradiction   `json:"contradictions,omitempty"`
	Reliability    float64                    `json:"reliability_score"`

	DraftAnswer string                `json:"-"`
	FinalAnswer string                `json:"final_answer"`
	Sources     []citation.SourceCard `json:"sources,omitempty"`
	TokensUsed  int                   `json:"tokens_used"`
	Iterations  int                   `json:"iterations"`

	Errors []PhaseError            `json:"errors,omitempty"`
	Timing map[Phase]time.Duration `json:"timing,omitempty"`

	crawledURLs map[string]struct{}
}

func newResearchContext(query, sessionID, userContext string, mode modes.SearchMode) *ResearchContext {
	return &ResearchContext{
		Query:       query,
		SessionID:   sessionID,
		UserContext: userContext,
		Mode:        mode,
		Config:      modes.ConfigFor(mode),
		StartTime:   time.Now(),
		Timing:      make(map[Phase]time.Duration),
		crawledURLs: make(map[string]struct{}),
	}
}

// Elapsed is the wall-clock time since the session started.
func (c *ResearchContext) Elapsed() time.Duration {
	return time.Since(c.StartTime)
}

// TimeRemaining is what is left of the mode's time budget. Negative when
// the budget is already spent.
func (c *ResearchContext) TimeRemaining() time.Duration {
	return c.Config.TimeBudget() - c.Elapsed()
}

// Failed reports whether the run produced no answer at all.
func (c *ResearchContext) Failed() bool {
	return c.FinalAnswer == ""
}

// SourceURLs lists the cited source URLs in citation order.
func (c *ResearchContext) SourceURLs() []string {
	urls := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		urls = append(urls, s.URL)
	}
	return urls
}

func (c *ResearchContext) recordError(phase Phase, msg string) {
	c.Errors = append(c.Errors, PhaseError{Phase: phase, Error: msg})
}

func (c *ResearchContext) markCrawled(url string) {
	c.crawledURLs[url] = struct{}{}
}

func (c *ResearchContext) alreadyCrawled(url string) bool {
	_, ok := c.crawledURLs[url]
	return ok
}
