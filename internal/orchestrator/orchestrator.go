// Package orchestrator is the entry point for research sessions. It
// bounds concurrent sessions with a weighted semaphore, merges user
// memory context, drives the coordinator, runs the late verification
// and suggestion passes, and exposes both a blocking and a streaming
// API. Failure is always returned as data, never as a propagated error.
package orchestrator

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/diogenes-labs/diogenes/internal/agent"
	"github.com/diogenes-labs/diogenes/internal/coordinator"
	"github.com/diogenes-labs/diogenes/internal/memory"
	"github.com/diogenes-labs/diogenes/internal/metrics"
	"github.com/diogenes-labs/diogenes/internal/modes"
	"github.com/diogenes-labs/diogenes/internal/protocol"
	"github.com/diogenes-labs/diogenes/internal/session"
)

const (
	answerChunkSize    = 50
	maxStreamedSources = 5
	maxLateClaims      = 20

	// Reliability reported when a mode runs without verification.
	defaultReliability = 0.8
	defaultConfidence  = 0.8
)

// Options tunes one research call. The zero value researches in
// Balanced mode for the default user.
type Options struct {
	Mode      modes.SearchMode
	Context   string
	UserID    string
	SessionID string
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = modes.Balanced
	}
	if o.UserID == "" {
		o.UserID = "default"
	}
	if o.SessionID == "" {
		o.SessionID = uuid.New().String()
	}
	return o
}

// Orchestrator runs research sessions over a shared agent pool. The
// semaphore is the only global gate: blocking acquisition is the
// backpressure mechanism, so callers queue instead of failing when the
// system is saturated.
type Orchestrator struct {
	coord    *coordinator.Coordinator
	pool     *agent.Pool
	memories *memory.Store
	sessions *session.Manager
	sem      *semaphore.Weighted
	logger   *zap.Logger
}

// New builds an orchestrator. memories and sessions may be nil; memory
// context injection and result persistence are then skipped.
func New(coord *coordinator.Coordinator, pool *agent.Pool, memories *memory.Store, sessions *session.Manager, maxConcurrent int, logger *zap.Logger) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		coord:    coord,
		pool:     pool,
		memories: memories,
		sessions: sessions,
		sem:      semaphore.NewWeighted(int64(maxConcurrent)),
		logger:   logger,
	}
}

// Research runs one research session to completion and returns the
// result. It blocks while the orchestrator is at capacity.
func (o *Orchestrator) Research(ctx context.Context, query string, opts Options) *Result {
	opts = opts.withDefaults()
	start := time.Now()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return failedResult(opts.SessionID, query, opts.Mode, start,
			fmt.Sprintf("research not started: %v", err))
	}
	defer o.sem.Release(1)

	return o.run(ctx, query, opts, start, nil)
}

// ResearchStream runs one research session, emitting events on the
// returned channel. The channel is closed when the session ends. An
// abandoned consumer stops the event flow but is not an error.
func (o *Orchestrator) ResearchStream(ctx context.Context, query string, opts Options) <-chan Event {
	opts = opts.withDefaults()
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		start := time.Now()

		if err := o.sem.Acquire(ctx, 1); err != nil {
			o.emit(ctx, events, Event{Type: EventError, Data: ErrorEvent{
				Error: fmt.Sprintf("research not started: %v", err),
				Progress: Progress{
					SessionID: opts.SessionID,
					Query:     query,
					Phase:     StreamFailed,
				},
			}})
			return
		}
		defer o.sem.Release(1)

		o.run(ctx, query, opts, start, events)
	}()
	return events
}

// run is the shared session body. events is nil for blocking calls; all
// emissions are skipped then.
func (o *Orchestrator) run(ctx context.Context, query string, opts Options, start time.Time, events chan<- Event) (result *Result) {
	metrics.ActiveSessions.Inc()
	metrics.SessionsStarted.WithLabelValues(string(opts.Mode)).Inc()
	defer func() {
		metrics.ActiveSessions.Dec()
		if r := recover(); r != nil {
			o.logger.Error("research session panicked",
				zap.String("session_id", opts.SessionID),
				zap.Any("panic", r),
			)
			result = failedResult(opts.SessionID, query, opts.Mode, start, fmt.Sprintf("panic: %v", r))
			o.finishMetrics(result, start)
			o.emit(ctx, events, Event{Type: EventError, Data: ErrorEvent{
				Error:    result.Answer,
				Progress: o.progress(result.SessionID, query, StreamFailed, 0, nil),
			}})
		}
	}()

	o.emit(ctx, events, Event{Type: EventProgress,
		Data: o.progress(opts.SessionID, query, StreamInitializing, 0, nil)})

	userContext := o.mergeContext(ctx, query, opts)

	o.emit(ctx, events, Event{Type: EventProgress,
		Data: o.progress(opts.SessionID, query, StreamResearching, 0.2, nil)})

	rctx := o.coord.Research(ctx, query, opts.SessionID, opts.Mode, userContext)

	o.emit(ctx, events, Event{Type: EventProgress,
		Data: o.progress(opts.SessionID, query, StreamVerifying, 0.6, rctx)})

	for i, src := range rctx.Sources {
		if i >= maxStreamedSources {
			break
		}
		o.emit(ctx, events, Event{Type: EventSource,
			Data: SourceEvent{URL: src.URL, Title: src.Title}})
	}

	reliability := defaultReliability
	if rctx.Config.EnableVerification {
		if rctx.Reliability > 0 {
			reliability = rctx.Reliability
		} else {
			o.lateVerification(ctx, rctx)
			if rctx.Reliability > 0 {
				reliability = rctx.Reliability
			}
		}
	}

	o.emit(ctx, events, Event{Type: EventProgress,
		Data: o.progress(opts.SessionID, query, StreamSynthesizing, 0.85, rctx)})

	if rctx.FinalAnswer == "" {
		result = failedResult(opts.SessionID, query, opts.Mode, start, describeFailure(rctx))
		result.PhaseErrors = rctx.Errors
		result.Iterations = rctx.Iterations
		o.finishMetrics(result, start)
		o.emit(ctx, events, Event{Type: EventError, Data: ErrorEvent{
			Error:    result.Answer,
			Progress: o.progress(opts.SessionID, query, StreamFailed, 0.85, rctx),
		}})
		return result
	}

	o.streamAnswer(ctx, events, rctx.FinalAnswer)

	questions, topics := o.suggest(ctx, query, rctx)
	if len(questions) > 0 || len(topics) > 0 {
		o.emit(ctx, events, Event{Type: EventSuggestions, Data: SuggestionsEvent{
			SuggestedQuestions: questions,
			RelatedTopics:      topics,
		}})
	}

	duration := time.Since(start)
	result = &Result{
		SessionID:          opts.SessionID,
		Query:              query,
		Answer:             rctx.FinalAnswer,
		Sources:            rctx.Sources,
		VerifiedClaims:     rctx.VerifiedClaims,
		Contradictions:     rctx.Contradictions,
		ReliabilityScore:   reliability,
		Confidence:         defaultConfidence,
		Mode:               string(opts.Mode),
		Iterations:         rctx.Iterations,
		Duration:           duration,
		DurationSeconds:    duration.Seconds(),
		SuggestedQuestions: questions,
		RelatedTopics:      topics,
		PhaseErrors:        rctx.Errors,
		TokensUsed:         rctx.TokensUsed,
	}

	o.persist(ctx, result)
	o.finishMetrics(result, start)
	o.emit(ctx, events, Event{Type: EventComplete, Data: result})
	return result
}

// mergeContext combines stored user memories with the caller-provided
// context. Memory lookup failures are logged and ignored.
func (o *Orchestrator) mergeContext(ctx context.Context, query string, opts Options) string {
	memoryContext := ""
	if o.memories != nil {
		built, err := o.memories.BuildContextString(ctx, opts.UserID, query)
		if err != nil {
			o.logger.Warn("memory context unavailable",
				zap.String("user_id", opts.UserID),
				zap.Error(err),
			)
		} else {
			memoryContext = built
		}
	}
	switch {
	case memoryContext == "":
		return opts.Context
	case opts.Context == "":
		return memoryContext
	default:
		return memoryContext + "\n\n" + opts.Context
	}
}

// lateVerification verifies claims extracted from the final answer when
// the mode wants verification but the coordinator produced none (for
// example when fact extraction came up empty).
func (o *Orchestrator) lateVerification(ctx context.Context, rctx *coordinator.ResearchContext) {
	if o.pool.Get("verifier") == nil || rctx.FinalAnswer == "" {
		return
	}
	claims := agent.ExtractClaims(rctx.FinalAnswer, maxLateClaims)
	if len(claims) == 0 {
		return
	}

	task := protocol.NewTask(protocol.TaskVerifyClaims, "verifier", map[string]interface{}{
		"claims":  claims,
		"sources": rctx.Pages,
	}).WithTimeout(60 * time.Second)

	res := o.pool.Execute(ctx, task)
	if !res.Usable() {
		o.logger.Warn("late verification failed",
			zap.String("session_id", rctx.SessionID),
			zap.Strings("errors", res.Errors),
		)
		return
	}
	if verified, ok := res.Outputs["verified_claims"].([]protocol.VerifiedClaim); ok {
		rctx.VerifiedClaims = verified
	}
	if contradictions, ok := res.Outputs["contradictions"].([]protocol.Contradiction); ok {
		rctx.Contradictions = contradictions
	}
	if score, ok := res.Outputs["reliability_score"].(float64); ok {
		rctx.Reliability = score
	}
}

// suggest asks the suggester for follow-ups. Best effort: any failure
// yields empty suggestions.
func (o *Orchestrator) suggest(ctx context.Context, query string, rctx *coordinator.ResearchContext) ([]string, []string) {
	if o.pool.Get("suggester") == nil {
		return nil, nil
	}

	titles := make([]string, 0, maxStreamedSources)
	for i, src := range rctx.Sources {
		if i >= maxStreamedSources {
			break
		}
		titles = append(titles, src.Title)
	}
	quick := rctx.Mode == modes.Quick || rctx.Mode == modes.Balanced

	task := protocol.NewTask(protocol.TaskGenerateSuggestions, "suggester", map[string]interface{}{
		"query":   query,
		"answer":  rctx.FinalAnswer,
		"sources": titles,
		"quick":   quick,
	}).WithTimeout(30 * time.Second)

	res := o.pool.Execute(ctx, task)
	if !res.Usable() {
		o.logger.Warn("suggestions unavailable",
			zap.String("session_id", rctx.SessionID),
			zap.Strings("errors", res.Errors),
		)
		return nil, nil
	}
	questions, _ := res.Outputs["suggested_questions"].([]string)
	topics, _ := res.Outputs["related_topics"].([]string)
	return questions, topics
}

// streamAnswer emits the answer in fixed-size rune slices, yielding the
// processor between slices so a slow consumer never monopolizes it.
func (o *Orchestrator) streamAnswer(ctx context.Context, events chan<- Event, answer string) {
	if events == nil {
		return
	}
	runes := []rune(answer)
	for i := 0; i < len(runes); i += answerChunkSize {
		end := i + answerChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if !o.emit(ctx, events, Event{Type: EventAnswerChunk,
			Data: AnswerChunk{Content: string(runes[i:end])}}) {
			return
		}
		runtime.Gosched()
	}
}

// persist records the finished result on the session, when both a
// session store and a session exist. Failure is logged and ignored;
// persistence never blocks delivering the answer.
func (o *Orchestrator) persist(ctx context.Context, result *Result) {
	if o.sessions == nil {
		return
	}
	err := o.sessions.RecordResult(ctx, result.SessionID, result.Query, result.Answer,
		result.SourceURLs(), result.SuggestedQuestions, result.TokensUsed)
	if err != nil {
		o.logger.Warn("session persistence failed",
			zap.String("session_id", result.SessionID),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) progress(sessionID, query string, phase StreamPhase, pct float64, rctx *coordinator.ResearchContext) Progress {
	p := Progress{
		SessionID:   sessionID,
		Query:       query,
		Phase:       phase,
		ProgressPct: pct,
	}
	if rctx != nil {
		p.SourcesFound = len(rctx.SearchResults)
		p.SourcesCrawled = len(rctx.Pages)
		p.ClaimsVerified = len(rctx.VerifiedClaims)
		p.Iterations = rctx.Iterations
		p.ElapsedSeconds = rctx.Elapsed().Seconds()
	}
	return p
}

// emit sends an event unless the stream is nil or the consumer is gone.
func (o *Orchestrator) emit(ctx context.Context, events chan<- Event, ev Event) bool {
	if events == nil {
		return true
	}
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func (o *Orchestrator) finishMetrics(result *Result, start time.Time) {
	status := "success"
	if result.Failed {
		status = "failed"
	}
	metrics.SessionsCompleted.WithLabelValues(result.Mode, status).Inc()
	metrics.SessionDuration.WithLabelValues(result.Mode).Observe(time.Since(start).Seconds())
}

func failedResult(sessionID, query string, mode modes.SearchMode, start time.Time, reason string) *Result {
	duration := time.Since(start)
	return &Result{
		SessionID:       sessionID,
		Query:           query,
		Answer:          "Research failed: " + reason,
		Mode:            string(mode),
		Duration:        duration,
		DurationSeconds: duration.Seconds(),
		Failed:          true,
	}
}

func describeFailure(rctx *coordinator.ResearchContext) string {
	if len(rctx.Errors) > 0 {
		last := rctx.Errors[len(rctx.Errors)-1]
		return fmt.Sprintf("%s phase: %s", last.Phase, last.Error)
	}
	return "no answer produced"
}
