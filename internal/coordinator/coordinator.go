// Package coordinator drives one research session through its phases:
// planning, research, processing, optional verification, synthesis, and
// the review loop. Phases degrade instead of aborting; a missing agent
// or a failed phase leaves its mark in the context and the pipeline
// carries on with what it has.
package coordinator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/agent"
	"github.com/diogenes-labs/diogenes/internal/citation"
	"github.com/diogenes-labs/diogenes/internal/llm"
	"github.com/diogenes-labs/diogenes/internal/metrics"
	"github.com/diogenes-labs/diogenes/internal/modes"
	"github.com/diogenes-labs/diogenes/internal/processing"
	"github.com/diogenes-labs/diogenes/internal/protocol"
	"github.com/diogenes-labs/diogenes/internal/search"
	"github.com/diogenes-labs/diogenes/internal/workerpool"
)

const planningPrompt = `You are a research planning assistant. Decompose the query below into a research plan.

QUERY: %s
%s
Respond with JSON only:
{
  "intent": "what the user actually wants to know",
  "sub_queries": ["2-4 focused search queries"],
  "source_types": ["web", "academic", "news", "technical"],
  "strategies": ["general", "comparative", "historical"],
  "key_concepts": ["the core concepts involved"],
  "verification_level": "minimal|standard|rigorous",
  "output_format": "prose|list|comparison"
}`

const (
	searchTimeout    = 30 * time.Second
	verifyTimeout    = 60 * time.Second
	synthesisTimeout = 90 * time.Second

	maxClaimsToVerify = 20
	factsPerChunk     = 3
	maxFactsTotal     = 60

	// The review loop needs at least this much budget left to bother
	// with another iteration.
	reviewMinRemaining = 30 * time.Second
	minAnswerWords     = 100
)

// writerStyles maps a mode's synthesis style to the writer's prompt
// styles.
var writerStyles = map[string]string{
	"concise":       "brief",
	"balanced":      "comprehensive",
	"comprehensive": "comprehensive",
	"academic":      "academic",
	"technical":     "technical",
}

// Coordinator orchestrates the agent pool through the phases of one
// research session. It holds no per-session state; all of that lives in
// the ResearchContext, so a single Coordinator serves concurrent
// sessions.
type Coordinator struct {
	pool         *agent.Pool
	llm          *llm.Client
	plannerModel string
	workers      *workerpool.Pool
	logger       *zap.Logger
}

// New builds a coordinator over the given agent pool. client and workers
// may be nil; planning then falls back to the single-query plan and fact
// extraction runs inline.
func New(pool *agent.Pool, client *llm.Client, plannerModel string, workers *workerpool.Pool, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		pool:         pool,
		llm:          client,
		plannerModel: plannerModel,
		workers:      workers,
		logger:       logger,
	}
}

// Research runs the full pipeline for one query and returns the session
// context. It never returns an error: failures are recorded in the
// context's Errors and the answer reflects whatever the pipeline managed
// to produce.
func (c *Coordinator) Research(ctx context.Context, query, sessionID string, mode modes.SearchMode, userContext string) *ResearchContext {
	rctx := newResearchContext(query, sessionID, userContext, mode)

	c.logger.Info("research session started",
		zap.String("session_id", sessionID),
		zap.String("mode", string(mode)),
		zap.String("query", truncateQuery(query)),
	)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("research pipeline panicked",
				zap.String("session_id", sessionID),
				zap.Any("panic", r),
			)
			rctx.recordError(PhaseCoordination, fmt.Sprintf("panic: %v", r))
		}
	}()

	c.runPhase(ctx, rctx, PhasePlanning, c.planning)
	c.runPhase(ctx, rctx, PhaseResearch, c.research)
	c.runPhase(ctx, rctx, PhaseProcessing, c.processing)
	if rctx.Config.EnableVerification {
		c.runPhase(ctx, rctx, PhaseVerification, c.verification)
	}
	c.runPhase(ctx, rctx, PhaseSynthesis, c.synthesis)
	c.reviewLoop(ctx, rctx)

	metrics.ReviewIterations.Observe(float64(rctx.Iterations))
	c.logger.Info("research session finished",
		zap.String("session_id", sessionID),
		zap.Duration("elapsed", rctx.Elapsed()),
		zap.Int("sources", len(rctx.Sources)),
		zap.Int("iterations", rctx.Iterations),
		zap.Int("phase_errors", len(rctx.Errors)),
	)
	return rctx
}

type phaseFunc func(ctx context.Context, rctx *ResearchContext) error

func (c *Coordinator) runPhase(ctx context.Context, rctx *ResearchContext, phase Phase, fn phaseFunc) {
	start := time.Now()
	err := fn(ctx, rctx)
	elapsed := time.Since(start)
	rctx.Timing[phase] += elapsed
	metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(elapsed.Seconds())

	if err != nil {
		c.logger.Warn("phase degraded",
			zap.String("session_id", rctx.SessionID),
			zap.String("phase", string(phase)),
			zap.Error(err),
		)
		rctx.recordError(phase, err.Error())
		return
	}
	c.logger.Debug("phase complete",
		zap.String("phase", string(phase)),
		zap.Duration("took", elapsed),
	)
}

func (c *Coordinator) planning(ctx context.Context, rctx *ResearchContext) error {
	if !rctx.Config.EnablePlanning || c.llm == nil {
		rctx.Plan = protocol.FallbackPlan(rctx.Query)
		return nil
	}

	contextSection := ""
	if rctx.UserContext != "" {
		contextSection = "\nUSER CONTEXT:\n" + rctx.UserContext + "\n"
	}
	prompt := fmt.Sprintf(planningPrompt, rctx.Query, contextSection)

	var plan protocol.ResearchPlan
	err := c.llm.GenerateStructuredWith(ctx, prompt, llm.Options{
		Model:       c.plannerModel,
		Temperature: 0.3,
		MaxTokens:   600,
	}, &plan)
	if err != nil || len(plan.SubQueries) == 0 {
		rctx.Plan = protocol.FallbackPlan(rctx.Query)
		if err != nil {
			return fmt.Errorf("planner unavailable, using fallback plan: %w", err)
		}
		return nil
	}

	plan.Query = rctx.Query
	rctx.Plan = &plan
	return nil
}

func (c *Coordinator) research(ctx context.Context, rctx *ResearchContext) error {
	if c.pool.Get("researcher") == nil {
		c.logger.Warn("no researcher registered, skipping research phase",
			zap.String("session_id", rctx.SessionID))
		return nil
	}

	queries := rctx.Plan.Queries()
	if len(queries) == 0 {
		queries = []string{rctx.Query}
	}
	if rctx.Iterations > 0 {
		queries = refinementQueries(rctx.Query)
	}

	searchTask := protocol.NewTask(protocol.TaskWebSearch, "researcher", map[string]interface{}{
		"queries":     queries,
		"num_results": rctx.Config.MaxSearchResults,
	}).WithPriority(protocol.PriorityHigh).WithTimeout(searchTimeout)

	searchResult := c.pool.Execute(ctx, searchTask)
	if !searchResult.Usable() {
		return fmt.Errorf("search failed: %s", strings.Join(searchResult.Errors, "; "))
	}
	if results, ok := searchResult.Outputs["results"].([]search.Result); ok {
		rctx.SearchResults = append(rctx.SearchResults, results...)
	}

	// Academic modes also search scholarly sources. Best effort: a dry
	// arXiv run must not sink the session.
	if rctx.Config.SynthesisStyle == "academic" && rctx.Iterations == 0 {
		academicTask := protocol.NewTask(protocol.TaskAcademicSearch, "researcher", map[string]interface{}{
			"queries":     queries,
			"max_results": rctx.Config.MaxSearchResults,
		}).WithTimeout(searchTimeout)
		academicResult := c.pool.Execute(ctx, academicTask)
		if academicResult.Usable() {
			if results, ok := academicResult.Outputs["results"].([]search.Result); ok {
				rctx.SearchResults = append(rctx.SearchResults, results...)
			}
		} else {
			c.logger.Warn("academic search unavailable",
				zap.String("session_id", rctx.SessionID),
				zap.Strings("errors", academicResult.Errors))
		}
	}

	urls := c.selectCrawlURLs(rctx)
	if len(urls) == 0 {
		return nil
	}

	crawlTask := protocol.NewTask(protocol.TaskCrawlURLs, "researcher", map[string]interface{}{
		"urls":  urls,
		"query": rctx.Query,
	}).WithTimeout(rctx.Config.CrawlTimeout + 10*time.Second)

	crawlResult := c.pool.Execute(ctx, crawlTask)
	if !crawlResult.Usable() {
		return fmt.Errorf("crawl failed: %s", strings.Join(crawlResult.Errors, "; "))
	}
	if pages, ok := crawlResult.Outputs["pages"].([]agent.ProcessedPage); ok {
		rctx.Pages = append(rctx.Pages, pages...)
	}
	return nil
}

// selectCrawlURLs picks the best-scored search results that have not
// been crawled yet, up to the mode's crawl limit, and marks them
// crawled so review iterations move down the ranking.
func (c *Coordinator) selectCrawlURLs(rctx *ResearchContext) []string {
	ranked := make([]search.Result, len(rctx.SearchResults))
	copy(ranked, rctx.SearchResults)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	urls := make([]string, 0, rctx.Config.MaxSourcesToCrawl)
	for _, r := range ranked {
		if len(urls) >= rctx.Config.MaxSourcesToCrawl {
			break
		}
		if r.URL == "" || rctx.alreadyCrawled(r.URL) {
			continue
		}
		rctx.markCrawled(r.URL)
		urls = append(urls, r.URL)
	}
	return urls
}

func (c *Coordinator) processing(ctx context.Context, rctx *ResearchContext) error {
	if len(rctx.Pages) == 0 {
		return nil
	}

	sort.SliceStable(rctx.Pages, func(i, j int) bool {
		return rctx.Pages[i].QualityScore > rctx.Pages[j].QualityScore
	})

	// With a model available, extract facts with per-chunk model calls.
	// Otherwise fall back to the heuristic extractor, which is also the
	// path the quick mode relies on for latency.
	if c.llm != nil && rctx.Config.SynthesisStyle != "concise" {
		var chunks []processing.ContentChunk
		for _, page := range rctx.Pages {
			chunks = append(chunks, page.Chunks...)
		}
		facts := processing.NewFactExtractor(c.llm, c.logger).
			ExtractFactsBatch(ctx, chunks, factsPerChunk, maxFactsTotal)
		if len(facts) > 0 {
			rctx.Facts = append(rctx.Facts, facts...)
			return nil
		}
	}

	extractor := processing.QuickFactExtractor{}
	if c.workers == nil {
		for _, page := range rctx.Pages {
			rctx.Facts = append(rctx.Facts, extractPageFacts(extractor, page)...)
		}
		return nil
	}

	futures := make([]*workerpool.Future, 0, len(rctx.Pages))
	for _, page := range rctx.Pages {
		page := page
		fut, err := c.workers.Submit(ctx, func(context.Context) (interface{}, error) {
			return extractPageFacts(extractor, page), nil
		})
		if err != nil {
			rctx.Facts = append(rctx.Facts, extractPageFacts(extractor, page)...)
			continue
		}
		futures = append(futures, fut)
	}
	for _, fut := range futures {
		value, err := fut.Wait(ctx)
		if err != nil {
			return fmt.Errorf("fact extraction interrupted: %w", err)
		}
		if facts, ok := value.([]processing.ExtractedFact); ok {
			rctx.Facts = append(rctx.Facts, facts...)
		}
	}
	return nil
}

func extractPageFacts(extractor processing.QuickFactExtractor, page agent.ProcessedPage) []processing.ExtractedFact {
	var facts []processing.ExtractedFact
	for _, chunk := range page.Chunks {
		facts = append(facts, extractor.ExtractFacts(chunk, factsPerChunk)...)
	}
	return facts
}

func (c *Coordinator) verification(ctx context.Context, rctx *ResearchContext) error {
	if c.pool.Get("verifier") == nil {
		c.logger.Warn("no verifier registered, skipping verification phase",
			zap.String("session_id", rctx.SessionID))
		return nil
	}
	if len(rctx.Facts) == 0 || len(rctx.Pages) == 0 {
		return nil
	}

	claims := make([]string, 0, maxClaimsToVerify)
	for _, fact := range rctx.Facts {
		if len(claims) >= maxClaimsToVerify {
			break
		}
		claims = append(claims, fact.Content)
	}

	task := protocol.NewTask(protocol.TaskVerifyClaims, "verifier", map[string]interface{}{
		"claims":  claims,
		"sources": rctx.Pages,
	}).WithTimeout(verifyTimeout)

	result := c.pool.Execute(ctx, task)
	if !result.Usable() {
		return fmt.Errorf("verification failed: %s", strings.Join(result.Errors, "; "))
	}
	if verified, ok := result.Outputs["verified_claims"].([]protocol.VerifiedClaim); ok {
		rctx.VerifiedClaims = verified
	}
	if contradictions, ok := result.Outputs["contradictions"].([]protocol.Contradiction); ok {
		rctx.Contradictions = contradictions
	}
	if reliability, ok := result.Outputs["reliability_score"].(float64); ok {
		rctx.Reliability = reliability
	}
	return nil
}

func (c *Coordinator) synthesis(ctx context.Context, rctx *ResearchContext) error {
	if c.pool.Get("writer") == nil {
		c.logger.Warn("no writer registered, skipping synthesis phase",
			zap.String("session_id", rctx.SessionID))
		return nil
	}

	cm := citation.NewManager(c.logger)
	findings := c.buildFindings(rctx, cm)
	if findings == "" {
		return fmt.Errorf("nothing to synthesize: no crawled pages and no search results")
	}

	style := writerStyles[rctx.Config.SynthesisStyle]
	if style == "" {
		style = "comprehensive"
	}

	task := protocol.NewTask(protocol.TaskSynthesizeAnswer, "writer", map[string]interface{}{
		"query":           rctx.Query,
		"style":           style,
		"findings":        findings,
		"verified_claims": rctx.VerifiedClaims,
		"sources":         cm.SourceCards(false),
	}).WithTimeout(synthesisTimeout)

	result := c.pool.Execute(ctx, task)
	if !result.Usable() {
		return fmt.Errorf("synthesis failed: %s", strings.Join(result.Errors, "; "))
	}

	draft, _ := result.Outputs["content"].(string)
	rctx.DraftAnswer = draft
	rctx.FinalAnswer = cm.AnnotateAnswer(draft)

	rctx.Sources = cm.SourceCards(true)
	if len(rctx.Sources) == 0 {
		all := cm.SourceCards(false)
		if len(all) > rctx.Config.MaxSourcesForSynthesis {
			all = all[:rctx.Config.MaxSourcesForSynthesis]
		}
		rctx.Sources = all
	}

	if tokens, ok := result.Outputs["tokens_used"].(int); ok {
		rctx.TokensUsed += tokens
	}
	return nil
}

// buildFindings registers the crawled pages with the citation manager
// and assembles the model context from their best chunks. When nothing
// was crawled it falls back to the raw search snippets.
func (c *Coordinator) buildFindings(rctx *ResearchContext, cm *citation.Manager) string {
	var chunks []processing.ContentChunk
	for _, page := range rctx.Pages {
		src := cm.RegisterSource(page.URL, page.Title, page.Content, page.QualityScore, page.CrawledAt)
		for _, chunk := range page.Chunks {
			cm.RegisterChunk(chunk.ID, src.ID)
		}
		chunks = append(chunks, page.Chunks...)
	}
	if len(chunks) > 0 {
		if len(chunks) > rctx.Config.MaxChunksForSynthesis {
			chunks = chunks[:rctx.Config.MaxChunksForSynthesis]
		}
		return cm.BuildContext(chunks)
	}

	limit := rctx.Config.MaxSourcesForSynthesis
	var b strings.Builder
	for i, r := range rctx.SearchResults {
		if i >= limit {
			break
		}
		src := cm.RegisterSearchResult(r.URL, r.Title, r.Snippet, r.Score)
		fmt.Fprintf(&b, "[Source [%d]: %s]\n%s\n\n", src.CitationIndex, r.Title, r.Snippet)
	}
	return strings.TrimSpace(b.String())
}

func (c *Coordinator) reviewLoop(ctx context.Context, rctx *ResearchContext) {
	cfg := rctx.Config
	if !cfg.EnableReflection || cfg.MaxIterations == 0 {
		return
	}

	for rctx.Iterations < cfg.MaxIterations &&
		rctx.TimeRemaining() > reviewMinRemaining &&
		needsMoreWork(rctx.FinalAnswer) {

		rctx.Iterations++
		c.logger.Info("review loop: answer needs more work",
			zap.String("session_id", rctx.SessionID),
			zap.Int("iteration", rctx.Iterations),
			zap.Duration("remaining", rctx.TimeRemaining()),
		)

		start := time.Now()
		c.runPhase(ctx, rctx, PhaseResearch, c.research)
		c.runPhase(ctx, rctx, PhaseProcessing, c.processing)
		c.runPhase(ctx, rctx, PhaseSynthesis, c.synthesis)
		rctx.Timing[PhaseReview] += time.Since(start)
	}
}

// needsMoreWork applies the review heuristics: an empty answer, an
// answer under the minimum word count, or one carrying no citation
// markers at all.
func needsMoreWork(answer string) bool {
	if strings.TrimSpace(answer) == "" {
		return true
	}
	if len(strings.Fields(answer)) < minAnswerWords {
		return true
	}
	if !strings.Contains(answer, "[") || !strings.Contains(answer, "]") {
		return true
	}
	return false
}

func refinementQueries(query string) []string {
	return []string{
		query + " in more detail",
		query + " key facts",
	}
}

func truncateQuery(q string) string {
	if len(q) > 120 {
		return q[:120] + "..."
	}
	return q
}
