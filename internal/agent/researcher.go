package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/config"
	"github.com/diogenes-labs/diogenes/internal/crawl"
	"github.com/diogenes-labs/diogenes/internal/processing"
	"github.com/diogenes-labs/diogenes/internal/protocol"
	"github.com/diogenes-labs/diogenes/internal/search"
	"github.com/diogenes-labs/diogenes/internal/workerpool"
)

// ProcessedPage is a crawled page after the clean/score/chunk pipeline.
type ProcessedPage struct {
	URL          string                    `json:"url"`
	Title        string                    `json:"title"`
	Content      string                    `json:"content"`
	Chunks       []processing.ContentChunk `json:"chunks"`
	QualityScore float64                   `json:"quality_score"`
	CrawledAt    time.Time                 `json:"crawled_at"`
}

// Researcher gathers raw material: web and academic search hits, and
// crawled page content run through the processing pipeline.
type Researcher struct {
	search  *search.Client
	arxiv   *search.ArxivClient
	crawler *crawl.Crawler
	cleaner *processing.Cleaner
	chunker *processing.Chunker
	scorer  *processing.Scorer
	workers *workerpool.Pool
	logger  *zap.Logger
}

// NewResearcher wires the researcher's collaborators. The worker pool
// isolates the CPU-bound cleanup and scoring from network dispatch.
func NewResearcher(searchClient *search.Client, arxivClient *search.ArxivClient, crawler *crawl.Crawler, workers *workerpool.Pool, processingCfg config.ProcessingConfig, logger *zap.Logger) *Researcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Researcher{
		search:  searchClient,
		arxiv:   arxivClient,
		crawler: crawler,
		cleaner: processing.NewCleaner(),
		chunker: processing.NewChunker(processing.ChunkerOptions{
			ChunkSize:    processingCfg.ChunkSize,
			ChunkOverlap: processingCfg.ChunkOverlap,
			MinChunkSize: processingCfg.MinChunkSize,
		}, logger),
		scorer:  processing.NewScorer(logger),
		workers: workers,
		logger:  logger,
	}
}

func (r *Researcher) Type() string { return "researcher" }

func (r *Researcher) Capabilities() []Capability {
	return []Capability{CapSearching, CapCrawling, CapProcessing}
}

func (r *Researcher) Execute(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	switch task.Type {
	case protocol.TaskWebSearch:
		return r.webSearch(ctx, task)
	case protocol.TaskAcademicSearch:
		return r.academicSearch(ctx, task)
	case protocol.TaskCrawlURLs:
		return r.crawlURLs(ctx, task)
	default:
		return protocol.TaskResult{}, fmt.Errorf("unknown task type for researcher: %s", task.Type)
	}
}

func (r *Researcher) webSearch(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	queries := task.StringsInput("queries")
	if len(queries) == 0 {
		queries = []string{task.StringInput("query", "")}
	}
	numResults := task.IntInput("num_results", 10)

	r.logger.Info("executing web search", zap.Int("queries", len(queries)))

	resp, err := r.search.SearchMultiple(ctx, queries, numResults)
	if err != nil {
		return protocol.TaskResult{}, fmt.Errorf("web search: %w", err)
	}

	status := protocol.StatusSuccess
	confidence := 0.9
	if len(resp.Results) == 0 {
		status = protocol.StatusPartial
		confidence = 0.3
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: status,
		Outputs: map[string]interface{}{
			"results":          resp.Results,
			"total_found":      len(resp.Results),
			"queries_executed": len(queries),
		},
		Confidence: confidence,
	}, nil
}

// scholarlySites scopes the web-search fallback of an academic search.
const scholarlySites = " site:scholar.google.com OR site:pubmed.gov OR site:semanticscholar.org"

func (r *Researcher) academicSearch(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	queries := task.StringsInput("queries")
	if len(queries) == 0 {
		queries = []string{task.StringInput("query", "")}
	}
	maxResults := task.IntInput("max_results", 5)

	var results []search.Result
	seen := make(map[string]bool)

	for _, q := range queries {
		papers, err := r.arxiv.Search(ctx, q, maxResults)
		if err != nil {
			r.logger.Warn("arxiv search failed", zap.String("query", q), zap.Error(err))
			continue
		}
		for _, hit := range search.AsResults(papers) {
			if !seen[hit.URL] {
				seen[hit.URL] = true
				results = append(results, hit)
			}
		}
	}

	scoped := make([]string, len(queries))
	for i, q := range queries {
		scoped[i] = q + scholarlySites
	}
	resp, err := r.search.SearchMultiple(ctx, scoped, maxResults)
	if err != nil {
		r.logger.Warn("scholarly web search failed", zap.Error(err))
	} else {
		for _, hit := range resp.Results {
			if !seen[hit.URL] {
				seen[hit.URL] = true
				results = append(results, hit)
			}
		}
	}

	confidence := 0.85
	if len(results) == 0 {
		confidence = 0.3
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: protocol.StatusSuccess,
		Outputs: map[string]interface{}{
			"results":     results,
			"total_found": len(results),
		},
		Confidence: confidence,
	}, nil
}

func (r *Researcher) crawlURLs(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
	urls := task.StringsInput("urls")
	query := task.StringInput("query", "")

	if len(urls) == 0 {
		return protocol.TaskResult{
			TaskID: task.TaskID,
			Status: protocol.StatusSuccess,
			Outputs: map[string]interface{}{
				"pages":   []ProcessedPage{},
				"crawled": 0,
				"failed":  0,
			},
			Confidence: 1.0,
		}, nil
	}

	r.logger.Info("crawling urls", zap.Int("count", len(urls)))
	crawled := r.crawler.CrawlMany(ctx, urls)

	// The clean/score/chunk pipeline is CPU-bound; it runs on the
	// worker pool so it never stalls another session's network calls.
	futures := make([]*workerpool.Future, 0, len(crawled))
	var errs []string
	for _, res := range crawled {
		if !res.IsSuccess() {
			errs = append(errs, fmt.Sprintf("%s: %s", res.URL, res.ErrorMessage))
			continue
		}
		res := res
		future, err := r.workers.Submit(ctx, func(context.Context) (interface{}, error) {
			return r.processPage(res, query), nil
		})
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", res.URL, err))
			continue
		}
		futures = append(futures, future)
	}

	pages := make([]ProcessedPage, 0, len(futures))
	for _, future := range futures {
		value, err := future.Wait(ctx)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		pages = append(pages, value.(ProcessedPage))
	}

	status := protocol.StatusSuccess
	if len(pages) == 0 {
		status = protocol.StatusPartial
	}
	return protocol.TaskResult{
		TaskID: task.TaskID,
		Status: status,
		Outputs: map[string]interface{}{
			"pages":   pages,
			"crawled": len(pages),
			"failed":  len(errs),
		},
		Confidence: float64(len(pages)) / float64(len(urls)),
		Errors:     errs,
	}, nil
}

func (r *Researcher) processPage(res crawl.Result, query string) ProcessedPage {
	cleaned := r.cleaner.Clean(res.Content)
	score := r.scorer.ScoreSource(res.URL, cleaned, res.CrawledAt, query)
	chunks := r.chunker.Chunk(cleaned, res.URL, res.Title)
	if query != "" {
		chunks = r.scorer.RankChunks(chunks, query)
	}
	return ProcessedPage{
		URL:          res.URL,
		Title:        res.Title,
		Content:      cleaned,
		Chunks:       chunks,
		QualityScore: score,
		CrawledAt:    res.CrawledAt,
	}
}
