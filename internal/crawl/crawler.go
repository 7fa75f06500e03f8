package crawl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diogenes-labs/diogenes/internal/config"
	"github.com/diogenes-labs/diogenes/internal/metrics"
)

// Fetcher retrieves one page. The HTTP fetcher is the default; the
// browser fetcher handles pages that need JavaScript.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string) (Result, error)
}

// Crawler fetches pages with per-domain politeness and a concurrency
// bound for batches.
type Crawler struct {
	fetcher       Fetcher
	limiter       *domainLimiter
	maxConcurrent int
	maxURLs       int
	timeout       time.Duration
	logger        *zap.Logger
}

// New builds a crawler from config. A nil fetcher gets the plain HTTP
// fetcher.
func New(cfg config.CrawlConfig, fetcher Fetcher, logger *zap.Logger) *Crawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fetcher == nil {
		fetcher = NewHTTPFetcher(cfg, logger)
	}
	return &Crawler{
		fetcher:       fetcher,
		limiter:       newDomainLimiter(cfg.RateLimitPerDomain),
		maxConcurrent: cfg.MaxConcurrent,
		maxURLs:       cfg.MaxURLsPerRequest,
		timeout:       cfg.Timeout,
		logger:        logger,
	}
}

// Crawl fetches one URL, honoring the domain rate limit.
func (c *Crawler) Crawl(ctx context.Context, pageURL string) Result {
	domain := Domain(pageURL)
	if domain == "" {
		return FailedResult(pageURL, StatusError, fmt.Errorf("invalid url %q", pageURL))
	}
	if err := c.limiter.Wait(ctx, domain); err != nil {
		return FailedResult(pageURL, StatusSkipped, err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	result, err := c.fetcher.Fetch(fetchCtx, pageURL)
	metrics.CrawlDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		status := StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = StatusTimeout
		}
		metrics.PagesCrawled.WithLabelValues(string(status)).Inc()
		c.logger.Warn("crawl failed",
			zap.String("url", pageURL),
			zap.Error(err),
		)
		return FailedResult(pageURL, status, err)
	}

	metrics.PagesCrawled.WithLabelValues(string(result.Status)).Inc()
	c.logger.Debug("crawled page",
		zap.String("url", pageURL),
		zap.Int("words", result.WordCount),
		zap.Duration("took", result.CrawlTime),
	)
	return result
}

// CrawlMany fetches a batch of URLs concurrently, bounded by the
// configured limit. The batch is capped at the per-request URL limit.
// Results come back in input order; individual failures appear as
// failed results, never as an error.
func (c *Crawler) CrawlMany(ctx context.Context, urls []string) []Result {
	if len(urls) > c.maxURLs {
		c.logger.Warn("truncating crawl batch",
			zap.Int("requested", len(urls)),
			zap.Int("limit", c.maxURLs),
		)
		urls = urls[:c.maxURLs]
	}

	results := make([]Result, len(urls))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			results[i] = c.Crawl(gctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// HTTPFetcher retrieves pages with a plain HTTP GET and extracts the
// readable text.
type HTTPFetcher struct {
	client           *http.Client
	userAgent        string
	maxContentLength int
	logger           *zap.Logger
}

// NewHTTPFetcher builds the default fetcher.
func NewHTTPFetcher(cfg config.CrawlConfig, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		client:           &http.Client{Timeout: cfg.Timeout},
		userAgent:        cfg.UserAgent,
		maxContentLength: cfg.MaxContentLength,
		logger:           logger,
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) (Result, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return FailedResult(pageURL, StatusBlocked, fmt.Errorf("status %d", resp.StatusCode)), nil
	case resp.StatusCode != http.StatusOK:
		return FailedResult(pageURL, StatusError, fmt.Errorf("status %d", resp.StatusCode)), nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(f.maxContentLength)))
	if err != nil {
		return Result{}, err
	}

	title, text, err := ExtractText(string(body))
	if err != nil {
		return Result{}, fmt.Errorf("extract content: %w", err)
	}

	result := NewResult(pageURL, title, text, resp.StatusCode, time.Since(start))
	return result, nil
}
