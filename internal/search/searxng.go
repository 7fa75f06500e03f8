// Package search queries a self-hosted SearXNG instance and, for
// academic modes, the arXiv API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/diogenes-labs/diogenes/internal/config"
	"github.com/diogenes-labs/diogenes/internal/metrics"
)

// Result is one search hit.
type Result struct {
	URL           string    `json:"url"`
	Title         string    `json:"title"`
	Snippet       string    `json:"snippet"`
	Score         float64   `json:"score"`
	Engine        string    `json:"engine,omitempty"`
	Category      string    `json:"category,omitempty"`
	PublishedDate time.Time `json:"published_date,omitempty"`
	Domain        string    `json:"domain"`
}

// Response is the outcome of one search operation.
type Response struct {
	Query      string        `json:"query"`
	Results    []Result      `json:"results"`
	SearchTime time.Duration `json:"search_time"`
}

// Client queries SearXNG's JSON API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxResults int
	categories []string
	language   string
	logger     *zap.Logger
}

// NewClient builds a SearXNG client from config.
func NewClient(cfg config.SearchConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxResults: cfg.MaxResults,
		categories: cfg.Categories,
		language:   cfg.Language,
		logger:     logger,
	}
}

type searxResponse struct {
	Results []searxResult `json:"results"`
}

type searxResult struct {
	URL           string  `json:"url"`
	Title         string  `json:"title"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	Engine        string  `json:"engine"`
	Category      string  `json:"category"`
	PublishedDate string  `json:"publishedDate"`
}

// Search runs one query. numResults <= 0 uses the configured default.
// Results are deduplicated by URL in arrival order.
func (c *Client) Search(ctx context.Context, query string, numResults int) (*Response, error) {
	if numResults <= 0 {
		numResults = c.maxResults
	}
	start := time.Now()

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("categories", strings.Join(c.categories, ","))
	params.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SearchQueries.WithLabelValues("searxng", "error").Inc()
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchQueries.WithLabelValues("searxng", "error").Inc()
		return nil, fmt.Errorf("search: status %d", resp.StatusCode)
	}

	var body searxResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.SearchQueries.WithLabelValues("searxng", "error").Inc()
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	seen := make(map[string]struct{}, len(body.Results))
	results := make([]Result, 0, numResults)
	for _, raw := range body.Results {
		if raw.URL == "" {
			continue
		}
		if _, dup := seen[raw.URL]; dup {
			continue
		}
		seen[raw.URL] = struct{}{}
		results = append(results, parseResult(raw))
		if len(results) >= numResults {
			break
		}
	}

	metrics.SearchQueries.WithLabelValues("searxng", "ok").Inc()
	took := time.Since(start)
	c.logger.Info("search complete",
		zap.String("query", query),
		zap.Int("results", len(results)),
		zap.Duration("took", took),
	)
	return &Response{Query: query, Results: results, SearchTime: took}, nil
}

// SearchMultiple runs queries concurrently and merges their results,
// keeping the highest-scored hit for each URL and sorting by score.
// Individual query failures are logged and skipped.
func (c *Client) SearchMultiple(ctx context.Context, queries []string, perQuery int) (*Response, error) {
	start := time.Now()
	responses := make([]*Response, len(queries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, q := range queries {
		i, q := i, q
		g.Go(func() error {
			resp, err := c.Search(gctx, q, perQuery)
			if err != nil {
				c.logger.Warn("search query failed",
					zap.String("query", q),
					zap.Error(err),
				)
				return nil
			}
			responses[i] = resp
			return nil
		})
	}
	_ = g.Wait()

	best := make(map[string]Result)
	for _, resp := range responses {
		if resp == nil {
			continue
		}
		for _, r := range resp.Results {
			if prev, ok := best[r.URL]; !ok || r.Score > prev.Score {
				best[r.URL] = r
			}
		}
	}

	merged := make([]Result, 0, len(best))
	for _, r := range best {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	return &Response{
		Query:      strings.Join(queries, "; "),
		Results:    merged,
		SearchTime: time.Since(start),
	}, nil
}

// HealthCheck reports whether the SearXNG instance answers.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("search: health status %d", resp.StatusCode)
	}
	return nil
}

func parseResult(raw searxResult) Result {
	r := Result{
		URL:      raw.URL,
		Title:    raw.Title,
		Snippet:  raw.Content,
		Score:    raw.Score,
		Engine:   raw.Engine,
		Category: raw.Category,
	}
	if raw.PublishedDate != "" {
		if t, err := time.Parse(time.RFC3339, raw.PublishedDate); err == nil {
			r.PublishedDate = t
		}
	}
	if u, err := url.Parse(raw.URL); err == nil {
		r.Domain = u.Host
	}
	return r
}
