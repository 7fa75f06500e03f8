package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/metrics"
)

const arxivAPIURL = "http://export.arxiv.org/api/query"

// Paper is one arXiv search hit.
type Paper struct {
	ArxivID         string    `json:"arxiv_id"`
	Title           string    `json:"title"`
	Summary         string    `json:"summary"`
	Authors         []string  `json:"authors"`
	Categories      []string  `json:"categories"`
	PrimaryCategory string    `json:"primary_category"`
	Published       time.Time `json:"published"`
	Updated         time.Time `json:"updated"`
	PDFURL          string    `json:"pdf_url"`
	AbsURL          string    `json:"abs_url"`
}

// ArxivClient queries the arXiv Atom API for academic modes.
type ArxivClient struct {
	apiURL     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewArxivClient builds an arXiv client.
func NewArxivClient(timeout time.Duration, logger *zap.Logger) *ArxivClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArxivClient{
		apiURL:     arxivAPIURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type atomFeed struct {
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string       `xml:"id"`
	Title     string       `xml:"title"`
	Summary   string       `xml:"summary"`
	Published string       `xml:"published"`
	Updated   string       `xml:"updated"`
	Authors   []atomAuthor `xml:"author"`
	Links     []atomLink   `xml:"link"`
	Primary   atomCategory `xml:"primary_category"`
	Category  []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Search queries arXiv sorted by relevance.
func (c *ArxivClient) Search(ctx context.Context, query string, maxResults int) ([]Paper, error) {
	if maxResults <= 0 {
		maxResults = 10
	}
	params := url.Values{}
	params.Set("search_query", "all:"+query)
	params.Set("start", "0")
	params.Set("max_results", fmt.Sprintf("%d", maxResults))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SearchQueries.WithLabelValues("arxiv", "error").Inc()
		return nil, fmt.Errorf("arxiv: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.SearchQueries.WithLabelValues("arxiv", "error").Inc()
		return nil, fmt.Errorf("arxiv: status %d", resp.StatusCode)
	}

	var feed atomFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		metrics.SearchQueries.WithLabelValues("arxiv", "error").Inc()
		return nil, fmt.Errorf("arxiv: decode feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, entry := range feed.Entries {
		papers = append(papers, parseEntry(entry))
	}

	metrics.SearchQueries.WithLabelValues("arxiv", "ok").Inc()
	c.logger.Info("arxiv search complete",
		zap.String("query", query),
		zap.Int("papers", len(papers)),
	)
	return papers, nil
}

// AsResults converts papers to generic search results so the pipeline
// treats them like any other source.
func AsResults(papers []Paper) []Result {
	results := make([]Result, 0, len(papers))
	for _, p := range papers {
		results = append(results, Result{
			URL:           p.AbsURL,
			Title:         p.Title,
			Snippet:       p.Summary,
			Score:         1.0, // arXiv does not expose relevance scores
			Engine:        "arxiv",
			Category:      p.PrimaryCategory,
			PublishedDate: p.Published,
			Domain:        "arxiv.org",
		})
	}
	return results
}

func parseEntry(entry atomEntry) Paper {
	p := Paper{
		Title:           strings.TrimSpace(entry.Title),
		Summary:         strings.TrimSpace(entry.Summary),
		AbsURL:          entry.ID,
		PrimaryCategory: entry.Primary.Term,
	}
	// Entry id looks like http://arxiv.org/abs/2403.01234v1.
	if idx := strings.LastIndex(entry.ID, "/abs/"); idx >= 0 {
		p.ArxivID = entry.ID[idx+len("/abs/"):]
	}
	for _, a := range entry.Authors {
		p.Authors = append(p.Authors, a.Name)
	}
	for _, cat := range entry.Category {
		p.Categories = append(p.Categories, cat.Term)
	}
	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			p.PDFURL = link.Href
		}
	}
	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		p.Published = t
	}
	if t, err := time.Parse(time.RFC3339, entry.Updated); err == nil {
		p.Updated = t
	}
	return p
}
