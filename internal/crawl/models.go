// Package crawl fetches pages and extracts their readable content.
// The default fetcher is plain HTTP; a headless browser fetcher is
// available for JavaScript-heavy pages.
package crawl

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

// Status classifies the outcome of one crawl.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
	StatusBlocked Status = "blocked"
	StatusSkipped Status = "skipped"
)

// Result is the outcome of crawling one URL.
type Result struct {
	URL     string `json:"url"`
	Status  Status `json:"status"`
	Title   string `json:"title"`
	Content string `json:"content"`

	StatusCode    int           `json:"status_code"`
	ContentLength int           `json:"content_length"`
	CrawlTime     time.Duration `json:"crawl_time"`
	CrawledAt     time.Time     `json:"crawled_at"`

	ErrorMessage string `json:"error_message,omitempty"`

	ContentHash string `json:"content_hash"`
	WordCount   int    `json:"word_count"`
}

// NewResult builds a successful result and fills the derived fields.
func NewResult(pageURL, title, content string, statusCode int, took time.Duration) Result {
	r := Result{
		URL:        pageURL,
		Status:     StatusSuccess,
		Title:      title,
		Content:    content,
		StatusCode: statusCode,
		CrawlTime:  took,
		CrawledAt:  time.Now().UTC(),
	}
	r.ContentLength = len(content)
	r.WordCount = len(strings.Fields(content))
	if content != "" {
		sum := sha256.Sum256([]byte(content))
		r.ContentHash = hex.EncodeToString(sum[:])[:16]
	}
	return r
}

// FailedResult builds a result for a crawl that did not produce
// content.
func FailedResult(pageURL string, status Status, err error) Result {
	r := Result{
		URL:       pageURL,
		Status:    status,
		CrawledAt: time.Now().UTC(),
	}
	if err != nil {
		r.ErrorMessage = err.Error()
	}
	return r
}

// IsSuccess reports whether the crawl produced content.
func (r Result) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// Domain extracts the host from a URL, without a www prefix.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
