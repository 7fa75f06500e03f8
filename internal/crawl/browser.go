package crawl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/config"
)

// BrowserFetcher renders pages in a headless browser before
// extraction, for sites that return nothing useful to a plain GET.
// The browser is launched lazily on first use.
type BrowserFetcher struct {
	mu               sync.Mutex
	browser          *rod.Browser
	timeout          time.Duration
	userAgent        string
	maxContentLength int
	logger           *zap.Logger
}

// NewBrowserFetcher builds a browser-backed fetcher.
func NewBrowserFetcher(cfg config.CrawlConfig, logger *zap.Logger) *BrowserFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BrowserFetcher{
		timeout:          cfg.Timeout,
		userAgent:        cfg.UserAgent,
		maxContentLength: cfg.MaxContentLength,
		logger:           logger,
	}
}

func (f *BrowserFetcher) getBrowser() (*rod.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}

	controlURL, err := launcher.New().Headless(true).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	f.browser = browser
	f.logger.Info("headless browser started")
	return browser, nil
}

// Fetch implements Fetcher.
func (f *BrowserFetcher) Fetch(ctx context.Context, pageURL string) (Result, error) {
	start := time.Now()

	browser, err := f.getBrowser()
	if err != nil {
		return Result{}, err
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return Result{}, fmt.Errorf("create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx).Timeout(f.timeout)

	if f.userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.userAgent}); err != nil {
			f.logger.Warn("failed to set user agent", zap.Error(err))
		}
	}

	if err := page.Navigate(pageURL); err != nil {
		return Result{}, fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return Result{}, fmt.Errorf("wait load: %w", err)
	}

	rawHTML, err := page.HTML()
	if err != nil {
		return Result{}, fmt.Errorf("read html: %w", err)
	}
	if len(rawHTML) > f.maxContentLength {
		rawHTML = rawHTML[:f.maxContentLength]
	}

	title, text, err := ExtractText(rawHTML)
	if err != nil {
		return Result{}, fmt.Errorf("extract content: %w", err)
	}

	return NewResult(pageURL, title, text, 200, time.Since(start)), nil
}

// Close shuts the browser down if it was started.
func (f *BrowserFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	err := f.browser.Close()
	f.browser = nil
	return err
}
