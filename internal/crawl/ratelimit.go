package crawl

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// domainLimiter enforces a minimum interval between requests to the
// same domain. Different domains never wait on each other.
type domainLimiter struct {
	mu       sync.Mutex
	interval time.Duration
	limiters map[string]*rate.Limiter
}

func newDomainLimiter(interval time.Duration) *domainLimiter {
	return &domainLimiter{
		interval: interval,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until the domain's next request slot, or until ctx is
// cancelled.
func (d *domainLimiter) Wait(ctx context.Context, domain string) error {
	if d.interval <= 0 {
		return nil
	}
	d.mu.Lock()
	limiter, ok := d.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(d.interval), 1)
		d.limiters[domain] = limiter
	}
	d.mu.Unlock()
	return limiter.Wait(ctx)
}
