// Package health runs named dependency checks and aggregates them into
// liveness and readiness answers. A critical checker failing makes the
// service unready; non-critical failures only degrade it.
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status classifies one check outcome or the aggregate.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one checker run.
type CheckResult struct {
	Component string        `json:"component"`
	Status    Status        `json:"status"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Critical  bool          `json:"critical"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
	IsCritical() bool
	Timeout() time.Duration
}

// CheckFunc adapts a probe function into a Checker.
type CheckFunc struct {
	CheckName    string
	Critical     bool
	ProbeTimeout time.Duration
	Probe        func(ctx context.Context) error
}

func (c CheckFunc) Name() string     { return c.CheckName }
func (c CheckFunc) IsCritical() bool { return c.Critical }

func (c CheckFunc) Timeout() time.Duration {
	if c.ProbeTimeout <= 0 {
		return 5 * time.Second
	}
	return c.ProbeTimeout
}

func (c CheckFunc) Check(ctx context.Context) error { return c.Probe(ctx) }

// Report aggregates one full round of checks.
type Report struct {
	Status     Status                 `json:"status"`
	Ready      bool                   `json:"ready"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager owns the registered checkers.
type Manager struct {
	logger *zap.Logger

	mu       sync.RWMutex
	checkers map[string]Checker
}

// NewManager builds an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		logger:   logger,
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker, replacing any previous checker of the same
// name.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	m.checkers[c.Name()] = c
	m.mu.Unlock()
	m.logger.Info("health checker registered",
		zap.String("checker", c.Name()),
		zap.Bool("critical", c.IsCritical()),
	)
}

// Check runs every registered checker, each under its own timeout, and
// aggregates the results. Checkers run concurrently; one slow
// dependency does not delay the others beyond its own timeout.
func (m *Manager) Check(ctx context.Context) Report {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, c := range checkers {
		c := c
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := m.runOne(ctx, c)
			resMu.Lock()
			results[c.Name()] = result
			resMu.Unlock()
		}()
	}
	wg.Wait()

	report := Report{
		Status:     StatusHealthy,
		Ready:      true,
		Components: results,
		Timestamp:  time.Now(),
	}
	for _, r := range results {
		if r.Status == StatusHealthy {
			continue
		}
		if r.Critical {
			report.Status = StatusUnhealthy
			report.Ready = false
		} else if report.Status == StatusHealthy {
			report.Status = StatusDegraded
		}
	}
	return report
}

// Ready reports whether every critical dependency is reachable.
func (m *Manager) Ready(ctx context.Context) bool {
	return m.Check(ctx).Ready
}

func (m *Manager) runOne(ctx context.Context, c Checker) CheckResult {
	checkCtx, cancel := context.WithTimeout(ctx, c.Timeout())
	defer cancel()

	start := time.Now()
	err := c.Check(checkCtx)
	result := CheckResult{
		Component: c.Name(),
		Status:    StatusHealthy,
		Duration:  time.Since(start),
		Timestamp: time.Now(),
		Critical:  c.IsCritical(),
	}
	if err != nil {
		result.Status = StatusUnhealthy
		result.Error = err.Error()
		m.logger.Warn("health check failed",
			zap.String("checker", c.Name()),
			zap.Error(err),
		)
	}
	return result
}
