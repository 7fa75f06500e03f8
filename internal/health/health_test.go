package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func probe(name string, critical bool, err error) Checker {
	return CheckFunc{
		CheckName: name,
		Critical:  critical,
		Probe: func(context.Context) error {
			return err
		},
	}
}

func TestCheckAllHealthy(t *testing.T) {
	m := NewManager(nil)
	m.Register(probe("searx", true, nil))
	m.Register(probe("ollama", true, nil))

	report := m.Check(context.Background())
	if report.Status != StatusHealthy || !report.Ready {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(report.Components))
	}
}

func TestCriticalFailureMakesUnready(t *testing.T) {
	m := NewManager(nil)
	m.Register(probe("searx", true, errors.New("connection refused")))
	m.Register(probe("redis", false, nil))

	report := m.Check(context.Background())
	if report.Status != StatusUnhealthy {
		t.Fatalf("status = %q", report.Status)
	}
	if report.Ready {
		t.Fatal("critical failure must make the service unready")
	}
	if report.Components["searx"].Error == "" {
		t.Fatal("expected the probe error captured")
	}
}

func TestNonCriticalFailureDegrades(t *testing.T) {
	m := NewManager(nil)
	m.Register(probe("searx", true, nil))
	m.Register(probe("redis", false, errors.New("redis down")))

	report := m.Check(context.Background())
	if report.Status != StatusDegraded {
		t.Fatalf("status = %q", report.Status)
	}
	if !report.Ready {
		t.Fatal("non-critical failure must not affect readiness")
	}
}

func TestSlowCheckerHitsItsOwnTimeout(t *testing.T) {
	m := NewManager(nil)
	m.Register(CheckFunc{
		CheckName:    "slow",
		Critical:     true,
		ProbeTimeout: 20 * time.Millisecond,
		Probe: func(ctx context.Context) error {
			select {
			case <-time.After(5 * time.Second):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	start := time.Now()
	report := m.Check(context.Background())
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("check took %s, timeout not enforced", elapsed)
	}
	if report.Ready {
		t.Fatal("timed out critical checker must make the service unready")
	}
}

func TestRegisterReplacesByName(t *testing.T) {
	m := NewManager(nil)
	m.Register(probe("searx", true, errors.New("down")))
	m.Register(probe("searx", true, nil))

	if !m.Ready(context.Background()) {
		t.Fatal("replacement checker should report healthy")
	}
}
