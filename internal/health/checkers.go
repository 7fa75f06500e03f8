package health

import (
	"context"
	"time"

	"github.com/diogenes-labs/diogenes/internal/llm"
	"github.com/diogenes-labs/diogenes/internal/search"
	"github.com/diogenes-labs/diogenes/internal/session"
)

// SearxChecker probes the SearXNG instance. Critical: no search means
// no research.
func SearxChecker(client *search.Client) Checker {
	return CheckFunc{
		CheckName:    "searx",
		Critical:     true,
		ProbeTimeout: 5 * time.Second,
		Probe: func(ctx context.Context) error {
			return client.HealthCheck(ctx)
		},
	}
}

// OllamaChecker probes the Ollama instance. Critical: no model means no
// synthesis.
func OllamaChecker(client *llm.Client) Checker {
	return CheckFunc{
		CheckName:    "ollama",
		Critical:     true,
		ProbeTimeout: 5 * time.Second,
		Probe: func(ctx context.Context) error {
			return client.Ping(ctx)
		},
	}
}

// RedisChecker probes the session store. Not critical: research works
// without persistence, sessions just stop surviving restarts.
func RedisChecker(sessions *session.Manager) Checker {
	return CheckFunc{
		CheckName:    "redis",
		Critical:     false,
		ProbeTimeout: 2 * time.Second,
		Probe: func(ctx context.Context) error {
			return sessions.Ping(ctx)
		},
	}
}
