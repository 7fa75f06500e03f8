package agent

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/diogenes-labs/diogenes/internal/protocol"
)

func waitForStatus(t *testing.T, w *Worker, want Status) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if w.Status() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("worker never reached status %q", want)
}

func TestPoolPrefersIdleWorker(t *testing.T) {
	pool := NewPool(nil)

	release := make(chan struct{})
	busy := pool.Register(stubAgent("researcher", func(context.Context, protocol.TaskAssignment) (protocol.TaskResult, error) {
		<-release
		return protocol.TaskResult{Status: protocol.StatusSuccess}, nil
	}))
	idle := pool.Register(successAgent("researcher", 0.9))

	// Occupy the first worker.
	done := make(chan protocol.TaskResult, 1)
	started := make(chan struct{})
	go func() {
		close(started)
		done <- busy.ExecuteWithTracking(context.Background(),
			protocol.NewTask(protocol.TaskWebSearch, "researcher", nil))
	}()
	<-started
	waitForStatus(t, busy, StatusBusy)

	if got := pool.Get("researcher"); got.ID() != idle.ID() {
		t.Fatalf("expected the idle worker, got %s", got.ID())
	}
	close(release)
	<-done
}

func TestPoolFallsBackToBusyWorker(t *testing.T) {
	pool := NewPool(nil)

	release := make(chan struct{})
	only := pool.Register(stubAgent("writer", func(context.Context, protocol.TaskAssignment) (protocol.TaskResult, error) {
		<-release
		return protocol.TaskResult{Status: protocol.StatusSuccess}, nil
	}))

	done := make(chan protocol.TaskResult, 1)
	go func() {
		done <- only.ExecuteWithTracking(context.Background(),
			protocol.NewTask(protocol.TaskSynthesizeAnswer, "writer", nil))
	}()
	waitForStatus(t, only, StatusBusy)

	if got := pool.Get("writer"); got == nil || got.ID() != only.ID() {
		t.Fatal("expected the busy worker as fallback")
	}
	close(release)
	<-done
}

func TestPoolReturnsNilForUnknownType(t *testing.T) {
	pool := NewPool(nil)
	pool.Register(successAgent("writer", 0.9))

	if got := pool.Get("researcher"); got != nil {
		t.Fatalf("expected nil for unregistered type, got %s", got.ID())
	}
}

func TestPoolExecuteWithoutAgentFailsGracefully(t *testing.T) {
	pool := NewPool(nil)

	result := pool.Execute(context.Background(),
		protocol.NewTask(protocol.TaskWebSearch, "researcher", nil))
	if !result.IsFailed() {
		t.Fatalf("expected failed result, got %q", result.Status)
	}
	if result.AgentID != "pool" {
		t.Fatalf("expected pool attribution, got %q", result.AgentID)
	}
	if len(result.Errors) == 0 || !strings.Contains(result.Errors[0], "researcher") {
		t.Fatalf("expected error naming the missing type, got %v", result.Errors)
	}
}

func TestPoolUnregister(t *testing.T) {
	pool := NewPool(nil)
	w := pool.Register(successAgent("verifier", 0.9))

	pool.Unregister(w.ID())
	if got := pool.Get("verifier"); got != nil {
		t.Fatal("expected nil after unregister")
	}
	if types := pool.Types(); len(types) != 0 {
		t.Fatalf("expected no registered types, got %v", types)
	}
}
