package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/diogenes-labs/diogenes/internal/protocol"
)

func stubAgent(agentType string, fn func(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error)) Agent {
	return Func{AgentType: agentType, Caps: []Capability{CapProcessing}, Fn: fn}
}

func successAgent(agentType string, confidence float64) Agent {
	return stubAgent(agentType, func(_ context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
		return protocol.TaskResult{
			TaskID:     task.TaskID,
			Status:     protocol.StatusSuccess,
			Confidence: confidence,
		}, nil
	})
}

func TestWorkerTimeoutYieldsFailedResultAndIdleStatus(t *testing.T) {
	w := NewWorker(stubAgent("slow", func(ctx context.Context, task protocol.TaskAssignment) (protocol.TaskResult, error) {
		<-ctx.Done()
		time.Sleep(time.Hour)
		return protocol.TaskResult{}, ctx.Err()
	}), nil)

	task := protocol.NewTask(protocol.TaskChunkContent, "slow", nil).
		WithTimeout(20 * time.Millisecond)
	result := w.ExecuteWithTracking(context.Background(), task)

	if !result.IsFailed() {
		t.Fatalf("expected failed result, got %q", result.Status)
	}
	if len(result.Errors) == 0 {
		t.Fatal("expected a non-empty error list")
	}
	if got := w.Status(); got != StatusIdle {
		t.Fatalf("expected idle after timeout, got %q", got)
	}
	m := w.Metrics()
	if m.TasksFailed != 1 || m.TasksCompleted != 0 {
		t.Fatalf("unexpected metrics: %+v", m)
	}
}

func TestWorkerConvertsErrorToFailedResult(t *testing.T) {
	w := NewWorker(stubAgent("flaky", func(context.Context, protocol.TaskAssignment) (protocol.TaskResult, error) {
		return protocol.TaskResult{}, errors.New("backend unreachable")
	}), nil)

	result := w.ExecuteWithTracking(context.Background(),
		protocol.NewTask(protocol.TaskWebSearch, "flaky", nil))
	if !result.IsFailed() {
		t.Fatalf("expected failed result, got %q", result.Status)
	}
	if result.Errors[0] != "backend unreachable" {
		t.Fatalf("unexpected error: %v", result.Errors)
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	w := NewWorker(stubAgent("panicky", func(context.Context, protocol.TaskAssignment) (protocol.TaskResult, error) {
		panic("boom")
	}), nil)

	result := w.ExecuteWithTracking(context.Background(),
		protocol.NewTask(protocol.TaskWebSearch, "panicky", nil))
	if !result.IsFailed() {
		t.Fatalf("expected failed result, got %q", result.Status)
	}
	if got := w.Status(); got != StatusIdle {
		t.Fatalf("expected idle after panic, got %q", got)
	}
}

func TestWorkerMetricsTracking(t *testing.T) {
	w := NewWorker(successAgent("fast", 0.8), nil)

	for i := 0; i < 3; i++ {
		result := w.ExecuteWithTracking(context.Background(),
			protocol.NewTask(protocol.TaskScoreQuality, "fast", nil))
		if !result.IsSuccess() {
			t.Fatalf("expected success, got %q", result.Status)
		}
	}

	m := w.Metrics()
	if m.TasksCompleted != 3 {
		t.Fatalf("expected 3 completed, got %d", m.TasksCompleted)
	}
	if m.SuccessRate() != 1.0 {
		t.Fatalf("expected success rate 1.0, got %f", m.SuccessRate())
	}
	if m.AvgConfidence < 0.79 || m.AvgConfidence > 0.81 {
		t.Fatalf("expected avg confidence ~0.8, got %f", m.AvgConfidence)
	}
}

func TestWorkerStatusBusyDuringExecution(t *testing.T) {
	release := make(chan struct{})
	observed := make(chan Status, 1)

	var w *Worker
	w = NewWorker(stubAgent("observer", func(context.Context, protocol.TaskAssignment) (protocol.TaskResult, error) {
		observed <- w.Status()
		<-release
		return protocol.TaskResult{Status: protocol.StatusSuccess}, nil
	}), nil)

	done := make(chan protocol.TaskResult, 1)
	go func() {
		done <- w.ExecuteWithTracking(context.Background(),
			protocol.NewTask(protocol.TaskWebSearch, "observer", nil))
	}()

	if got := <-observed; got != StatusBusy {
		t.Fatalf("expected busy during execution, got %q", got)
	}
	close(release)
	<-done
	if got := w.Status(); got != StatusIdle {
		t.Fatalf("expected idle after completion, got %q", got)
	}
}
