package agent

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/metrics"
	"github.com/diogenes-labs/diogenes/internal/protocol"
)

// Metrics is a worker's running performance record.
type Metrics struct {
	TasksCompleted int       `json:"tasks_completed"`
	TasksFailed    int       `json:"tasks_failed"`
	TotalDuration  float64   `json:"total_execution_time_ms"`
	AvgConfidence  float64   `json:"average_confidence"`
	LastActive     time.Time `json:"last_active"`
}

// SuccessRate is completed over total. A worker with no history counts
// as fully successful.
func (m Metrics) SuccessRate() float64 {
	total := m.TasksCompleted + m.TasksFailed
	if total == 0 {
		return 1.0
	}
	return float64(m.TasksCompleted) / float64(total)
}

func (m *Metrics) record(result protocol.TaskResult) {
	if result.Usable() {
		m.TasksCompleted++
	} else {
		m.TasksFailed++
	}
	m.TotalDuration += result.DurationMS
	total := m.TasksCompleted + m.TasksFailed
	m.AvgConfidence = (m.AvgConfidence*float64(total-1) + result.Confidence) / float64(total)
	m.LastActive = time.Now()
}

// Worker is a registered agent plus its runtime state: identity, status,
// and metrics. All task dispatch goes through ExecuteWithTracking.
type Worker struct {
	id     string
	impl   Agent
	logger *zap.Logger

	mu          sync.Mutex
	status      Status
	metrics     Metrics
	currentTask string
}

// NewWorker wraps an agent implementation for pool registration.
func NewWorker(impl Agent, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		id:     impl.Type() + "_" + shortID(),
		impl:   impl,
		logger: logger,
		status: StatusIdle,
	}
}

// ID is the worker's unique identity.
func (w *Worker) ID() string { return w.id }

// Type is the registered agent type.
func (w *Worker) Type() string { return w.impl.Type() }

// Capabilities reports what the underlying agent can do.
func (w *Worker) Capabilities() []Capability { return w.impl.Capabilities() }

// Status returns the current scheduling state.
func (w *Worker) Status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Metrics returns a snapshot of the worker's performance record.
func (w *Worker) Metrics() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// CurrentTask returns the id of the task in flight, or "".
func (w *Worker) CurrentTask() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentTask
}

// ExecuteWithTracking runs one assignment with the task's timeout
// enforced. Every failure mode, including timeout and panic, comes back
// as a failed TaskResult; the worker is idle again by the time this
// returns.
func (w *Worker) ExecuteWithTracking(ctx context.Context, task protocol.TaskAssignment) protocol.TaskResult {
	start := time.Now()

	w.mu.Lock()
	w.status = StatusBusy
	w.currentTask = task.TaskID
	w.mu.Unlock()
	metrics.AgentBusy.WithLabelValues(w.Type()).Inc()

	defer func() {
		w.mu.Lock()
		w.status = StatusIdle
		w.currentTask = ""
		w.mu.Unlock()
		metrics.AgentBusy.WithLabelValues(w.Type()).Dec()
	}()

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	w.logger.Debug("worker starting task",
		zap.String("worker_id", w.id),
		zap.String("task_id", task.TaskID),
		zap.String("task_type", string(task.Type)),
	)

	done := make(chan protocol.TaskResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- protocol.FailedResult(task, w.id, fmt.Sprintf("panic: %v", r))
			}
		}()
		result, err := w.impl.Execute(execCtx, task)
		if err != nil {
			result = protocol.FailedResult(task, w.id, err.Error())
		}
		done <- result
	}()

	var result protocol.TaskResult
	select {
	case result = <-done:
	case <-execCtx.Done():
		result = protocol.FailedResult(task, w.id,
			fmt.Sprintf("task timed out after %s", timeout))
	}
	result.DurationMS = float64(time.Since(start)) / float64(time.Millisecond)
	if result.AgentID == "" {
		result.AgentID = w.id
	}

	w.mu.Lock()
	w.metrics.record(result)
	w.mu.Unlock()
	metrics.AgentExecutions.WithLabelValues(w.Type(), string(result.Status)).Inc()
	metrics.RecordTaskMetrics(string(task.Type), string(result.Status), result.DurationMS)

	w.logger.Debug("worker finished task",
		zap.String("worker_id", w.id),
		zap.String("task_id", task.TaskID),
		zap.String("status", string(result.Status)),
		zap.Float64("duration_ms", result.DurationMS),
	)
	return result
}

func shortID() string {
	var b [4]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
