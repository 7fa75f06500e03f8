package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/diogenes-labs/diogenes/internal/protocol"
)

// Pool is the dispatch table mapping agent type to registered workers.
// It owns no task state; reads vastly outnumber writes, so lookups take
// a read lock only.
type Pool struct {
	logger *zap.Logger

	mu     sync.RWMutex
	byID   map[string]*Worker
	byType map[string][]*Worker
}

// NewPool builds an empty pool.
func NewPool(logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		logger: logger,
		byID:   make(map[string]*Worker),
		byType: make(map[string][]*Worker),
	}
}

// Register wraps the agent in a Worker and adds it to the pool.
func (p *Pool) Register(impl Agent) *Worker {
	w := NewWorker(impl, p.logger)
	p.mu.Lock()
	p.byID[w.ID()] = w
	p.byType[w.Type()] = append(p.byType[w.Type()], w)
	p.mu.Unlock()

	p.logger.Info("registered agent",
		zap.String("agent_id", w.ID()),
		zap.String("agent_type", w.Type()),
	)
	return w
}

// Unregister removes a worker by id. Unknown ids are a no-op.
func (p *Pool) Unregister(workerID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.byID[workerID]
	if !ok {
		return
	}
	delete(p.byID, workerID)
	workers := p.byType[w.Type()]
	for i, candidate := range workers {
		if candidate.ID() == workerID {
			p.byType[w.Type()] = append(workers[:i], workers[i+1:]...)
			break
		}
	}
	p.logger.Info("unregistered agent", zap.String("agent_id", workerID))
}

// Get returns an idle worker of the requested type, falling back to any
// worker of that type, or nil when none is registered. Callers must
// treat nil as a failed dispatch, not a crash.
func (p *Pool) Get(agentType string) *Worker {
	p.mu.RLock()
	workers := p.byType[agentType]
	p.mu.RUnlock()

	for _, w := range workers {
		if w.Status() == StatusIdle {
			return w
		}
	}
	if len(workers) > 0 {
		return workers[0]
	}
	return nil
}

// Workers lists registered workers, optionally filtered by type.
func (p *Pool) Workers(agentType string) []*Worker {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if agentType != "" {
		return append([]*Worker(nil), p.byType[agentType]...)
	}
	all := make([]*Worker, 0, len(p.byID))
	for _, w := range p.byID {
		all = append(all, w)
	}
	return all
}

// Types lists the agent types with at least one registered worker.
func (p *Pool) Types() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	types := make([]string, 0, len(p.byType))
	for t, workers := range p.byType {
		if len(workers) > 0 {
			types = append(types, t)
		}
	}
	return types
}

// Execute routes a task to a worker of the assignment's agent type.
// A missing agent type yields a failed result attributed to the pool.
func (p *Pool) Execute(ctx context.Context, task protocol.TaskAssignment) protocol.TaskResult {
	w := p.Get(task.AgentType)
	if w == nil {
		p.logger.Warn("no agent available",
			zap.String("agent_type", task.AgentType),
			zap.String("task_type", string(task.Type)),
		)
		return protocol.FailedResult(task, "pool",
			fmt.Sprintf("no agent available for type: %s", task.AgentType))
	}
	return w.ExecuteWithTracking(ctx, task)
}
