// Package workerpool provides a bounded pool of workers for CPU-heavy
// processing jobs such as chunking and scoring, keeping that work off
// the request goroutines.
package workerpool

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
)

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("workerpool: pool closed")

// Job is one unit of work. The returned value is delivered through the
// Future handed out at submission.
type Job func(ctx context.Context) (interface{}, error)

// Future is the handle for a submitted job's eventual result.
type Future struct {
	done  chan struct{}
	value interface{}
	err   error
}

// Wait blocks until the job finishes or ctx is cancelled. A started
// job always runs to completion; cancellation only abandons the wait.
func (f *Future) Wait(ctx context.Context) (interface{}, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type task struct {
	job    Job
	future *Future
}

// Pool runs jobs on a fixed number of worker goroutines.
type Pool struct {
	tasks   chan task
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	workers int
	logger  *zap.Logger
}

// New starts a pool with the given worker count. Zero or negative
// uses GOMAXPROCS.
func New(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Pool{
		tasks:   make(chan task, workers*2),
		workers: workers,
		logger:  logger,
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	logger.Debug("worker pool started", zap.Int("workers", workers))
	return p
}

// Workers returns the pool size.
func (p *Pool) Workers() int {
	return p.workers
}

// Submit queues a job and returns its future. Blocks when the queue is
// full until a worker frees up or ctx is cancelled.
func (p *Pool) Submit(ctx context.Context, job Job) (*Future, error) {
	// The lock is held across the send so Shutdown cannot close the
	// channel between the closed check and the enqueue. Workers drain
	// the queue without the lock, so the send still makes progress.
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}

	f := &Future{done: make(chan struct{})}
	select {
	case p.tasks <- task{job: job, future: f}:
		return f, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run submits a job and waits for its result.
func (p *Pool) Run(ctx context.Context, job Job) (interface{}, error) {
	f, err := p.Submit(ctx, job)
	if err != nil {
		return nil, err
	}
	return f.Wait(ctx)
}

// Shutdown stops accepting jobs and waits for queued work to drain.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for t := range p.tasks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("job panicked",
						zap.Int("worker", id),
						zap.Any("panic", r),
					)
					t.future.err = errors.New("workerpool: job panicked")
				}
				close(t.future.done)
			}()
			t.future.value, t.future.err = t.job(context.Background())
		}()
	}
}
