package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunReturnsJobResult(t *testing.T) {
	p := New(2, nil)
	defer p.Shutdown()

	got, err := p.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestRunPropagatesJobError(t *testing.T) {
	p := New(1, nil)
	defer p.Shutdown()

	wantErr := errors.New("boom")
	_, err := p.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestConcurrencyBoundedByWorkers(t *testing.T) {
	const workers = 3
	p := New(workers, nil)
	defer p.Shutdown()

	var active, maxActive int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
				cur := atomic.AddInt64(&active, 1)
				for {
					prev := atomic.LoadInt64(&maxActive)
					if cur <= prev || atomic.CompareAndSwapInt64(&maxActive, prev, cur) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt64(&active, -1)
				return nil, nil
			})
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxActive); got > workers {
		t.Fatalf("observed %d concurrent jobs, pool size %d", got, workers)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	p := New(1, nil)
	p.Shutdown()

	_, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		return nil, nil
	})
	if !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("got %v, want ErrPoolClosed", err)
	}
}

func TestShutdownDrainsQueuedJobs(t *testing.T) {
	p := New(1, nil)

	var completed int64
	futures := make([]*Future, 0, 5)
	for i := 0; i < 5; i++ {
		f, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
			atomic.AddInt64(&completed, 1)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
		futures = append(futures, f)
	}
	p.Shutdown()

	if got := atomic.LoadInt64(&completed); got != 5 {
		t.Fatalf("expected all 5 queued jobs to run, got %d", got)
	}
	for i, f := range futures {
		if _, err := f.Wait(context.Background()); err != nil {
			t.Fatalf("future %d failed: %v", i, err)
		}
	}
}

func TestJobPanicDoesNotKillWorker(t *testing.T) {
	p := New(1, nil)
	defer p.Shutdown()

	_, err := p.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		panic("bad job")
	})
	if err == nil {
		t.Fatalf("expected error from panicked job")
	}

	// Pool must still work afterward.
	got, err := p.Run(context.Background(), func(ctx context.Context) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("pool unusable after panic: %v %v", got, err)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	p := New(1, nil)
	defer p.Shutdown()

	release := make(chan struct{})
	f, err := p.Submit(context.Background(), func(ctx context.Context) (interface{}, error) {
		<-release
		return nil, nil
	})
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
	close(release)
}

func TestSubmitRacingShutdown(t *testing.T) {
	for round := 0; round < 20; round++ {
		p := New(2, nil)

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					// Once Shutdown lands, every path out of Submit
					// must be ErrPoolClosed, never a panic.
					_, err := p.Submit(context.Background(), func(context.Context) (interface{}, error) {
						return nil, nil
					})
					if errors.Is(err, ErrPoolClosed) {
						return
					}
					if err != nil {
						t.Errorf("unexpected submit error: %v", err)
						return
					}
				}
			}()
		}

		time.Sleep(time.Millisecond)
		p.Shutdown()
		wg.Wait()
	}
}
