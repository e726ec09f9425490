// Package execpool provides the single-worker job queue that the query
// engine submits its lexical and vector Store searches through. Index
// writes (Build, RemoveSource, Reset) do not go through it: they call the
// Store directly from the caller's goroutine. Modeled directly on
// original_source's `_database.py` dataclass field
// `executor: ThreadPoolExecutor = ThreadPoolExecutor(max_workers=1)` plus
// its `_run_in_executor`/`asyncio.gather` submission pattern.
package execpool

import (
	"context"
	"sync"
)

// job is one unit of work submitted to a Pool.
type job struct {
	run  func()
	done chan struct{}
}

// Pool runs submitted jobs on a fixed number of background goroutines,
// one by default, matching `ThreadPoolExecutor(max_workers=1)`. Jobs run
// in submission order when workers is 1; with workers > 1 (the memvec
// backend's read-concurrency widening) ordering across jobs is not
// guaranteed, only within a job that itself holds a lock.
type Pool struct {
	jobs chan job

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// New starts a Pool with the given number of workers. workers must be >= 1.
func New(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		jobs:   make(chan job),
		closed: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case j, ok := <-p.jobs:
			if !ok {
				return
			}
			j.run()
			close(j.done)
		case <-p.closed:
			return
		}
	}
}

// Submit runs fn on a pool worker and returns its result. If ctx is
// cancelled before fn completes, Submit returns ctx.Err() immediately — the
// job keeps running to completion on its worker in the background and its
// result is discarded, matching spec.md §5's "cancellation discards the
// result, not the in-flight job" rule. Calling Submit after Close returns
// context.Canceled (or ctx.Err() if ctx is already done) without running
// fn.
func Submit[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	var fnErr error

	j := job{
		done: make(chan struct{}),
	}
	j.run = func() {
		result, fnErr = fn(ctx)
	}

	select {
	case p.jobs <- j:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case <-p.closed:
		var zero T
		return zero, context.Canceled
	}

	select {
	case <-j.done:
		return result, fnErr
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Close stops accepting new jobs and waits for in-flight jobs to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.closed)
	})
	p.wg.Wait()
}
