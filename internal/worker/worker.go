// Package worker provides a bounded pool of goroutines. Submission never
// blocks the caller, the number of concurrently running jobs is limited by
// a weighted semaphore.
package worker

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned when a job is submitted to a closed pool.
var ErrClosed = errors.New("pool is closed")

// Pool runs submitted jobs with limited concurrency.
type Pool struct {
	sem    *semaphore.Weighted
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// New returns a pool that runs at most size jobs at once.
func New(size int) *Pool {
	if size < 1 {
		size = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go schedules the job. It returns ErrClosed after Close. Jobs that are
// still waiting for a slot when the pool is closed are called with the
// cancelled context, so every accepted job is called exactly once.
func (p *Pool) Go(fn func(ctx context.Context)) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			fn(p.ctx)
			return
		}
		defer p.sem.Release(1)
		fn(p.ctx)
	}()
	return nil
}

// Wait blocks until all submitted jobs are done.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close cancels pending jobs and waits for all accepted ones.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
