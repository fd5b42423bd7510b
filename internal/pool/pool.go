// Package pool provides a small bounded worker pool used to dispatch
// decoded requests to the engine without letting the server's accept loop
// block on storage I/O.
//
// Submission is gated by a weighted semaphore rather than a hand-rolled
// channel-of-channels: a task only starts once a slot is free, and Close
// waits for every in-flight task to finish by reclaiming the full weight.
package pool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool runs submitted tasks on bounded concurrency.
type Pool struct {
	size int64
	sem  *semaphore.Weighted
}

// New creates a pool that runs at most size tasks concurrently. A
// non-positive size defaults to runtime.NumCPU().
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	n := int64(size)
	return &Pool{size: n, sem: semaphore.NewWeighted(n)}
}

// Submit blocks until a slot is available (or ctx is done) and then runs
// task on its own goroutine. Submit returns as soon as the task has
// started, not when it completes.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}

	go func() {
		defer p.sem.Release(1)
		task()
	}()

	return nil
}

// Close blocks until every previously submitted task has completed, by
// reclaiming the pool's entire weight. Pass a context with a deadline to
// bound how long shutdown can wait for stragglers.
func (p *Pool) Close(ctx context.Context) error {
	return p.sem.Acquire(ctx, p.size)
}
