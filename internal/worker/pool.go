// Package worker runs blocking hardware work off the orchestration goroutine.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ErrPanic wraps a panic recovered from a job.
var ErrPanic = errors.New("worker panicked")

// Pool is a bounded set of workers. Each job runs on its own goroutine once a
// slot is free; the result is delivered to whoever awaits it.
type Pool struct {
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	active atomic.Int32
	log    *zap.Logger
}

// NewPool creates a pool running at most size jobs at once.
func NewPool(size int, log *zap.Logger) *Pool {
	if size < 1 {
		size = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{
		sem: semaphore.NewWeighted(int64(size)),
		log: log,
	}
}

// Submit schedules fn and returns a channel that receives its error exactly
// once. If ctx is done before a slot frees up, fn never runs and the channel
// receives ctx.Err().
func (p *Pool) Submit(ctx context.Context, name string, fn func(ctx context.Context) error) <-chan error {
	result := make(chan error, 1)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		result <- err
		return result
	}

	p.active.Add(1)
	p.wg.Add(1)
	go func() {
		defer func() {
			p.sem.Release(1)
			p.active.Add(-1)
			p.wg.Done()
		}()
		result <- p.run(ctx, name, fn)
	}()
	return result
}

func (p *Pool) run(ctx context.Context, name string, fn func(ctx context.Context) error) (err error) {
	defer p.recoverPanic(name, &err)
	return fn(ctx)
}

// recoverPanic turns a panic inside a hardware call into an error so the run
// can stop the drive instead of crashing with the wheels turning.
func (p *Pool) recoverPanic(name string, err *error) {
	if r := recover(); r != nil {
		p.log.Error("job panicked", zap.String("job", name), zap.Any("panic", r))
		*err = fmt.Errorf("%s: %w: %v", name, ErrPanic, r)
	}
}

// Do runs fn on a worker and waits for it to finish. It does not return
// early on cancellation: fn is expected to observe ctx itself, and waiting
// keeps the caller from issuing new commands while fn still owns the drive.
func (p *Pool) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return <-p.Submit(ctx, name, fn)
}

// Call is Do for jobs that produce a value.
func Call[T any](ctx context.Context, p *Pool, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, name, func(ctx context.Context) error {
		v, err := fn(ctx)
		out = v
		return err
	})
	return out, err
}

// Wait blocks until every submitted job has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Active returns the number of jobs currently running.
func (p *Pool) Active() int {
	return int(p.active.Load())
}
