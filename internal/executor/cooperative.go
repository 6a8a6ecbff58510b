package executor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

// Cooperative is a single-threaded-discipline scheduler backed by a
// counting semaphore of size maxConcurrent (§4.C). Go has no explicit
// async/await distinct from goroutines, so the "cooperative loop" is
// modelled as: a bounded number of in-flight calls, each dispatched onto
// its own goroutine (the Go runtime's M:N scheduler is itself
// cooperative at syscall/blocking boundaries — this is the "offload to a
// helper OS thread so the loop stays responsive" behaviour §4.C asks
// for, provided for free rather than hand-rolled). Execute waits for a
// slot, then races the call against the timeout and ctx cancellation.
type Cooperative struct {
	sem     chan struct{}
	running atomic.Int64
	closed  atomic.Bool
	wg      sync.WaitGroup
}

func NewCooperative(maxConcurrent int) *Cooperative {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	return &Cooperative{sem: make(chan struct{}, maxConcurrent)}
}

func (e *Cooperative) Execute(ctx context.Context, job *domain.Job, fn registry.Handler) (Result, error) {
	if e.closed.Load() {
		return Result{}, domain.ErrExecutorClosed
	}

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{}, domain.ErrCancelled
	}
	e.running.Add(1)
	e.wg.Add(1)
	defer func() {
		<-e.sem
		e.running.Add(-1)
		e.wg.Done()
	}()

	resultCh := make(chan Result, 1)
	go func() { resultCh <- call(ctx, job, fn) }()

	if job.TimeoutSeconds <= 0 {
		select {
		case res := <-resultCh:
			return res, nil
		case <-ctx.Done():
			return Result{}, domain.ErrCancelled
		}
	}

	start := time.Now()
	timer := time.NewTimer(time.Duration(job.TimeoutSeconds) * time.Second)
	defer timer.Stop()
	select {
	case res := <-resultCh:
		return res, nil
	case <-timer.C:
		// Best-effort: the call keeps running on its goroutine; we do
		// not (cannot, safely) kill it. It finishes and is discarded.
		return timeoutResult(job, time.Since(start)), nil
	case <-ctx.Done():
		return Result{}, domain.ErrCancelled
	}
}

// RunningCount reports in-flight calls (§4.C "exposes running_count").
func (e *Cooperative) RunningCount() int64 { return e.running.Load() }

// Shutdown marks the executor closed and waits, bounded by ctx, for
// in-flight calls to drain — a real deadline rather than the busy-poll
// the Python original used for the equivalent wait_for_completion.
func (e *Cooperative) Shutdown(ctx context.Context) error {
	e.closed.Store(true)
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
