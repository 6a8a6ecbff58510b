package executor

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

type threadTask struct {
	ctx      context.Context
	job      *domain.Job
	fn       registry.Handler
	resultCh chan Result
}

// ThreadPool is a fixed-size pool of OS threads (§4.C). Each worker
// goroutine calls runtime.LockOSThread so it is pinned to its own OS
// thread for its lifetime — submitted work genuinely runs off the
// caller's thread, matching the "off-thread wait" discipline the spec
// asks the adapter to provide. Execute enforces the timeout on the
// waiting side and leaves the worker running best-effort on expiry.
type ThreadPool struct {
	tasks  chan threadTask
	quit   chan struct{}
	wg     sync.WaitGroup
	closed atomic.Bool
}

func NewThreadPool(poolSize int) *ThreadPool {
	if poolSize <= 0 {
		poolSize = 5
	}
	tp := &ThreadPool{
		tasks: make(chan threadTask),
		quit:  make(chan struct{}),
	}
	for i := 0; i < poolSize; i++ {
		tp.wg.Add(1)
		go tp.worker()
	}
	return tp
}

func (tp *ThreadPool) worker() {
	defer tp.wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case t := <-tp.tasks:
			t.resultCh <- call(t.ctx, t.job, t.fn)
		case <-tp.quit:
			return
		}
	}
}

func (tp *ThreadPool) Execute(ctx context.Context, job *domain.Job, fn registry.Handler) (Result, error) {
	if tp.closed.Load() {
		return Result{}, domain.ErrExecutorClosed
	}
	if ctx.Err() != nil {
		return Result{}, domain.ErrCancelled
	}

	resultCh := make(chan Result, 1)
	select {
	case tp.tasks <- threadTask{ctx: ctx, job: job, fn: fn, resultCh: resultCh}:
	case <-ctx.Done():
		return Result{}, domain.ErrCancelled
	}

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
		return timeoutResult(job, time.Since(start)), nil
	case <-ctx.Done():
		return Result{}, domain.ErrCancelled
	}
}

// Shutdown stops accepting new work and waits, bounded by ctx, for
// worker goroutines to drain their current task.
func (tp *ThreadPool) Shutdown(ctx context.Context) error {
	if tp.closed.CompareAndSwap(false, true) {
		close(tp.quit)
	}
	done := make(chan struct{})
	go func() {
		tp.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
