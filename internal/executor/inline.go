package executor

import (
	"context"
	"sync/atomic"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

// Inline runs the function on the caller's own goroutine (§4.C). A
// synchronous call on the caller cannot be pre-empted from the outside,
// so per §9 decision 1 this executor does not attempt timeout
// enforcement at all: Orchestrator.AddJob refuses to create an INLINE
// Job with a positive timeout_seconds in the first place
// (ErrInlineTimeoutUnsupported), so Execute here never needs to race a
// deadline.
type Inline struct {
	closed atomic.Bool
}

func NewInline() *Inline { return &Inline{} }

func (e *Inline) Execute(ctx context.Context, job *domain.Job, fn registry.Handler) (Result, error) {
	if e.closed.Load() {
		return Result{}, domain.ErrExecutorClosed
	}
	return call(ctx, job, fn), nil
}

func (e *Inline) Shutdown(_ context.Context) error {
	e.closed.Store(true)
	return nil
}
