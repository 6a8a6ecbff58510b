// Package executor implements the four concurrency disciplines a Job's
// function can run under (§4.C): Inline, Cooperative, Thread and
// Process. All four share the Executor contract; ExecutorRouter (§4.D,
// router.go) selects the instance matching a Job's Kind.
//
// None of the four ever lets a user-function panic or error escape as a
// Go error from Execute — every failure is captured into Result, per the
// propagation policy in §7. Execute itself only returns an error for
// executor-infrastructure conditions (ErrExecutorClosed, ErrCancelled).
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

// Result is the outcome of one Execute call (§4.C).
type Result struct {
	Status          domain.Status
	Result          []byte // JSON-encoded return value, SUCCESS only
	Error           string
	Traceback       string
	DurationSeconds float64
}

// Executor is the contract every concurrency discipline implements.
type Executor interface {
	// Execute runs fn with job's args/kwargs under this executor's
	// discipline, honouring job.TimeoutSeconds if set. The returned
	// error is non-nil only for infrastructure conditions
	// (ErrExecutorClosed); user-function outcomes are always encoded
	// in Result.
	Execute(ctx context.Context, job *domain.Job, fn registry.Handler) (Result, error)
	// Shutdown releases the executor's resources. Idempotent.
	Shutdown(ctx context.Context) error
}

// call invokes fn, recovering panics into a FAILED-shaped Result and
// marshalling a successful return value to JSON. It does not apply a
// timeout; callers wrap it with their own cancellation discipline.
func call(ctx context.Context, job *domain.Job, fn registry.Handler) (res Result) {
	start := time.Now()
	defer func() {
		res.DurationSeconds = time.Since(start).Seconds()
		if r := recover(); r != nil {
			res.Status = domain.StatusFailed
			res.Error = fmt.Sprintf("panic: %v", r)
			res.Traceback = string(debug.Stack())
		}
	}()

	value, err := fn(ctx, job.Args, job.Kwargs)
	if err != nil {
		return Result{Status: domain.StatusFailed, Error: err.Error()}
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return Result{Status: domain.StatusFailed, Error: fmt.Sprintf("marshal result: %v", err)}
	}
	return Result{Status: domain.StatusSuccess, Result: encoded}
}

func timeoutResult(job *domain.Job, elapsed time.Duration) Result {
	return Result{
		Status:          domain.StatusTimeout,
		Error:           fmt.Sprintf("job timed out after %ds", job.TimeoutSeconds),
		DurationSeconds: elapsed.Seconds(),
	}
}
