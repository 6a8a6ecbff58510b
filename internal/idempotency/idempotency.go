// Package idempotency implements the §4.H IdempotencyGuard: a
// read-before-execute short-circuit keyed on a Job's idempotency_key.
package idempotency

import (
	"context"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/store"
)

// Guard wraps a Store to answer "has this idempotency_key already
// succeeded?" before an Orchestrator dispatches a Job.
//
// Race (§4.H): two concurrent first-time Execute calls for the same
// key may both miss here — this guard alone does not provide
// concurrent-first-time safety. Store.CreateJob enforces
// jobs.idempotency_key UNIQUE, so the second AddJob of a brand new job
// fails outright; for repeat requests against an existing job, a
// last-write-wins read here is accepted per spec.
type Guard struct {
	store store.Store
}

func New(s store.Store) *Guard {
	return &Guard{store: s}
}

// Check returns the prior SUCCESS Execution for key, if any. A nil
// Execution with a nil error means "no prior success — proceed".
func (g *Guard) Check(ctx context.Context, key string) (*domain.Execution, error) {
	if key == "" {
		return nil, nil
	}
	return g.store.FindSuccessByIdempotencyKey(ctx, key)
}

// Synthesize builds the short-circuited Execution returned to the
// caller in place of running the function again: same result and
// duration as the prior success, and the prior Execution's id, bound
// to the current job/attempt bookkeeping the caller supplies.
func Synthesize(prior *domain.Execution, jobID int64, attempt int) *domain.Execution {
	return &domain.Execution{
		ID:              prior.ID,
		JobID:           jobID,
		Status:          domain.StatusSuccess,
		Attempt:         attempt,
		StartedAt:       prior.StartedAt,
		CompletedAt:     prior.CompletedAt,
		DurationSeconds: prior.DurationSeconds,
		Result:          prior.Result,
	}
}
