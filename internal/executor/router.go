package executor

import (
	"context"
	"errors"
	"fmt"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/registry"
)

// Router selects the Executor instance matching a Job's Kind (§4.D).
// It is itself an Executor so the orchestrator facade can treat
// "run this job" uniformly without a type switch at the call site.
type Router struct {
	byKind map[domain.Kind]Executor
}

// NewRouter builds a Router from an explicit kind-to-executor mapping.
// Callers are expected to register all four kinds they intend to
// support; Execute on an unregistered Kind returns
// domain.ErrUnknownJobKind.
func NewRouter(byKind map[domain.Kind]Executor) *Router {
	m := make(map[domain.Kind]Executor, len(byKind))
	for k, v := range byKind {
		m[k] = v
	}
	return &Router{byKind: m}
}

func (r *Router) Execute(ctx context.Context, job *domain.Job, fn registry.Handler) (Result, error) {
	e, ok := r.byKind[job.Kind]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrUnknownJobKind, job.Kind)
	}
	return e.Execute(ctx, job, fn)
}

// Shutdown shuts down every distinct executor the router holds (a Kind
// may alias another's instance in tests; each underlying Executor is
// only shut down once) and joins their errors.
func (r *Router) Shutdown(ctx context.Context) error {
	seen := make(map[Executor]struct{}, len(r.byKind))
	var errs []error
	for _, e := range r.byKind {
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		if err := e.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
