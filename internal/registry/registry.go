// Package registry implements the function registry the spec describes
// in §6 and §9: a process-wide map from "module.symbol" strings to
// invokable handlers. Jobs are persisted by that string; the Store never
// serialises a callable, so execution looks the handler up at dispatch
// time and refuses unknown refs with domain.ErrUnregisteredFunction.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/taskforge/orchestrator/internal/domain"
)

// Handler is the shape every registered function must satisfy. Args and
// kwargs are the JSON-decoded values from the Job (§9 "Argument
// dynamism") — a handler declares its own deserialisation contract and
// validates input shape at entry; a validation failure should be
// returned as an error, which the executor layer turns into a FAILED
// Execution.
type Handler func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// Registry is a concurrency-safe map from function_ref to Handler. It is
// instance-based rather than a package-level global so tests (and
// multiple orchestrators in one process) don't share state.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func New() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// defaultRegistry is the process-wide registry that a binary's handler
// packages populate from init(), the same way the Python original's
// @register_function decorator ran at import time. A Process executor
// worker is a fresh OS process of the same binary: it re-runs every
// init() but cannot receive a *Registry value from its parent across
// the pipe, so it resolves function_ref against Default() rather than
// whatever instance the parent orchestrator was constructed with.
// Handler packages meant to work under the Process executor must
// Register against Default(); an orchestrator built with a private
// *Registry (typical in tests) simply never uses Process jobs.
var defaultRegistry = New()

// Default returns the process-wide registry. See the package-level
// note on defaultRegistry for why this exists alongside per-instance
// Registry values.
func Default() *Registry { return defaultRegistry }

// Register binds ref (a "module.symbol" string) to fn. Registering the
// same ref twice overwrites the previous binding — callers that want
// strict registration should check Lookup first.
func (r *Registry) Register(ref string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[ref] = fn
}

// Lookup returns the handler bound to ref, or domain.ErrUnregisteredFunction.
func (r *Registry) Lookup(ref string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.handlers[ref]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnregisteredFunction, ref)
	}
	return fn, nil
}

// Names returns every registered function_ref, for diagnostics/CLI.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}
