// Package handlers registers a small set of demonstration functions
// against registry.Default() so a freshly built binary has something
// runnable out of the box (§6 "Function registry": startup is
// responsible for populating the registry). Real deployments replace
// this package with their own handler packages, each calling
// registry.Default().Register from its own init().
package handlers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskforge/orchestrator/internal/registry"
)

func init() {
	Register(registry.Default())
}

// Register binds the demonstration functions to reg. Exported so
// cmd/orchestratord and tests can populate a private *registry.Registry
// the same way the init() above populates the default one.
func Register(reg *registry.Registry) {
	reg.Register("demo.add", add)
	reg.Register("demo.sleep", sleepFn)
	reg.Register("demo.boom", boom)
}

func add(_ context.Context, args []any, _ map[string]any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("demo.add requires two arguments")
	}
	a, aok := toFloat(args[0])
	b, bok := toFloat(args[1])
	if !aok || !bok {
		return nil, errors.New("demo.add arguments must be numbers")
	}
	return a + b, nil
}

func sleepFn(ctx context.Context, args []any, _ map[string]any) (any, error) {
	seconds := 0.0
	if len(args) > 0 {
		if v, ok := toFloat(args[0]); ok {
			seconds = v
		}
	}
	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
		return fmt.Sprintf("slept %gs", seconds), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func boom(_ context.Context, _ []any, _ map[string]any) (any, error) {
	return nil, errors.New("demo.boom always fails")
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
