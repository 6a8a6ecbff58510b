// Package retry implements the §4.G RetryPolicy: exponential backoff
// with a ceiling, and the retry-or-stop decision.
package retry

import (
	"context"
	"math"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/executor"
)

// Policy holds the backoff parameters (§4.G). Base must be > 1.0,
// InitialDelay > 0; MaxDelay caps the computed delay.
type Policy struct {
	MaxRetries   int
	Base         float64
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Delay computes the backoff for a given 1-based attempt number.
// attempt <= 0 returns 0. Monotonically non-decreasing in attempt,
// capped at MaxDelay.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	d := float64(p.InitialDelay) * math.Pow(p.Base, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// ShouldRetry reports whether another attempt should be made: the
// result was not a success, and we haven't exhausted max_retries.
// Per §4.G, max_retries counts retries after the first attempt, so
// total attempts is max_retries + 1.
func (p Policy) ShouldRetry(attempt int, res executor.Result) bool {
	return res.Status != domain.StatusSuccess && attempt < p.MaxRetries+1
}

// ExecuteWithRetry calls fn once per attempt (attempt starting at 1),
// sleeping Delay(attempt) between non-terminal outcomes. The sleep is
// cancellable via ctx; a cancellation during the sleep returns the
// last result obtained along with ctx.Err(). fn itself is expected to
// honour ctx for its own cancellation.
func ExecuteWithRetry(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) executor.Result) (executor.Result, int, error) {
	attempt := 1
	for {
		res := fn(ctx, attempt)
		if !p.ShouldRetry(attempt, res) {
			return res, attempt, nil
		}

		delay := p.Delay(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return res, attempt, ctx.Err()
		}
		attempt++
	}
}
