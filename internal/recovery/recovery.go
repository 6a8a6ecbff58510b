// Package recovery implements the §4.I RecoverySweep: a one-shot
// reconciliation of Executions left RUNNING by an unclean shutdown.
package recovery

import (
	"context"

	"github.com/taskforge/orchestrator/internal/store"
)

// Sweep runs the recovery pass exactly once, before the Scheduler
// starts and before any Execute call is accepted (§4.I). It returns
// the number of Executions moved from RUNNING to FAILED.
func Sweep(ctx context.Context, s store.Store) (int, error) {
	return s.MarkRunningAsFailed(ctx)
}
