// Package store persists Jobs, Executions and Schedules durably (§4.A).
// The only implementation is a single file-backed SQLite database (§6);
// the interface exists so the rest of the core never imports database/sql
// directly and so tests can swap in an in-memory database file.
package store

import (
	"context"
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
)

// Store is the durable persistence layer for Jobs, Executions and
// Schedules. All methods are safe for concurrent use. Any method may
// return a *domain.StoreError wrapping the underlying driver error;
// domain.ErrDuplicateName / domain.ErrDuplicateIdempotencyKey are
// returned directly (unwrapped) so callers can errors.Is against them.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) (int64, error)
	GetJob(ctx context.Context, id int64) (*domain.Job, error)
	GetJobByName(ctx context.Context, name string) (*domain.Job, error)
	DeleteJob(ctx context.Context, id int64) (bool, error)

	// CreateExecution inserts a new PENDING row for the given attempt
	// number. Per §9 decision 3, every attempt gets its own row.
	CreateExecution(ctx context.Context, jobID int64, attempt int) (int64, error)
	UpdateExecution(ctx context.Context, exec *domain.Execution) (bool, error)
	GetExecution(ctx context.Context, id int64) (*domain.Execution, error)
	ListExecutions(ctx context.Context, filter domain.ExecutionFilter, limit int) ([]*domain.Execution, error)

	// FindSuccessByIdempotencyKey returns the most recently completed
	// SUCCESS Execution belonging to the Job whose idempotency_key
	// matches, or nil if none exists (§4.H).
	FindSuccessByIdempotencyKey(ctx context.Context, key string) (*domain.Execution, error)

	CreateSchedule(ctx context.Context, s *domain.Schedule) (int64, error)
	GetSchedule(ctx context.Context, id int64) (*domain.Schedule, error)
	ListSchedules(ctx context.Context, filter domain.ScheduleFilter) ([]*domain.Schedule, error)
	DeleteSchedule(ctx context.Context, id int64) (bool, error)

	// MarkScheduleFired records that a Schedule fired at the given
	// instant, backing the Scheduler's duplicate-firing suppression
	// (§4.F). For cron schedules `at` should be truncated to the minute.
	MarkScheduleFired(ctx context.Context, id int64, at time.Time) error
	// DisableSchedule is used for one-shot (run_at) schedules once fired.
	DisableSchedule(ctx context.Context, id int64) error

	// MarkRunningAsFailed is the recovery helper (§4.I): every Execution
	// still in RUNNING is moved to FAILED with a stable error message.
	// Returns the count of rows touched.
	MarkRunningAsFailed(ctx context.Context) (int, error)

	// Ping verifies the underlying database file is reachable, backing
	// internal/health's readiness check.
	Ping(ctx context.Context) error

	Close() error
}
