// Package domain holds the core types the orchestrator persists and
// passes between components: Job, Execution and Schedule (§3 of the spec).
package domain

import "time"

// Kind is the concurrency discipline a Job's function runs under (§3, §4.C).
type Kind string

const (
	KindInline      Kind = "INLINE"
	KindCooperative Kind = "COOPERATIVE"
	KindThread      Kind = "THREAD"
	KindProcess     Kind = "PROCESS"
)

func (k Kind) Valid() bool {
	switch k {
	case KindInline, KindCooperative, KindThread, KindProcess:
		return true
	default:
		return false
	}
}

// Status is an Execution's lifecycle state (§3).
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
	StatusTimeout Status = "TIMEOUT"
)

// Terminal reports whether the status is a final Execution state.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccess, StatusFailed, StatusTimeout:
		return true
	default:
		return false
	}
}

// Job is an immutable-after-creation definition of work (§3). FunctionRef
// identifies an entry point in the process's function registry (§6), of
// the form "module.symbol" — the store never serialises the callable
// itself.
type Job struct {
	ID             int64
	Name           string
	FunctionRef    string
	Args           []any
	Kwargs         map[string]any
	Kind           Kind
	MaxRetries     int
	TimeoutSeconds int // 0 means "absent"
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Execution is one attempt to run a Job (§3).
type Execution struct {
	ID              int64
	JobID           int64
	Status          Status
	Attempt         int
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds *float64
	Result          []byte // JSON-encoded return value, SUCCESS only
	ErrorMessage    string
	Traceback       string
}

// ExecutionFilter narrows Store.ListExecutions (§4.A).
type ExecutionFilter struct {
	JobID  int64 // 0 = any
	Status Status
}
