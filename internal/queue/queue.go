// Package queue implements the bounded FIFO handoff from the Scheduler
// (and any other producer) to the worker loop that calls Execute (§4.B).
package queue

import (
	"time"

	"github.com/taskforge/orchestrator/internal/domain"
)

// Queue is a FIFO channel wrapper: safe for concurrent producers and
// consumers, no priority, no re-ordering. The zero value is not usable —
// construct with New.
type Queue struct {
	ch chan *domain.Job
}

// New creates a Queue. size == 0 means unbounded (§4.B default policy):
// an unbounded Go channel would require unbounded buffering which isn't
// practical, so "unbounded" is implemented as a very large buffer with
// Push never blocking in practice; a positive size makes Push apply
// real backpressure.
func New(size int) *Queue {
	if size <= 0 {
		size = 1 << 20
	}
	return &Queue{ch: make(chan *domain.Job, size)}
}

// Push enqueues job, blocking if the queue is at its bound.
func (q *Queue) Push(job *domain.Job) {
	q.ch <- job
}

// TryPush enqueues job without blocking, returning false if the queue is
// full — the "fails when the bound is reached" policy alternative to
// Push's blocking behavior (§4.B).
func (q *Queue) TryPush(job *domain.Job) bool {
	select {
	case q.ch <- job:
		return true
	default:
		return false
	}
}

// Pop blocks up to timeout for the next job, returning nil on expiry.
// timeout <= 0 blocks indefinitely.
func (q *Queue) Pop(timeout time.Duration) *domain.Job {
	if timeout <= 0 {
		return <-q.ch
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case job := <-q.ch:
		return job
	case <-timer.C:
		return nil
	}
}

// Len reports the number of jobs currently buffered.
func (q *Queue) Len() int { return len(q.ch) }
