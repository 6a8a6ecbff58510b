// Package scheduler implements the §4.F Scheduler: a long-lived tick
// loop that loads enabled Schedules, matches them against the current
// instant, and pushes their Jobs onto the Queue.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskforge/orchestrator/internal/cron"
	"github.com/taskforge/orchestrator/internal/domain"
	"github.com/taskforge/orchestrator/internal/queue"
	"github.com/taskforge/orchestrator/internal/store"
)

// State is the Scheduler's lifecycle state (§4.F).
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
)

// Scheduler ticks every TickInterval, loading enabled Schedules and
// enqueuing the Jobs of any that are due. Parse errors or store
// failures during a tick are logged and the loop continues — the
// Scheduler never dies on a single bad tick (§4.F).
type Scheduler struct {
	store        store.Store
	queue        *queue.Queue
	tickInterval time.Duration
	logger       *slog.Logger

	state   atomic.Value // State
	stopCh  chan struct{}
	doneCh  chan struct{}
	startMu sync.Mutex

	// firedThisMinute de-duplicates cron firings within one matching
	// minute when TickInterval is finer than a minute (§4.F "Firing
	// duplicate suppression"). Keyed by (schedule_id, minute bucket).
	// This is the in-memory half of the strategy; MarkScheduleFired
	// persists the same fact so a restart mid-minute doesn't double-fire.
	mu              sync.Mutex
	firedThisMinute map[int64]time.Time
}

func New(s store.Store, q *queue.Queue, tickInterval time.Duration, logger *slog.Logger) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	sch := &Scheduler{
		store:           s,
		queue:           q,
		tickInterval:    tickInterval,
		logger:          logger,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
		firedThisMinute: make(map[int64]time.Time),
	}
	sch.state.Store(StateIdle)
	return sch
}

func (s *Scheduler) State() State { return s.state.Load().(State) }

// Start is idempotent: calling it while already running is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.State() == StateRunning {
		return
	}
	s.state.Store(StateRunning)
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	go s.loop(ctx)
}

// Stop signals the loop to halt and waits for the in-flight tick to
// complete (§4.F).
func (s *Scheduler) Stop() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.State() != StateRunning {
		return
	}
	s.state.Store(StateStopping)
	close(s.stopCh)
	<-s.doneCh
	s.state.Store(StateIdle)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.doneCh)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	schedules, err := s.store.ListSchedules(ctx, domain.ScheduleFilter{EnabledOnly: true})
	if err != nil {
		s.logger.Error("scheduler: list schedules", "error", err)
		return
	}

	for _, sch := range schedules {
		due, minuteBucket, err := s.isDue(sch, now)
		if err != nil {
			s.logger.Error("scheduler: evaluate schedule", "schedule_id", sch.ID, "error", err)
			continue
		}
		if !due {
			continue
		}

		job, err := s.store.GetJob(ctx, sch.JobID)
		if err != nil {
			s.logger.Error("scheduler: load job", "schedule_id", sch.ID, "job_id", sch.JobID, "error", err)
			continue
		}

		s.queue.Push(job)
		s.markFired(sch, now, minuteBucket)
	}
}

// isDue decides whether sch should fire at now, and returns the
// minute bucket to record against for cron de-duplication.
func (s *Scheduler) isDue(sch *domain.Schedule, now time.Time) (due bool, minuteBucket time.Time, err error) {
	if sch.IsOneShot() {
		if sch.LastFiredAt != nil {
			return false, time.Time{}, nil
		}
		return !now.Before(*sch.RunAt), time.Time{}, nil
	}

	expr, err := cron.Parse(sch.CronExpression)
	if err != nil {
		return false, time.Time{}, err
	}
	bucket := now.Truncate(time.Minute)
	if !cron.Match(expr, now) {
		return false, time.Time{}, nil
	}
	if s.alreadyFired(sch.ID, bucket) || (sch.LastFiredAt != nil && sch.LastFiredAt.Equal(bucket)) {
		return false, time.Time{}, nil
	}
	return true, bucket, nil
}

func (s *Scheduler) alreadyFired(scheduleID int64, bucket time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.firedThisMinute[scheduleID]
	return ok && last.Equal(bucket)
}

func (s *Scheduler) markFired(sch *domain.Schedule, now, minuteBucket time.Time) {
	if sch.IsOneShot() {
		if err := s.store.DisableSchedule(context.Background(), sch.ID); err != nil {
			s.logger.Error("scheduler: disable one-shot schedule", "schedule_id", sch.ID, "error", err)
		}
		return
	}

	s.mu.Lock()
	s.firedThisMinute[sch.ID] = minuteBucket
	s.mu.Unlock()

	if err := s.store.MarkScheduleFired(context.Background(), sch.ID, minuteBucket); err != nil {
		s.logger.Error("scheduler: persist last fired", "schedule_id", sch.ID, "error", err)
	}
}
