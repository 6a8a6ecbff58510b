package domain

import "time"

// Schedule binds a Job to a time trigger: either a five-field cron
// expression or a single one-shot instant (§3). Exactly one of
// CronExpression / RunAt is set — enforced by the Store (I1/I5 style
// check) and by Orchestrator.Schedule.
type Schedule struct {
	ID             int64
	JobID          int64
	CronExpression string
	RunAt          *time.Time
	Enabled        bool
	LastFiredAt    *time.Time // de-duplication bookkeeping, §4.F
	CreatedAt      time.Time
}

// ScheduleFilter narrows Store.ListSchedules.
type ScheduleFilter struct {
	JobID       int64 // 0 = any
	EnabledOnly bool
}

func (s *Schedule) IsCron() bool { return s.CronExpression != "" }
func (s *Schedule) IsOneShot() bool { return s.RunAt != nil }
