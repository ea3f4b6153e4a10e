package scheduler

import (
	"time"

	"voyagebot/internal/workflow"
)

// Status is the dashboard-facing state of one account.
type Status string

const (
	StatusWaiting    Status = "WAITING"
	StatusProcessing Status = "PROCESSING"
	StatusSuccess    Status = "SUCCESS"
	StatusFailed     Status = "FAILED"
	StatusExpired    Status = "EXPIRED"
)

func statusOf(o workflow.Outcome) Status {
	switch o {
	case workflow.OutcomeSuccess:
		return StatusSuccess
	case workflow.OutcomeExpired:
		return StatusExpired
	default:
		return StatusFailed
	}
}

// Account is the in-memory schedule entry of one credential.
//
// NextRunAt is zero only while the account is PROCESSING.
// A zero LastRunAt means the account never completed a non-expired cycle.
// Username is the last name the profile step reported.
type Account struct {
	Index     int
	Username  string
	Status    Status
	NextRunAt time.Time
	LastRunAt time.Time
	Points    int64
	Streak    int
	Note      string
}

// Due reports whether the account should run at now.
func (a Account) Due(now time.Time) bool {
	return a.Status != StatusProcessing && !a.NextRunAt.IsZero() && !a.NextRunAt.After(now)
}

// Snapshot is an immutable copy of all schedule entries, published after every change.
type Snapshot struct {
	At       time.Time
	Booting  bool
	Accounts []Account
}

// Counts tallies accounts per status.
func (s Snapshot) Counts() map[Status]int {
	m := make(map[Status]int, 5)
	for _, a := range s.Accounts {
		m[a.Status]++
	}
	return m
}

// CycleEvent describes one finished cycle. Points and Streak are the
// account totals after the cycle was applied.
type CycleEvent struct {
	RunID     string
	Index     int
	Username  string
	Outcome   workflow.Outcome
	Note      string
	Points    int64
	Streak    int
	Claimed   bool
	Reward    int64
	StartedAt time.Time
	Duration  time.Duration
	NextRunAt time.Time
	Err       string
}

// Event types published on the bus.
const (
	EventSnapshot = "scheduler.snapshot"
	EventCycle    = "scheduler.cycle"
)
