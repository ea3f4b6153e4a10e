package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("journal disabled")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means driver default
}

// RunRecord is one finished cycle. Keep it compact and schema-stable.
type RunRecord struct {
	RunID     string    `json:"run_id"`
	Account   int       `json:"account"`
	Outcome   string    `json:"outcome"`
	Note      string    `json:"note,omitempty"`
	Points    int64     `json:"points"`
	Streak    int       `json:"streak"`
	Claimed   bool      `json:"claimed"`
	Reward    int64     `json:"reward,omitempty"`
	StartedAt time.Time `json:"started_at"`
	TookMS    int64     `json:"took_ms"`
	NextRunAt time.Time `json:"next_run_at"`
	Error     string    `json:"error,omitempty"`
}
