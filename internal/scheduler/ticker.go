package scheduler

import "time"

// Ticker drives the scheduling loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates the loop ticker for a poll interval.
type TickerFactory func(every time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker wraps time.NewTicker.
func NewTimeTicker(every time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(every)}
}
