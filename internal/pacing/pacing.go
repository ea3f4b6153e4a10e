// Package pacing holds the timed waits shared by the transport, workflow and scheduler.
package pacing

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d, returning ctx.Err() if the context ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	tmr := time.NewTimer(d)
	select {
	case <-ctx.Done():
		if !tmr.Stop() {
			<-tmr.C
		}
		return ctx.Err()
	case <-tmr.C:
		return nil
	}
}

// NoSleep returns immediately unless ctx is already done. Tests use it.
func NoSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// Range is an inclusive [Min, Max] duration window.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Pick returns a uniformly random duration within r.
func (r Range) Pick(rng *Rand) time.Duration {
	lo, hi := r.Min, r.Max
	if hi < lo {
		lo, hi = hi, lo
	}
	if hi <= lo || rng == nil {
		return lo
	}
	return lo + time.Duration(rng.Int63n(int64(hi-lo)+1))
}

// Rand is a mutex-guarded math/rand source so one instance can be shared
// between the loop goroutine and helpers without data races.
type Rand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func NewRand(seed int64) *Rand {
	return &Rand{r: rand.New(rand.NewSource(seed))}
}

// NewRandFromTime seeds from the wall clock.
func NewRandFromTime() *Rand { return NewRand(time.Now().UnixNano()) }

func (r *Rand) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Int63n(n)
}

func (r *Rand) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Intn(n)
}

func (r *Rand) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r.Float64()
}

func (r *Rand) Shuffle(n int, swap func(i, j int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.r.Shuffle(n, swap)
}
