package apiclient

import (
	"time"

	"voyagebot/internal/pacing"
)

// RetryPolicy controls DoWithRetry.
//
// The delay before retry n (0-indexed) is min(Base*2^n + U[0, Jitter), MaxDelay).
type RetryPolicy struct {
	MaxRetries int
	Base       time.Duration
	MaxDelay   time.Duration
	Jitter     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		Base:       time.Second,
		MaxDelay:   60 * time.Second,
		Jitter:     time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.Base <= 0 {
		p.Base = def.Base
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = def.MaxDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// BackoffDelay returns the wait before retry n.
func BackoffDelay(p RetryPolicy, n int, rng *pacing.Rand) time.Duration {
	if n < 0 {
		n = 0
	}
	d := p.Base
	for i := 0; i < n; i++ {
		d *= 2
		if d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.Jitter > 0 && rng != nil {
		d += time.Duration(rng.Int63n(int64(p.Jitter)))
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}
