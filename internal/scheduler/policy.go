package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"voyagebot/internal/pacing"
	"voyagebot/internal/workflow"
)

// DefaultDailyReset is midnight UTC.
const DefaultDailyReset = "0 0 * * *"

// SecondOptional allows both 5-field and 6-field (with seconds) specs.
var resetParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseDailyReset parses the reset instant. The schedule is always evaluated in UTC.
// A spec that never fires (such as "0 0 30 2 *") is rejected.
func ParseDailyReset(spec string) (cron.Schedule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		spec = DefaultDailyReset
	}
	sched, err := resetParser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("daily reset %q: %w", spec, err)
	}
	if sched.Next(time.Now().UTC()).IsZero() {
		return nil, fmt.Errorf("daily reset %q: schedule never fires", spec)
	}
	return sched, nil
}

// Policy maps a cycle outcome to the next run instant.
type Policy struct {
	FailedBackoff  time.Duration
	ExpiredBackoff time.Duration

	DailyReset  cron.Schedule
	ResetJitter time.Duration

	PollInterval time.Duration
	BootStagger  pacing.Range
}

func DefaultPolicy() Policy {
	sched, err := ParseDailyReset(DefaultDailyReset)
	if err != nil {
		panic(err)
	}
	return Policy{
		FailedBackoff:  30 * time.Minute,
		ExpiredBackoff: 60 * time.Minute,
		DailyReset:     sched,
		ResetJitter:    30 * time.Minute,
		PollInterval:   time.Minute,
		BootStagger:    pacing.Range{Min: 3 * time.Second, Max: 6 * time.Second},
	}
}

func (p Policy) withDefaults() Policy {
	def := DefaultPolicy()
	if p.FailedBackoff <= 0 {
		p.FailedBackoff = def.FailedBackoff
	}
	if p.ExpiredBackoff <= 0 {
		p.ExpiredBackoff = def.ExpiredBackoff
	}
	if p.DailyReset == nil {
		p.DailyReset = def.DailyReset
	}
	if p.ResetJitter < 0 {
		p.ResetJitter = 0
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	return p
}

// NextReset returns the first reset instant on the UTC calendar day after now.
// A schedule with no further activation falls back to midnight UTC.
func (p Policy) NextReset(now time.Time) time.Time {
	u := now.UTC()
	tomorrow := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	if next := p.DailyReset.Next(tomorrow.Add(-time.Second)); !next.IsZero() {
		return next
	}
	return tomorrow
}

// NextRun computes when an account runs again after a cycle that ended at now.
func (p Policy) NextRun(o workflow.Outcome, now time.Time, rng *pacing.Rand) time.Time {
	switch o {
	case workflow.OutcomeExpired:
		return now.Add(p.ExpiredBackoff)
	case workflow.OutcomeSuccess:
		next := p.NextReset(now)
		if p.ResetJitter > 0 && rng != nil {
			next = next.Add(time.Duration(rng.Int63n(int64(p.ResetJitter))))
		}
		return next
	default:
		return now.Add(p.FailedBackoff)
	}
}
