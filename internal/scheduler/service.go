// Package scheduler owns the per-account schedule and drives check-in cycles.
//
// All account state is mutated from the single goroutine that calls Run.
// Readers get immutable snapshots through Snapshot() or the event bus.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"voyagebot/internal/accounts"
	"voyagebot/internal/eventbus"
	"voyagebot/internal/pacing"
	"voyagebot/internal/workflow"
	logx "voyagebot/pkg/logx"
)

// Runner executes one cycle for one account. *workflow.Runner implements it.
type Runner interface {
	Run(ctx context.Context, index int, cred accounts.Credential, progress workflow.ProgressFunc) workflow.Result
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func WithSleep(fn pacing.SleepFunc) Option {
	return func(s *Service) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

func WithRand(rng *pacing.Rand) Option {
	return func(s *Service) {
		if rng != nil {
			s.rng = rng
		}
	}
}

func WithTicker(f TickerFactory) Option {
	return func(s *Service) {
		if f != nil {
			s.newTicker = f
		}
	}
}

// WithTickHook registers fn to run on the loop goroutine after every tick.
func WithTickHook(fn func(now time.Time)) Option {
	return func(s *Service) { s.onTick = fn }
}

type Service struct {
	creds  []accounts.Credential
	runner Runner
	policy Policy
	bus    eventbus.Bus
	log    logx.Logger

	now       func() time.Time
	sleep     pacing.SleepFunc
	rng       *pacing.Rand
	newTicker TickerFactory
	onTick    func(time.Time)

	mu       sync.Mutex
	accounts []Account
	booting  bool
}

// New seeds one WAITING entry per credential, all due now.
func New(creds []accounts.Credential, runner Runner, policy Policy, bus eventbus.Bus, log logx.Logger, opts ...Option) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		creds:     append([]accounts.Credential(nil), creds...),
		runner:    runner,
		policy:    policy.withDefaults(),
		bus:       bus,
		log:       log.With(logx.String("comp", "scheduler")),
		now:       time.Now,
		sleep:     pacing.Sleep,
		rng:       pacing.NewRandFromTime(),
		newTicker: NewTimeTicker,
		booting:   true,
	}
	for _, o := range opts {
		o(s)
	}

	now := s.now()
	s.accounts = make([]Account, len(s.creds))
	for i := range s.creds {
		s.accounts[i] = Account{Index: i + 1, Status: StatusWaiting, NextRunAt: now}
	}
	return s
}

// Snapshot returns a copy of the current schedule.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Service) snapshotLocked() Snapshot {
	return Snapshot{
		At:       s.now(),
		Booting:  s.booting,
		Accounts: append([]Account(nil), s.accounts...),
	}
}

func (s *Service) publish() {
	if s.bus == nil {
		return
	}
	snap := s.Snapshot()
	s.bus.Publish(eventbus.Event{Type: EventSnapshot, Time: snap.At, Data: snap})
}

func (s *Service) update(i int, fn func(a *Account)) {
	s.mu.Lock()
	fn(&s.accounts[i])
	s.mu.Unlock()
	s.publish()
}

// Run performs the boot sweep, then runs due accounts on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("scheduler starting", logx.Int("accounts", len(s.accounts)), logx.Duration("poll", s.policy.PollInterval))
	s.publish()

	s.bootSweep(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	t := s.newTicker(s.policy.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return ctx.Err()
		case <-t.C():
			s.Tick(ctx, s.now())
		}
	}
}

// bootSweep runs every account once in shuffled order with a random stagger between them.
func (s *Service) bootSweep(ctx context.Context) {
	order := make([]int, len(s.accounts))
	for i := range order {
		order[i] = i
	}
	s.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	for k, i := range order {
		if k > 0 {
			if err := s.sleep(ctx, s.policy.BootStagger.Pick(s.rng)); err != nil {
				return
			}
		}
		s.runAccount(ctx, i)
		if ctx.Err() != nil {
			return
		}
	}

	s.mu.Lock()
	s.booting = false
	s.mu.Unlock()
	s.publish()
	s.log.Info("boot sweep finished", logx.Int("accounts", len(order)))
}

// Tick runs every due account at now, one after another in index order.
// EXPIRED accounts are included once their cooldown has elapsed.
func (s *Service) Tick(ctx context.Context, now time.Time) {
	s.mu.Lock()
	due := make([]int, 0, len(s.accounts))
	for i, a := range s.accounts {
		if a.Due(now) {
			due = append(due, i)
		}
	}
	s.mu.Unlock()

	sort.Ints(due)
	if len(due) > 0 {
		s.log.Debug("tick", logx.Int("due", len(due)))
	}
	for _, i := range due {
		if ctx.Err() != nil {
			return
		}
		s.runAccount(ctx, i)
	}
	if s.onTick != nil {
		s.onTick(now)
	}
}

func (s *Service) runAccount(ctx context.Context, i int) {
	index := i + 1
	started := s.now()
	s.update(i, func(a *Account) {
		a.Status = StatusProcessing
		a.NextRunAt = time.Time{}
		a.Note = workflow.NoteStarting
	})

	res := s.safeRun(ctx, i)

	if ctx.Err() != nil {
		// Shutdown mid-cycle: leave the account due so the next start picks it up.
		s.update(i, func(a *Account) {
			a.Status = StatusWaiting
			a.NextRunAt = s.now()
			a.Note = "Stopped"
		})
		return
	}

	ended := s.now()
	next := s.policy.NextRun(res.Outcome, ended, s.rng)
	var points int64
	var streak int
	var username string
	s.update(i, func(a *Account) {
		a.Status = statusOf(res.Outcome)
		a.Note = res.Note
		a.NextRunAt = next
		if res.Outcome != workflow.OutcomeExpired {
			a.LastRunAt = ended
		}
		if res.PointsOK {
			a.Points = res.Points
		}
		if res.StreakOK {
			a.Streak = res.Streak
		}
		if res.Username != "" {
			a.Username = res.Username
		}
		points, streak, username = a.Points, a.Streak, a.Username
	})

	log := s.log.With(logx.Account(index))
	log.Info("cycle finished",
		logx.String("outcome", res.Outcome.String()),
		logx.Duration("took", ended.Sub(started)),
		logx.Time("next_run", next),
	)

	if s.bus != nil {
		ev := CycleEvent{
			RunID:     uuid.NewString(),
			Index:     index,
			Username:  username,
			Outcome:   res.Outcome,
			Note:      res.Note,
			Points:    points,
			Streak:    streak,
			Claimed:   res.Claimed,
			Reward:    res.Reward,
			StartedAt: started,
			Duration:  ended.Sub(started),
			NextRunAt: next,
		}
		if res.Err != nil {
			ev.Err = res.Err.Error()
		}
		s.bus.Publish(eventbus.Event{Type: EventCycle, Time: ended, Data: ev})
	}
}

// safeRun turns a panic inside one cycle into a FAILED result for that account only.
func (s *Service) safeRun(ctx context.Context, i int) (res workflow.Result) {
	index := i + 1
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("cycle panicked", logx.Account(index), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err := fmt.Errorf("panic: %v", r)
			res = workflow.Result{Outcome: workflow.OutcomeFailed, Note: err.Error(), Err: err}
		}
	}()
	progress := func(note string) {
		s.update(i, func(a *Account) { a.Note = note })
	}
	return s.runner.Run(ctx, index, s.creds[i], progress)
}
