package scheduler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"voyagebot/internal/accounts"
	"voyagebot/internal/apiclient"
	"voyagebot/internal/eventbus"
	"voyagebot/internal/pacing"
	"voyagebot/internal/workflow"
	logx "voyagebot/pkg/logx"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type runnerFunc func(ctx context.Context, index int, cred accounts.Credential, progress workflow.ProgressFunc) workflow.Result

func (f runnerFunc) Run(ctx context.Context, index int, cred accounts.Credential, progress workflow.ProgressFunc) workflow.Result {
	return f(ctx, index, cred, progress)
}

type fakeTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

func creds(n int) []accounts.Credential {
	out := make([]accounts.Credential, n)
	for i := range out {
		out[i] = accounts.Credential{Token: fmt.Sprintf("tok-%d", i+1)}
	}
	return out
}

func newTestService(c []accounts.Credential, r Runner, clk *clock, opts ...Option) *Service {
	base := []Option{WithClock(clk.Now), WithSleep(pacing.NoSleep), WithRand(pacing.NewRand(1))}
	return New(c, r, DefaultPolicy(), eventbus.New(), logx.Nop(), append(base, opts...)...)
}

func TestNewSeedsAccountsDueNow(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	s := newTestService(creds(3), runnerFunc(nil), clk)

	snap := s.Snapshot()
	if len(snap.Accounts) != 3 || !snap.Booting {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	for i, a := range snap.Accounts {
		if a.Index != i+1 || a.Status != StatusWaiting || !a.NextRunAt.Equal(clk.Now()) || !a.LastRunAt.IsZero() {
			t.Fatalf("account %d not seeded correctly: %+v", i+1, a)
		}
	}
}

func TestTickAppliesOutcomes(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	outcomes := map[int]workflow.Result{
		1: {Outcome: workflow.OutcomeSuccess, Note: "Claimed +5 pts", Points: 50, PointsOK: true, Streak: 2, StreakOK: true},
		2: {Outcome: workflow.OutcomeFailed, Note: "HTTP 500: boom", Err: errors.New("boom")},
		3: {Outcome: workflow.OutcomeExpired, Note: workflow.NoteTokenExpired},
	}
	var order []int
	r := runnerFunc(func(_ context.Context, index int, _ accounts.Credential, _ workflow.ProgressFunc) workflow.Result {
		order = append(order, index)
		return outcomes[index]
	})
	s := newTestService(creds(3), r, clk)

	now := clk.Now()
	s.Tick(context.Background(), now)

	if fmt.Sprint(order) != "[1 2 3]" {
		t.Fatalf("run order = %v, want index order", order)
	}
	snap := s.Snapshot()
	a1, a2, a3 := snap.Accounts[0], snap.Accounts[1], snap.Accounts[2]

	if a1.Status != StatusSuccess || a1.Points != 50 || a1.Streak != 2 || !a1.LastRunAt.Equal(now) {
		t.Fatalf("account 1: %+v", a1)
	}
	reset := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	if a1.NextRunAt.Before(reset) || !a1.NextRunAt.Before(reset.Add(30*time.Minute)) {
		t.Fatalf("account 1 next run %v outside reset window", a1.NextRunAt)
	}
	if a2.Status != StatusFailed || a2.Note != "HTTP 500: boom" || !a2.LastRunAt.Equal(now) || !a2.NextRunAt.Equal(now.Add(30*time.Minute)) {
		t.Fatalf("account 2: %+v", a2)
	}
	if a3.Status != StatusExpired || !a3.LastRunAt.IsZero() || !a3.NextRunAt.Equal(now.Add(60*time.Minute)) {
		t.Fatalf("account 3: %+v", a3)
	}
}

// EXPIRED accounts are re-run once their cooldown elapses, so a rotated
// credential recovers without a restart.
func TestTickRerunsExpiredAccountAfterCooldown(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	runs := 0
	r := runnerFunc(func(context.Context, int, accounts.Credential, workflow.ProgressFunc) workflow.Result {
		runs++
		if runs == 1 {
			return workflow.Result{Outcome: workflow.OutcomeExpired, Note: workflow.NoteTokenRejected}
		}
		return workflow.Result{Outcome: workflow.OutcomeSuccess, Note: workflow.NoteAlreadyClaimed}
	})
	s := newTestService(creds(1), r, clk)

	s.Tick(context.Background(), clk.Now())
	if runs != 1 || s.Snapshot().Accounts[0].Status != StatusExpired {
		t.Fatalf("first tick: runs=%d snap=%+v", runs, s.Snapshot().Accounts[0])
	}

	clk.Advance(59 * time.Minute)
	s.Tick(context.Background(), clk.Now())
	if runs != 1 {
		t.Fatalf("expired account re-ran before cooldown")
	}

	clk.Advance(time.Minute)
	s.Tick(context.Background(), clk.Now())
	if runs != 2 {
		t.Fatalf("expired account not re-run after cooldown (runs=%d)", runs)
	}
	if a := s.Snapshot().Accounts[0]; a.Status != StatusSuccess || a.LastRunAt.IsZero() {
		t.Fatalf("account did not recover: %+v", a)
	}
}

func TestTickSkipsAccountsNotDue(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	runs := 0
	r := runnerFunc(func(context.Context, int, accounts.Credential, workflow.ProgressFunc) workflow.Result {
		runs++
		return workflow.Result{Outcome: workflow.OutcomeFailed, Note: "x"}
	})
	s := newTestService(creds(2), r, clk)
	s.Tick(context.Background(), clk.Now())

	clk.Advance(29 * time.Minute)
	s.Tick(context.Background(), clk.Now())
	if runs != 2 {
		t.Fatalf("runs = %d, want 2", runs)
	}
}

func TestPanicIsolatedToOneAccount(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	r := runnerFunc(func(_ context.Context, index int, _ accounts.Credential, _ workflow.ProgressFunc) workflow.Result {
		if index == 1 {
			panic("nil map")
		}
		return workflow.Result{Outcome: workflow.OutcomeSuccess}
	})
	s := newTestService(creds(2), r, clk)
	s.Tick(context.Background(), clk.Now())

	snap := s.Snapshot()
	if snap.Accounts[0].Status != StatusFailed || snap.Accounts[0].Note != "panic: nil map" {
		t.Fatalf("account 1: %+v", snap.Accounts[0])
	}
	if snap.Accounts[1].Status != StatusSuccess {
		t.Fatalf("account 2: %+v", snap.Accounts[1])
	}
}

func TestProgressAndProcessingAreVisible(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	var s *Service
	var seen Account
	r := runnerFunc(func(_ context.Context, _ int, _ accounts.Credential, progress workflow.ProgressFunc) workflow.Result {
		progress(workflow.NoteClaiming)
		seen = s.Snapshot().Accounts[0]
		return workflow.Result{Outcome: workflow.OutcomeSuccess}
	})
	s = newTestService(creds(1), r, clk)
	s.Tick(context.Background(), clk.Now())

	if seen.Status != StatusProcessing || !seen.NextRunAt.IsZero() || seen.Note != workflow.NoteClaiming {
		t.Fatalf("in-flight snapshot: %+v", seen)
	}
}

func TestCycleEventsPublished(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, EventCycle)
	defer unsub()

	r := runnerFunc(func(context.Context, int, accounts.Credential, workflow.ProgressFunc) workflow.Result {
		return workflow.Result{Outcome: workflow.OutcomeFailed, Note: "boom", Err: errors.New("boom")}
	})
	s := New(creds(1), r, DefaultPolicy(), bus, logx.Nop(), WithClock(clk.Now), WithSleep(pacing.NoSleep))
	s.Tick(context.Background(), clk.Now())

	select {
	case e := <-ch:
		ev, ok := e.Data.(CycleEvent)
		if !ok || ev.Index != 1 || ev.Outcome != workflow.OutcomeFailed || ev.Err != "boom" || ev.RunID == "" {
			t.Fatalf("unexpected cycle event: %+v", e.Data)
		}
	default:
		t.Fatalf("no cycle event published")
	}
}

func TestUsernameSurvivesCyclesWithoutProfile(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8, EventCycle)
	defer unsub()

	results := []workflow.Result{
		{Outcome: workflow.OutcomeSuccess, Username: "neo", Note: "User: neo"},
		{Outcome: workflow.OutcomeFailed, Note: "HTTP 502: Unknown", Err: errors.New("bad gateway")},
	}
	run := 0
	r := runnerFunc(func(context.Context, int, accounts.Credential, workflow.ProgressFunc) workflow.Result {
		res := results[run]
		run++
		return res
	})
	s := New(creds(1), r, DefaultPolicy(), bus, logx.Nop(), WithClock(clk.Now), WithSleep(pacing.NoSleep))

	s.Tick(context.Background(), clk.Now())
	clk.Advance(48 * time.Hour)
	s.Tick(context.Background(), clk.Now())

	if run != 2 {
		t.Fatalf("runs = %d, want 2", run)
	}
	if got := s.Snapshot().Accounts[0].Username; got != "neo" {
		t.Fatalf("username = %q, want neo", got)
	}
	for i := 0; i < 2; i++ {
		select {
		case e := <-ch:
			if ev := e.Data.(CycleEvent); ev.Username != "neo" {
				t.Fatalf("event %d username = %q, want neo", i, ev.Username)
			}
		default:
			t.Fatalf("cycle event %d missing", i)
		}
	}
}

func TestBootSweepRunsEveryAccountOnceWithStagger(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	ran := map[int]int{}
	r := runnerFunc(func(_ context.Context, index int, _ accounts.Credential, _ workflow.ProgressFunc) workflow.Result {
		ran[index]++
		return workflow.Result{Outcome: workflow.OutcomeSuccess}
	})
	var pauses []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		pauses = append(pauses, d)
		return nil
	}
	s := newTestService(creds(5), r, clk, WithSleep(sleep))
	s.bootSweep(context.Background())

	for i := 1; i <= 5; i++ {
		if ran[i] != 1 {
			t.Fatalf("account %d ran %d times", i, ran[i])
		}
	}
	if len(pauses) != 4 {
		t.Fatalf("stagger pauses = %d, want 4", len(pauses))
	}
	for _, d := range pauses {
		if d < 3*time.Second || d > 6*time.Second {
			t.Fatalf("stagger %v outside [3s, 6s]", d)
		}
	}
	if s.Snapshot().Booting {
		t.Fatalf("still booting after sweep")
	}
}

func TestShutdownMidCycleLeavesAccountDue(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)}
	ctx, cancel := context.WithCancel(context.Background())
	r := runnerFunc(func(ctx context.Context, _ int, _ accounts.Credential, _ workflow.ProgressFunc) workflow.Result {
		cancel()
		return workflow.Result{Outcome: workflow.OutcomeFailed, Err: ctx.Err()}
	})
	s := newTestService(creds(2), r, clk)
	s.Tick(ctx, clk.Now())

	snap := s.Snapshot()
	if snap.Accounts[0].Status != StatusWaiting || snap.Accounts[0].NextRunAt.IsZero() {
		t.Fatalf("account 1: %+v", snap.Accounts[0])
	}
	if snap.Accounts[1].Status != StatusWaiting || !snap.Accounts[1].LastRunAt.IsZero() {
		t.Fatalf("account 2 should not have run: %+v", snap.Accounts[1])
	}
}

// ---- end-to-end scenarios against a fake API ----

func jwtWithExp(exp time.Time) string {
	enc := base64.RawURLEncoding
	body, _ := json.Marshal(map[string]any{"exp": exp.Unix()})
	return enc.EncodeToString([]byte(`{"alg":"HS256"}`)) + "." + enc.EncodeToString(body) + ".sig"
}

type fakeAPI struct {
	srv *httptest.Server

	mu       sync.Mutex
	requests int
	checkins map[string]int
	status   map[string]bool
	throttle int // leading 429s on check-in
}

func newFakeAPI(t *testing.T) *fakeAPI {
	f := &fakeAPI{checkins: map[string]int{}, status: map[string]bool{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeAPI) setCheckedIn(token string) {
	f.mu.Lock()
	f.status["Bearer "+token] = true
	f.mu.Unlock()
}

func (f *fakeAPI) checkinCalls(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkins["Bearer "+token]
}

func (f *fakeAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	auth := r.Header.Get("Authorization")

	switch r.URL.Path {
	case apiclient.PathProfile:
		fmt.Fprint(w, `{"code":0,"data":{"display_name":"pilot"}}`)
	case apiclient.PathPointsBalance:
		fmt.Fprintf(w, `{"code":0,"data":{"balance":%d}}`, 100+10*f.checkins[auth])
	case apiclient.PathCheckinStatus:
		fmt.Fprintf(w, `{"code":0,"data":{"checked_in":%t}}`, f.status[auth])
	case apiclient.PathCheckin:
		f.checkins[auth]++
		if f.checkins[auth] <= f.throttle {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"code":0,"data":{"reward":10,"streak_days":3}}`)
	default:
		fmt.Fprint(w, `{"code":0,"data":{}}`)
	}
}

func (f *fakeAPI) service(c []accounts.Credential, clk *clock) *Service {
	cfg := apiclient.DefaultConfig()
	cfg.BaseURL = f.srv.URL
	cfg.RatePerSec = 0
	factory := workflow.HTTPClients(cfg, logx.Nop(), apiclient.WithSleep(pacing.NoSleep))
	runner := workflow.New(factory, workflow.DefaultPauses(), logx.Nop(),
		workflow.WithSleep(pacing.NoSleep), workflow.WithClock(clk.Now))
	return newTestService(c, runner, clk)
}

func TestScenarioOnlyUncheckedAccountSubmits(t *testing.T) {
	clk := &clock{now: time.Now()}
	api := newFakeAPI(t)
	c := []accounts.Credential{
		{Token: jwtWithExp(clk.Now().Add(24 * time.Hour))},
		{Token: jwtWithExp(clk.Now().Add(48 * time.Hour))},
	}
	api.setCheckedIn(c[1].Token)

	s := api.service(c, clk)
	s.bootSweep(context.Background())

	if n := api.checkinCalls(c[0].Token); n != 1 {
		t.Fatalf("account 1 check-in calls = %d, want 1", n)
	}
	if n := api.checkinCalls(c[1].Token); n != 0 {
		t.Fatalf("account 2 check-in calls = %d, want 0", n)
	}
	for _, a := range s.Snapshot().Accounts {
		if a.Status != StatusSuccess || a.LastRunAt.IsZero() {
			t.Fatalf("account %d: %+v", a.Index, a)
		}
	}
	if a := s.Snapshot().Accounts[0]; a.Points != 110 || a.Streak != 3 || a.Note != "Claimed +10 pts" {
		t.Fatalf("account 1 state: %+v", a)
	}
	if a := s.Snapshot().Accounts[1]; a.Note != workflow.NoteAlreadyClaimed {
		t.Fatalf("account 2 note: %q", a.Note)
	}
}

func TestScenarioExpiredTokenMakesNoRequests(t *testing.T) {
	clk := &clock{now: time.Now()}
	api := newFakeAPI(t)
	c := []accounts.Credential{{Token: jwtWithExp(clk.Now().Add(-10 * time.Second))}}

	s := api.service(c, clk)
	s.bootSweep(context.Background())

	if n := api.requestCount(); n != 0 {
		t.Fatalf("requests = %d, want 0", n)
	}
	a := s.Snapshot().Accounts[0]
	if a.Status != StatusExpired || !a.NextRunAt.Equal(clk.Now().Add(60*time.Minute)) {
		t.Fatalf("account: %+v", a)
	}
}

func TestScenarioRateLimitedCheckinSucceedsOnThirdAttempt(t *testing.T) {
	clk := &clock{now: time.Now()}
	api := newFakeAPI(t)
	api.throttle = 2
	c := []accounts.Credential{{Token: jwtWithExp(clk.Now().Add(time.Hour))}}

	s := api.service(c, clk)
	s.bootSweep(context.Background())

	if n := api.checkinCalls(c[0].Token); n != 3 {
		t.Fatalf("check-in attempts = %d, want 3", n)
	}
	if a := s.Snapshot().Accounts[0]; a.Status != StatusSuccess {
		t.Fatalf("account: %+v", a)
	}
}

func TestScenarioEmptyAccountListKeepsLooping(t *testing.T) {
	clk := &clock{now: time.Now()}
	tk := &fakeTicker{ch: make(chan time.Time)}
	ticks := make(chan time.Time, 4)
	r := runnerFunc(func(context.Context, int, accounts.Credential, workflow.ProgressFunc) workflow.Result {
		t.Errorf("runner called with no accounts")
		return workflow.Result{}
	})
	s := newTestService(nil, r, clk,
		WithTicker(func(time.Duration) Ticker { return tk }),
		WithTickHook(func(now time.Time) { ticks <- now }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	for i := 0; i < 3; i++ {
		tk.ch <- clk.Now()
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d not processed", i)
		}
	}
	if snap := s.Snapshot(); len(snap.Accounts) != 0 || snap.Booting {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
	if !tk.stopped.Load() {
		t.Fatalf("ticker not stopped")
	}
}
