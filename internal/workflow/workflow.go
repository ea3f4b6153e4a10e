// Package workflow runs one check-in cycle for one account.
//
// A cycle is a straight line: expiry gate, camouflage, profile, balance,
// check-in status and, when needed, the check-in itself. Steps only act on
// an explicit success code; a returned error aborts the rest of the cycle.
package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"voyagebot/internal/accounts"
	"voyagebot/internal/apiclient"
	"voyagebot/internal/pacing"
	"voyagebot/internal/tokeninfo"
	logx "voyagebot/pkg/logx"
)

// API is the subset of *apiclient.Client the workflow drives.
type API interface {
	VisitCamouflage(ctx context.Context)
	Profile(ctx context.Context) (*apiclient.Envelope, error)
	PointsBalance(ctx context.Context) (*apiclient.Envelope, error)
	CheckinStatus(ctx context.Context) (*apiclient.Envelope, error)
	Checkin(ctx context.Context) (*apiclient.Envelope, error)
}

// ClientFactory builds the API client of one account. It is called at most once per index.
type ClientFactory func(index int, cred accounts.Credential) API

// HTTPClients returns a factory backed by apiclient.
func HTTPClients(cfg apiclient.Config, log logx.Logger, opts ...apiclient.Option) ClientFactory {
	return func(index int, cred accounts.Credential) API {
		l := log.With(logx.Account(index))
		c := apiclient.New(cfg, cred, l, opts...)
		l.Debug("api client ready", logx.String("route", c.Route()))
		return c
	}
}

// Pauses are the stealth waits between steps.
type Pauses struct {
	AfterCamouflage pacing.Range
	BetweenSteps    pacing.Range
	BeforeCheckin   pacing.Range
}

func DefaultPauses() Pauses {
	return Pauses{
		AfterCamouflage: pacing.Range{Min: 2 * time.Second, Max: 5 * time.Second},
		BetweenSteps:    pacing.Range{Min: time.Second, Max: 2 * time.Second},
		BeforeCheckin:   pacing.Range{Min: 2 * time.Second, Max: 4 * time.Second},
	}
}

// ProgressFunc receives short live notes ("Claiming daily...") while a cycle runs.
type ProgressFunc func(note string)

const (
	NoteStarting       = "Starting cycle..."
	NoteClaiming       = "Claiming daily..."
	NoteAlreadyClaimed = "Already claimed today"
	NoteTokenExpired   = "Token has expired!"
	NoteTokenRejected  = "Token expired!"

	NoteCheckinUnreadable = "Check-in response unreadable"
	NoteCheckinRejected   = "Check-in not accepted"
)

type Option func(*Runner)

func WithSleep(fn pacing.SleepFunc) Option {
	return func(r *Runner) {
		if fn != nil {
			r.sleep = fn
		}
	}
}

func WithRand(rng *pacing.Rand) Option {
	return func(r *Runner) {
		if rng != nil {
			r.rng = rng
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// Runner executes cycles. Clients are created lazily and reused across cycles
// so an account keeps its proxy route and rate limiter.
type Runner struct {
	newClient ClientFactory
	pauses    Pauses
	log       logx.Logger

	sleep pacing.SleepFunc
	rng   *pacing.Rand
	now   func() time.Time

	mu      sync.Mutex
	clients map[int]API
}

func New(factory ClientFactory, pauses Pauses, log logx.Logger, opts ...Option) *Runner {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Runner{
		newClient: factory,
		pauses:    pauses,
		log:       log.With(logx.String("comp", "workflow")),
		sleep:     pacing.Sleep,
		rng:       pacing.NewRandFromTime(),
		now:       time.Now,
		clients:   map[int]API{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Runner) client(index int, cred accounts.Credential) API {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[index]
	if !ok {
		c = r.newClient(index, cred)
		r.clients[index] = c
	}
	return c
}

// Run performs one traversal for account index. It never panics on API
// errors; the outcome and error are reported in the Result.
func (r *Runner) Run(ctx context.Context, index int, cred accounts.Credential, progress ProgressFunc) Result {
	if progress == nil {
		progress = func(string) {}
	}
	log := r.log.With(logx.Account(index))
	progress(NoteStarting)

	if exp, ok := tokeninfo.ExpiryOf(cred.Token); ok && r.now().After(exp) {
		log.Error("token has expired, please update", logx.Time("expired_at", exp))
		return Result{Outcome: OutcomeExpired, Note: NoteTokenExpired}
	}

	var res Result
	if err := r.cycle(ctx, log, r.client(index, cred), &res, progress); err != nil {
		res.Err = err
		if apiclient.IsTokenExpired(err) {
			log.Error("token rejected by api, please update", logx.Err(err))
			res.Outcome = OutcomeExpired
			res.Note = NoteTokenRejected
			return res
		}
		log.Error("cycle failed", logx.Err(err))
		res.Outcome = OutcomeFailed
		res.Note = err.Error()
		return res
	}
	res.Outcome = OutcomeSuccess
	return res
}

func (r *Runner) cycle(ctx context.Context, log logx.Logger, api API, res *Result, progress ProgressFunc) error {
	log.Info("visiting dummy endpoints")
	api.VisitCamouflage(ctx)
	if err := r.pause(ctx, r.pauses.AfterCamouflage); err != nil {
		return err
	}

	env, err := step(log, "profile", func() (*apiclient.Envelope, error) { return api.Profile(ctx) })
	if err != nil {
		return err
	}
	var profile apiclient.Profile
	if decodeOK(log, "profile", env, &profile) {
		if name := profile.Name(); name != "" {
			res.Username = name
			res.Note = "User: " + name
			progress(res.Note)
			log.Info("logged in", logx.String("user", name))
		}
	}
	if err := r.pause(ctx, r.pauses.BetweenSteps); err != nil {
		return err
	}

	if err := r.refreshBalance(ctx, log, api, res); err != nil {
		return err
	}
	if err := r.pause(ctx, r.pauses.BetweenSteps); err != nil {
		return err
	}

	env, err = step(log, "checkin status", func() (*apiclient.Envelope, error) { return api.CheckinStatus(ctx) })
	if err != nil {
		return err
	}
	var status apiclient.CheckinStatus
	if decodeOK(log, "checkin status", env, &status) && status.CheckedIn {
		log.Info("already checked in today")
		res.Note = NoteAlreadyClaimed
		return nil
	}

	log.Info("performing daily check-in")
	progress(NoteClaiming)
	if err := r.pause(ctx, r.pauses.BeforeCheckin); err != nil {
		return err
	}
	env, err = step(log, "checkin", func() (*apiclient.Envelope, error) { return api.Checkin(ctx) })
	if err != nil {
		return err
	}
	if env == nil {
		res.Note = NoteCheckinUnreadable
		return nil
	}
	if !env.OK() {
		log.Warn("check-in not accepted", logx.Int("code", env.Code), logx.String("message", env.Message))
		res.Note = env.Message
		if strings.TrimSpace(res.Note) == "" {
			res.Note = NoteCheckinRejected
		}
		return nil
	}

	var claim apiclient.CheckinResult
	if err := env.Decode(&claim); err != nil {
		log.Debug("check-in payload ignored", logx.Err(err))
	}
	res.Claimed = true
	res.Reward = int64(claim.Reward)
	res.Streak = claim.StreakDays
	res.StreakOK = true
	res.Note = fmt.Sprintf("Claimed +%d pts", res.Reward)
	log.Info("check-in ok", logx.Int64("reward", res.Reward), logx.Int("streak", res.Streak))

	if err := r.pause(ctx, r.pauses.BetweenSteps); err != nil {
		return err
	}
	return r.refreshBalance(ctx, log, api, res)
}

func (r *Runner) refreshBalance(ctx context.Context, log logx.Logger, api API, res *Result) error {
	env, err := step(log, "balance", func() (*apiclient.Envelope, error) { return api.PointsBalance(ctx) })
	if err != nil {
		return err
	}
	var bal apiclient.Balance
	if decodeOK(log, "balance", env, &bal) {
		p := int64(bal.Balance)
		if p < 0 {
			p = 0
		}
		res.Points = p
		res.PointsOK = true
	}
	return nil
}

func (r *Runner) pause(ctx context.Context, rg pacing.Range) error {
	return r.sleep(ctx, rg.Pick(r.rng))
}

// step runs one API call. A malformed body is a no-op (nil envelope, nil error).
func step(log logx.Logger, name string, fn func() (*apiclient.Envelope, error)) (*apiclient.Envelope, error) {
	env, err := fn()
	if err != nil {
		if apiclient.IsMalformed(err) {
			log.Warn("malformed response ignored", logx.String("step", name), logx.Err(err))
			return nil, nil
		}
		return nil, err
	}
	return env, nil
}

// decodeOK decodes env.Data into v when env carries an explicit success code.
func decodeOK(log logx.Logger, name string, env *apiclient.Envelope, v any) bool {
	if env == nil || !env.OK() {
		if env != nil {
			log.Debug("step skipped", logx.String("step", name), logx.Int("code", env.Code), logx.String("message", env.Message))
		}
		return false
	}
	if err := env.Decode(v); err != nil {
		log.Warn("malformed payload ignored", logx.String("step", name), logx.Err(err))
		return false
	}
	return true
}
