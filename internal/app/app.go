// Package app wires configuration, credentials, the scheduler and its
// observers into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"voyagebot/internal/accounts"
	"voyagebot/internal/apiclient"
	"voyagebot/internal/config"
	"voyagebot/internal/dashboard"
	"voyagebot/internal/eventbus"
	"voyagebot/internal/notifier"
	"voyagebot/internal/observability/diag"
	"voyagebot/internal/runtime/supervisor"
	"voyagebot/internal/scheduler"
	"voyagebot/internal/storage"
	"voyagebot/internal/workflow"
	logx "voyagebot/pkg/logx"
)

const (
	shutdownTimeout = 10 * time.Second
	journalTimeout  = 5 * time.Second
)

// Options are the command-line inputs.
type Options struct {
	ConfigPath   string
	AccountsPath string
}

type Option func(*App)

// WithSenderFactory replaces the Telegram sender used for alerts.
func WithSenderFactory(f notifier.SenderFactory) Option {
	return func(a *App) { a.newSender = f }
}

// WithSchedulerOptions passes extra options to the scheduler.
func WithSchedulerOptions(opts ...scheduler.Option) Option {
	return func(a *App) { a.schedOpts = append(a.schedOpts, opts...) }
}

// WithWorkflowOptions passes extra options to the account workflow.
func WithWorkflowOptions(opts ...workflow.Option) Option {
	return func(a *App) { a.flowOpts = append(a.flowOpts, opts...) }
}

// WithClientOptions passes extra options to every API client.
func WithClientOptions(opts ...apiclient.Option) Option {
	return func(a *App) { a.clientOpts = append(a.clientOpts, opts...) }
}

// WithNotify replaces the sd_notify call.
func WithNotify(fn func(state string)) Option {
	return func(a *App) { a.notify = fn }
}

type App struct {
	cfgm     *config.Manager
	settings Settings
	creds    []accounts.Credential

	logs *logx.Service
	log  logx.Logger

	bus     eventbus.Bus
	sched   *scheduler.Service
	notif   *notifier.Service
	journal storage.Store

	newSender  notifier.SenderFactory
	schedOpts  []scheduler.Option
	flowOpts   []workflow.Option
	clientOpts []apiclient.Option
	notify     func(state string)
}

// New loads settings and credentials and builds every component.
// Any error here is a fatal startup error.
func New(ctx context.Context, o Options, opts ...Option) (*App, error) {
	a := &App{}
	for _, opt := range opts {
		opt(a)
	}

	a.cfgm = config.NewManager(o.ConfigPath)
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := BuildSettings(cfg)
		return err
	})
	cfg, err := a.cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	if a.settings, err = BuildSettings(cfg); err != nil {
		return nil, err
	}

	a.logs, a.log = logx.New(a.settings.Logging)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	if a.notify == nil {
		a.notify = systemdNotify(a.log)
	}

	a.creds, err = accounts.Load(o.AccountsPath)
	if err != nil {
		_ = a.logs.Close()
		return nil, err
	}
	proxied := 0
	for _, c := range a.creds {
		if c.HasProxy() {
			proxied++
		}
	}
	a.log.Info("accounts loaded",
		logx.String("path", o.AccountsPath),
		logx.Int("accounts", len(a.creds)),
		logx.Int("proxied", proxied),
	)

	a.bus = eventbus.New()
	runner := workflow.New(
		workflow.HTTPClients(a.settings.API, a.log.With(logx.String("comp", "api")), a.clientOpts...),
		a.settings.Pauses,
		a.log,
		a.flowOpts...,
	)
	schedOpts := append([]scheduler.Option{scheduler.WithTickHook(a.onTick)}, a.schedOpts...)
	a.sched = scheduler.New(a.creds, runner, a.settings.Policy, a.bus, a.log, schedOpts...)
	a.notif = notifier.New(a.settings.Notifier, a.newSender, a.log)

	a.journal, err = storage.Open(a.settings.Journal, a.log.With(logx.String("comp", "journal")))
	switch {
	case errors.Is(err, storage.ErrDisabled):
		a.journal = nil
	case err != nil:
		a.log.Warn("journal unavailable; runs will not be recorded", logx.String("driver", a.settings.Journal.Driver), logx.Err(err))
		a.journal = nil
	}
	return a, nil
}

// Scheduler exposes the schedule for callers that want snapshots.
func (a *App) Scheduler() *scheduler.Service { return a.sched }

// Run starts every component and blocks until ctx ends, the user closes
// the dashboard, or a component fails. A clean stop returns nil.
func (a *App) Run(ctx context.Context) error {
	defer a.close()

	sup := supervisor.New(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))), supervisor.WithCancelOnError(true))

	// Observers subscribe before the scheduler publishes its first snapshot.
	alerts, unsubAlerts := a.bus.Subscribe(64, scheduler.EventCycle)
	sup.Go("notifier", func(c context.Context) error {
		defer unsubAlerts()
		return a.notif.Run(c, alerts)
	})
	if a.journal != nil {
		runs, unsubRuns := a.bus.Subscribe(64, scheduler.EventCycle)
		sup.Go0("journal", func(c context.Context) {
			defer unsubRuns()
			a.recordRuns(c, runs)
		})
	}
	if a.settings.DashboardEnabled {
		snaps, unsubSnaps := a.bus.Subscribe(16, scheduler.EventSnapshot)
		model := dashboard.New(a.settings.Dashboard, a.sched.Snapshot(), snaps, a.logs.Ring())
		sup.Go("dashboard", func(c context.Context) error {
			defer unsubSnaps()
			err := dashboard.Run(c, model)
			if errors.Is(err, dashboard.ErrQuit) {
				a.log.Info("dashboard closed; stopping")
				sup.Cancel()
				return nil
			}
			return err
		})
	}

	if a.settings.Diagnostics.Enabled {
		srv := diag.New(a.settings.Diagnostics, a.sched.Snapshot, a.log)
		sup.GoRestart("diagnostics", srv.Run, 500*time.Millisecond, 10*time.Second)
	}

	cfgUpdates := a.cfgm.Subscribe(8)
	sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(cfgUpdates)
		a.followConfig(c, cfgUpdates)
	})
	sup.Go("config.watch", a.cfgm.Watch)

	sup.Go("scheduler", a.sched.Run)

	a.notify(daemon.SdNotifyReady)
	a.log.Info("voyagebot started",
		logx.Int("accounts", len(a.creds)),
		logx.Bool("dashboard", a.settings.DashboardEnabled),
		logx.Bool("notifier", a.notif.Enabled()),
		logx.Bool("journal", a.journal != nil),
	)

	<-sup.Context().Done()
	a.notify(daemon.SdNotifyStopping)
	a.log.Info("shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := sup.Wait(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		a.log.Warn("shutdown timed out", logx.Duration("timeout", shutdownTimeout), logx.Int64("active", sup.Active()))
		return nil
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.log.Info("stopped")
	return nil
}

func (a *App) onTick(time.Time) { a.notify(daemon.SdNotifyWatchdog) }

// followConfig applies live sections of every reloaded config and reports
// sections that need a restart.
func (a *App) followConfig(ctx context.Context, updates <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.applyConfig(last, cfg)
			last = cfg
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	s, err := BuildSettings(next)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}

	// Console ownership is decided at startup and never moves to or from the dashboard.
	a.logs.Apply(mapLogging(next, a.settings.DashboardEnabled))

	wasEnabled := a.notif.Enabled()
	a.notif.Apply(s.Notifier)
	if now := a.notif.Enabled(); now != wasEnabled {
		a.log.Info("notifier toggled via config", logx.Bool("enabled", now))
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) recordRuns(ctx context.Context, events <-chan eventbus.Event) {
	log := a.log.With(logx.String("comp", "journal"))
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			ev, ok := e.Data.(scheduler.CycleEvent)
			if !ok {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, journalTimeout)
			err := a.journal.AppendRun(wctx, runRecord(ev))
			cancel()
			if err != nil {
				log.Warn("journal write failed", logx.Account(ev.Index), logx.Err(err))
			}
		}
	}
}

func runRecord(ev scheduler.CycleEvent) storage.RunRecord {
	return storage.RunRecord{
		RunID:     ev.RunID,
		Account:   ev.Index,
		Outcome:   ev.Outcome.String(),
		Note:      ev.Note,
		Points:    ev.Points,
		Streak:    ev.Streak,
		Claimed:   ev.Claimed,
		Reward:    ev.Reward,
		StartedAt: ev.StartedAt.UTC(),
		TookMS:    ev.Duration.Milliseconds(),
		NextRunAt: ev.NextRunAt.UTC(),
		Error:     ev.Err,
	}
}

func (a *App) close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("journal close failed", logx.Err(err))
		}
	}
	if err := a.logs.Close(); err != nil {
		fmt.Fprintf(logx.Stderr(), "close log file: %v\n", err)
	}
}

// systemdNotify sends state to systemd. Outside a unit it does nothing.
func systemdNotify(log logx.Logger) func(string) {
	return func(state string) {
		if _, err := daemon.SdNotify(false, state); err != nil {
			log.Debug("sd_notify failed", logx.String("state", state), logx.Err(err))
		}
	}
}
