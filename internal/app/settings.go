package app

import (
	"strings"
	"time"

	"voyagebot/internal/apiclient"
	"voyagebot/internal/config"
	"voyagebot/internal/dashboard"
	"voyagebot/internal/notifier"
	"voyagebot/internal/observability/diag"
	"voyagebot/internal/pacing"
	"voyagebot/internal/scheduler"
	"voyagebot/internal/storage"
	"voyagebot/internal/workflow"
	logx "voyagebot/pkg/logx"
)

// Settings is a Config turned into component configurations.
type Settings struct {
	API    apiclient.Config
	Pauses workflow.Pauses
	Policy scheduler.Policy

	Logging logx.Config

	DashboardEnabled bool
	Dashboard        dashboard.Config

	Journal     storage.Config
	Notifier    notifier.Config
	Diagnostics diag.Config
}

// BuildSettings maps cfg onto component configs. It is also the
// validator installed on the config manager, so a reload that cannot be
// mapped is rejected before it is published.
func BuildSettings(cfg *config.Config) (Settings, error) {
	var s Settings
	var err error

	if s.API, err = mapAPIConfig(cfg); err != nil {
		return Settings{}, err
	}
	if s.Pauses, err = mapPauses(cfg); err != nil {
		return Settings{}, err
	}
	if s.Policy, err = mapPolicy(cfg); err != nil {
		return Settings{}, err
	}
	s.Logging = mapLogging(cfg, cfg.Dashboard.Enabled)

	s.DashboardEnabled = cfg.Dashboard.Enabled
	refresh, err := config.ParseDurationOrDefault("dashboard.refresh", cfg.Dashboard.Refresh, time.Second)
	if err != nil {
		return Settings{}, err
	}
	s.Dashboard = dashboard.Config{LogLines: cfg.Dashboard.LogLines, Refresh: refresh}

	if s.Journal, err = mapJournalConfig(cfg); err != nil {
		return Settings{}, err
	}
	if s.Notifier, err = mapNotifierConfig(cfg); err != nil {
		return Settings{}, err
	}
	s.Diagnostics = diag.Config{
		Enabled:       cfg.Diagnostics.Enabled,
		Addr:          strings.TrimSpace(cfg.Diagnostics.Addr),
		Token:         strings.TrimSpace(cfg.Diagnostics.Token),
		AllowInsecure: cfg.Diagnostics.AllowInsecure,
	}
	if s.Diagnostics.Enabled {
		if err := diag.CheckBind(s.Diagnostics); err != nil {
			return Settings{}, err
		}
	}
	return s, nil
}

func mapAPIConfig(cfg *config.Config) (apiclient.Config, error) {
	def := apiclient.DefaultConfig()
	out := apiclient.Config{
		BaseURL:    cfg.API.BaseURL,
		Origin:     cfg.API.Origin,
		RatePerSec: cfg.API.RatePerSec,
		Camouflage: cfg.Stealth.Camouflage,
	}
	var err error
	if out.Timeout, err = config.ParseDurationOrDefault("api.timeout", cfg.API.Timeout, def.Timeout); err != nil {
		return apiclient.Config{}, err
	}

	rp := apiclient.RetryPolicy{MaxRetries: cfg.Retry.MaxRetries}
	if rp.Base, err = config.ParseDurationOrDefault("retry.base", cfg.Retry.Base, def.Retry.Base); err != nil {
		return apiclient.Config{}, err
	}
	if rp.MaxDelay, err = config.ParseDurationOrDefault("retry.max_delay", cfg.Retry.MaxDelay, def.Retry.MaxDelay); err != nil {
		return apiclient.Config{}, err
	}
	if rp.Jitter, err = config.ParseDurationField("retry.jitter", cfg.Retry.Jitter); err != nil {
		return apiclient.Config{}, err
	}
	out.Retry = rp

	if out.CamouflageGap, err = parseRange("stealth.camouflage_gap", cfg.Stealth.CamouflageGap, def.CamouflageGap); err != nil {
		return apiclient.Config{}, err
	}
	return out, nil
}

func mapPauses(cfg *config.Config) (workflow.Pauses, error) {
	def := workflow.DefaultPauses()
	var p workflow.Pauses
	var err error
	if p.AfterCamouflage, err = parseRange("stealth.after_camouflage", cfg.Stealth.AfterCamouflage, def.AfterCamouflage); err != nil {
		return workflow.Pauses{}, err
	}
	if p.BetweenSteps, err = parseRange("stealth.between_steps", cfg.Stealth.BetweenSteps, def.BetweenSteps); err != nil {
		return workflow.Pauses{}, err
	}
	if p.BeforeCheckin, err = parseRange("stealth.before_checkin", cfg.Stealth.BeforeCheckin, def.BeforeCheckin); err != nil {
		return workflow.Pauses{}, err
	}
	return p, nil
}

func mapPolicy(cfg *config.Config) (scheduler.Policy, error) {
	def := scheduler.DefaultPolicy()
	sc := cfg.Schedule
	p := scheduler.Policy{}
	var err error
	if p.DailyReset, err = scheduler.ParseDailyReset(sc.DailyReset); err != nil {
		return scheduler.Policy{}, err
	}
	if p.ResetJitter, err = config.ParseDurationField("schedule.reset_jitter", sc.ResetJitter); err != nil {
		return scheduler.Policy{}, err
	}
	if p.FailedBackoff, err = config.ParseDurationOrDefault("schedule.failed_backoff", sc.FailedBackoff, def.FailedBackoff); err != nil {
		return scheduler.Policy{}, err
	}
	if p.ExpiredBackoff, err = config.ParseDurationOrDefault("schedule.expired_backoff", sc.ExpiredBackoff, def.ExpiredBackoff); err != nil {
		return scheduler.Policy{}, err
	}
	if p.PollInterval, err = config.ParseDurationOrDefault("schedule.poll_interval", sc.PollInterval, def.PollInterval); err != nil {
		return scheduler.Policy{}, err
	}
	if p.BootStagger, err = parseRange("schedule.boot_stagger", sc.BootStagger, def.BootStagger); err != nil {
		return scheduler.Policy{}, err
	}
	return p, nil
}

// mapLogging routes logs to the ring instead of the console while the dashboard owns the terminal.
func mapLogging(cfg *config.Config, dashboardOn bool) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console && !dashboardOn,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Ring: logx.RingConfig{
			Enabled: dashboardOn,
			Size:    cfg.Dashboard.LogLines,
		},
	}
}

func mapJournalConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationField("journal.busy_timeout", cfg.Journal.BusyTimeout)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)),
		Path:        strings.TrimSpace(cfg.Journal.Path),
		BusyTimeout: busy,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.Notifier
	window, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notifier.Config{}, err
	}
	outcomes := make([]string, 0, len(n.Outcomes))
	for _, o := range n.Outcomes {
		if o = strings.ToUpper(strings.TrimSpace(o)); o != "" {
			outcomes = append(outcomes, o)
		}
	}
	return notifier.Config{
		Enabled:     n.Enabled,
		Token:       strings.TrimSpace(n.Token),
		ChatID:      n.ChatID,
		ThreadID:    n.ThreadID,
		Outcomes:    outcomes,
		DedupWindow: window,
		RatePerSec:  n.RatePerSec,
		QueueSize:   n.QueueSize,
	}, nil
}

func parseRange(path string, rc config.RangeConfig, def pacing.Range) (pacing.Range, error) {
	r, err := config.ParseRange(path, rc, config.Range{Min: def.Min, Max: def.Max})
	if err != nil {
		return pacing.Range{}, err
	}
	return pacing.Range{Min: r.Min, Max: r.Max}, nil
}
