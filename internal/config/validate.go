package config

import (
	"errors"
	"fmt"
	"strings"

	logx "voyagebot/pkg/logx"
)

var knownOutcomes = map[string]bool{"SUCCESS": true, "FAILED": true, "EXPIRED": true}

// Validate checks values that can be checked without building components.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}
	rng := func(path string, rc RangeConfig) {
		_, err := ParseRange(path, rc, Range{})
		add(err)
	}

	if cfg.API.RatePerSec < 0 {
		add(errors.New("api.rate_per_sec must be >= 0"))
	}
	dur("api.timeout", cfg.API.Timeout)

	if cfg.Retry.MaxRetries < 0 {
		add(errors.New("retry.max_retries must be >= 0"))
	}
	dur("retry.base", cfg.Retry.Base)
	dur("retry.max_delay", cfg.Retry.MaxDelay)
	dur("retry.jitter", cfg.Retry.Jitter)

	rng("stealth.camouflage_gap", cfg.Stealth.CamouflageGap)
	rng("stealth.after_camouflage", cfg.Stealth.AfterCamouflage)
	rng("stealth.between_steps", cfg.Stealth.BetweenSteps)
	rng("stealth.before_checkin", cfg.Stealth.BeforeCheckin)

	dur("schedule.reset_jitter", cfg.Schedule.ResetJitter)
	dur("schedule.failed_backoff", cfg.Schedule.FailedBackoff)
	dur("schedule.expired_backoff", cfg.Schedule.ExpiredBackoff)
	dur("schedule.poll_interval", cfg.Schedule.PollInterval)
	rng("schedule.boot_stagger", cfg.Schedule.BootStagger)

	if !logx.ValidLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}

	if cfg.Dashboard.LogLines < 0 {
		add(errors.New("dashboard.log_lines must be >= 0"))
	}
	dur("dashboard.refresh", cfg.Dashboard.Refresh)

	switch strings.ToLower(strings.TrimSpace(cfg.Journal.Driver)) {
	case "", "none", "file", "sqlite":
	default:
		add(fmt.Errorf("journal.driver: unknown driver %q", cfg.Journal.Driver))
	}
	dur("journal.busy_timeout", cfg.Journal.BusyTimeout)

	n := cfg.Notifier
	if n.Enabled {
		if strings.TrimSpace(n.Token) == "" {
			add(errors.New("notifier.token is required when notifier.enabled"))
		}
		if n.ChatID == 0 {
			add(errors.New("notifier.chat_id is required when notifier.enabled"))
		}
	}
	for _, o := range n.Outcomes {
		if !knownOutcomes[strings.ToUpper(strings.TrimSpace(o))] {
			add(fmt.Errorf("notifier.outcomes: unknown outcome %q", o))
		}
	}
	if n.RatePerSec < 0 {
		add(errors.New("notifier.rate_per_sec must be >= 0"))
	}
	dur("notifier.dedup_window", n.DedupWindow)

	return errors.Join(errs...)
}
