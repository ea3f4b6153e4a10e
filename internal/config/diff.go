package config

import (
	"reflect"
	"strings"

	logx "voyagebot/pkg/logx"
)

// LiveSections are applied without a restart.
var LiveSections = map[string]bool{"logging": true, "notifier": true}

// SummarizeConfigChange lists the changed sections and returns safe log fields
// describing them. Secrets (the notifier token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 12)
	section := func(name string, a, b any) bool {
		if reflect.DeepEqual(a, b) {
			return false
		}
		changed = append(changed, name)
		return true
	}

	section("api", oldCfg.API, newCfg.API)
	section("retry", oldCfg.Retry, newCfg.Retry)
	section("stealth", oldCfg.Stealth, newCfg.Stealth)
	if section("schedule", oldCfg.Schedule, newCfg.Schedule) {
		attrs = append(attrs, logx.String("schedule.daily_reset", newCfg.Schedule.DailyReset))
	}
	if section("logging", oldCfg.Logging, newCfg.Logging) {
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	section("dashboard", oldCfg.Dashboard, newCfg.Dashboard)
	if section("journal", oldCfg.Journal, newCfg.Journal) {
		attrs = append(attrs, logx.String("journal.driver", newCfg.Journal.Driver))
	}
	if section("notifier", oldCfg.Notifier, newCfg.Notifier) {
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newCfg.Notifier.Enabled),
			logx.Bool("notifier.token_set", strings.TrimSpace(newCfg.Notifier.Token) != ""),
			logx.String("notifier.outcomes", strings.Join(newCfg.Notifier.Outcomes, ",")),
		)
	}
	if section("diagnostics", oldCfg.Diagnostics, newCfg.Diagnostics) {
		attrs = append(attrs,
			logx.Bool("diagnostics.enabled", newCfg.Diagnostics.Enabled),
			logx.String("diagnostics.addr", newCfg.Diagnostics.Addr),
		)
	}
	return changed, attrs
}

// RestartRequired filters changed down to sections that only apply at startup.
func RestartRequired(changed []string) []string {
	var out []string
	for _, s := range changed {
		if !LiveSections[s] {
			out = append(out, s)
		}
	}
	return out
}
