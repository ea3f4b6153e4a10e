package config

// Config is the settings file. Every field has a default (see Default);
// a file only needs the keys it overrides.
//
// All durations are Go duration strings ("500ms", "30s", "1h").
type Config struct {
	API       APIConfig       `json:"api"`
	Retry     RetryConfig     `json:"retry"`
	Stealth   StealthConfig   `json:"stealth"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Logging   LoggingConfig   `json:"logging"`
	Dashboard DashboardConfig `json:"dashboard"`
	Journal   JournalConfig   `json:"journal"`
	Notifier  NotifierConfig  `json:"notifier"`

	Diagnostics DiagnosticsConfig `json:"diagnostics"`
}

type APIConfig struct {
	BaseURL string `json:"base_url"`
	Origin  string `json:"origin"`
	Timeout string `json:"timeout"`
	// RatePerSec caps requests per account. 0 disables pacing.
	RatePerSec float64 `json:"rate_per_sec"`
}

type RetryConfig struct {
	MaxRetries int    `json:"max_retries"`
	Base       string `json:"base"`
	MaxDelay   string `json:"max_delay"`
	Jitter     string `json:"jitter"`
}

// RangeConfig is a [min, max] random wait.
type RangeConfig struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

type StealthConfig struct {
	Camouflage      bool        `json:"camouflage"`
	CamouflageGap   RangeConfig `json:"camouflage_gap"`
	AfterCamouflage RangeConfig `json:"after_camouflage"`
	BetweenSteps    RangeConfig `json:"between_steps"`
	BeforeCheckin   RangeConfig `json:"before_checkin"`
}

type ScheduleConfig struct {
	// DailyReset is a cron spec evaluated in UTC.
	DailyReset     string      `json:"daily_reset"`
	ResetJitter    string      `json:"reset_jitter"`
	FailedBackoff  string      `json:"failed_backoff"`
	ExpiredBackoff string      `json:"expired_backoff"`
	PollInterval   string      `json:"poll_interval"`
	BootStagger    RangeConfig `json:"boot_stagger"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type DashboardConfig struct {
	Enabled  bool   `json:"enabled"`
	LogLines int    `json:"log_lines"`
	Refresh  string `json:"refresh"`
}

// JournalConfig controls the optional run journal.
//
// Example:
//
//	"journal": { "driver": "sqlite", "path": "./voyagebot.db" }
type JournalConfig struct {
	Driver      string `json:"driver"` // none | file | sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// NotifierConfig controls Telegram alerts for selected cycle outcomes.
type NotifierConfig struct {
	Enabled     bool     `json:"enabled"`
	Token       string   `json:"token"`
	ChatID      int64    `json:"chat_id"`
	ThreadID    int      `json:"thread_id,omitempty"`
	Outcomes    []string `json:"outcomes"`
	DedupWindow string   `json:"dedup_window"`
	RatePerSec  float64  `json:"rate_per_sec"`
	QueueSize   int      `json:"queue_size"`
}

// DiagnosticsConfig controls the local status/pprof endpoint.
// Binding beyond loopback needs a token or allow_insecure.
type DiagnosticsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:    "https://onvoyage-backend-954067898723.us-central1.run.app/api/v1",
			Origin:     "https://app.onvoyage.ai",
			Timeout:    "30s",
			RatePerSec: 2,
		},
		Retry: RetryConfig{MaxRetries: 3, Base: "1s", MaxDelay: "60s", Jitter: "1s"},
		Stealth: StealthConfig{
			Camouflage:      true,
			CamouflageGap:   RangeConfig{Min: "500ms", Max: "1500ms"},
			AfterCamouflage: RangeConfig{Min: "2s", Max: "5s"},
			BetweenSteps:    RangeConfig{Min: "1s", Max: "2s"},
			BeforeCheckin:   RangeConfig{Min: "2s", Max: "4s"},
		},
		Schedule: ScheduleConfig{
			DailyReset:     "0 0 * * *",
			ResetJitter:    "30m",
			FailedBackoff:  "30m",
			ExpiredBackoff: "60m",
			PollInterval:   "1m",
			BootStagger:    RangeConfig{Min: "3s", Max: "6s"},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Console: true,
			File:    LoggingFile{Path: "./voyagebot.log"},
		},
		Dashboard: DashboardConfig{Enabled: true, LogLines: 15, Refresh: "1s"},
		Journal:   JournalConfig{Driver: "none", Path: "./voyagebot_journal"},
		Notifier: NotifierConfig{
			Outcomes:    []string{"EXPIRED", "FAILED"},
			DedupWindow: "6h",
			RatePerSec:  1,
			QueueSize:   64,
		},
		Diagnostics: DiagnosticsConfig{Addr: "127.0.0.1:6060"},
	}
}
