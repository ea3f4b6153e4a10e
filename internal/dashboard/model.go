// Package dashboard renders the live account table and rolling log.
//
// The model never touches scheduler state: it receives immutable snapshots
// from the event bus and polls the log ring on a refresh tick.
package dashboard

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"voyagebot/internal/eventbus"
	"voyagebot/internal/scheduler"
	logx "voyagebot/pkg/logx"
)

type Config struct {
	// LogLines is the number of rolling log lines shown.
	LogLines int
	// Refresh repaints countdowns and picks up new log lines.
	Refresh time.Duration
}

func (c Config) withDefaults() Config {
	if c.LogLines <= 0 {
		c.LogLines = 15
	}
	if c.Refresh <= 0 {
		c.Refresh = time.Second
	}
	return c
}

type Option func(*Model)

// WithClock replaces time.Now for countdowns and the footer.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.clock = now
		}
	}
}

type (
	snapshotMsg scheduler.Snapshot
	ignoredMsg  struct{}
	busClosed   struct{}
	refreshMsg  time.Time
)

// Model is the bubbletea model of the dashboard.
type Model struct {
	cfg    Config
	events <-chan eventbus.Event
	ring   *logx.Ring
	clock  func() time.Time

	snap    scheduler.Snapshot
	logs    []logx.Entry
	logSeq  uint64
	now     time.Time
	spin    spinner.Model
	width   int
	stopped bool
}

// New builds the model. events should be a subscription to scheduler.EventSnapshot;
// ring may be nil when no log lines should be shown.
func New(cfg Config, initial scheduler.Snapshot, events <-chan eventbus.Event, ring *logx.Ring, opts ...Option) Model {
	m := Model{
		cfg:    cfg.withDefaults(),
		events: events,
		ring:   ring,
		clock:  time.Now,
		snap:   initial,
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
	for _, o := range opts {
		o(&m)
	}
	m.now = m.clock()
	m.pullLogs()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.events), m.tick(), m.spin.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.stopped = true
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case snapshotMsg:
		m.snap = scheduler.Snapshot(msg)
		m.now = m.clock()
		return m, waitForSnapshot(m.events)
	case ignoredMsg:
		return m, waitForSnapshot(m.events)
	case busClosed:
		m.events = nil
	case refreshMsg:
		m.now = m.clock()
		m.pullLogs()
		return m, m.tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Stopped reports whether the user asked to quit.
func (m Model) Stopped() bool { return m.stopped }

// Snapshot returns the last snapshot the model received.
func (m Model) Snapshot() scheduler.Snapshot { return m.snap }

func (m *Model) pullLogs() {
	if m.ring == nil {
		return
	}
	seq := m.ring.Seq()
	if seq == m.logSeq && m.logs != nil {
		return
	}
	m.logSeq = seq
	entries := m.ring.Entries()
	if len(entries) > m.cfg.LogLines {
		entries = entries[len(entries)-m.cfg.LogLines:]
	}
	m.logs = entries
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.cfg.Refresh, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func waitForSnapshot(ch <-chan eventbus.Event) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return busClosed{}
		}
		if s, ok := e.Data.(scheduler.Snapshot); ok {
			return snapshotMsg(s)
		}
		return ignoredMsg{}
	}
}
