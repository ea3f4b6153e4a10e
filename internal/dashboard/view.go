package dashboard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"

	"voyagebot/internal/scheduler"
	logx "voyagebot/pkg/logx"
)

const (
	bannerText     = "VOYAGEBOT  ·  daily check-in"
	activityWidth  = 28
	separatorWidth = 96
)

var (
	columns   = []string{"Account", "Status", "Points", "Streak", "Last Run", "Next Run", "Activity"}
	colWidths = []int{12, 14, 10, 8, 10, 12, 30}
)

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(bannerStyle.Render(bannerText))
	b.WriteString("\n")
	b.WriteString(summaryStyle.Render(m.summary()))
	b.WriteString("\n")
	b.WriteString(m.table())
	b.WriteString("\n")
	if len(m.snap.Accounts) == 0 {
		b.WriteString(mutedStyle.Render("No accounts loaded."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(logTitle.Render("EXECUTION LOGS:"))
	b.WriteString("\n")
	for _, e := range m.logs {
		b.WriteString(formatEntry(e))
		b.WriteString("\n")
	}
	b.WriteString(mutedStyle.Render(strings.Repeat("─", separatorWidth)))
	b.WriteString("\n")
	b.WriteString(mutedStyle.Render("Press Ctrl+C to stop | Last update: " + m.now.Format("15:04:05")))
	b.WriteString("\n")
	return b.String()
}

func (m Model) summary() string {
	counts := m.snap.Counts()
	parts := []string{fmt.Sprintf("Accounts: %d", len(m.snap.Accounts))}
	for _, s := range []scheduler.Status{
		scheduler.StatusSuccess, scheduler.StatusWaiting, scheduler.StatusProcessing,
		scheduler.StatusFailed, scheduler.StatusExpired,
	} {
		if n := counts[s]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %d", s, n))
		}
	}
	if m.snap.Booting && len(m.snap.Accounts) > 0 {
		parts = append(parts, "boot sweep running")
	} else if next, ok := nextDue(m.snap); ok && next.After(m.now) {
		parts = append(parts, "next run "+humanize.RelTime(next, m.now, "ago", "from now"))
	}
	return strings.Join(parts, " | ")
}

func nextDue(s scheduler.Snapshot) (time.Time, bool) {
	var next time.Time
	for _, a := range s.Accounts {
		if a.NextRunAt.IsZero() {
			continue
		}
		if next.IsZero() || a.NextRunAt.Before(next) {
			next = a.NextRunAt
		}
	}
	return next, !next.IsZero()
}

func (m Model) table() string {
	rows := make([][]string, 0, len(m.snap.Accounts))
	statuses := make([]scheduler.Status, 0, len(m.snap.Accounts))
	for _, a := range m.snap.Accounts {
		rows = append(rows, m.row(a))
		statuses = append(statuses, a.Status)
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			w := colWidths[col]
			if row == table.HeaderRow {
				return headerStyle.Width(w)
			}
			st := cellStyle
			switch col {
			case 1:
				if row >= 0 && row < len(statuses) {
					st = statusStyle(statuses[row]).Padding(0, 1)
				}
			case 2:
				st = pointsStyle.Padding(0, 1)
			case 3:
				st = streakStyle.Padding(0, 1)
			case 6:
				st = mutedStyle.Padding(0, 1)
			}
			return st.Width(w)
		})
	return t.Render()
}

func (m Model) row(a scheduler.Account) []string {
	status := string(a.Status)
	if a.Status == scheduler.StatusProcessing {
		status = m.spin.View() + status
	}
	return []string{
		"Account " + strconv.Itoa(a.Index),
		status,
		humanize.Comma(a.Points),
		strconv.Itoa(a.Streak),
		LastRun(a.LastRunAt),
		m.nextRun(a),
		Truncate(orDash(a.Note), activityWidth),
	}
}

func (m Model) nextRun(a scheduler.Account) string {
	switch {
	case a.Status == scheduler.StatusExpired:
		return expiredStyle.Render("TOKEN EXP")
	case a.NextRunAt.IsZero():
		return "-"
	}
	if d := a.NextRunAt.Sub(m.now); d > 0 {
		return FormatDuration(d)
	}
	return readyStyle.Render("Ready")
}

// FormatDuration renders d as "Xh Ym", "Xm Ys" or "Xs". Negative durations are 0s.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d / time.Hour)
	mins := int(d%time.Hour) / int(time.Minute)
	secs := int(d%time.Minute) / int(time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, mins)
	case mins > 0:
		return fmt.Sprintf("%dm %ds", mins, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// LastRun renders t as local HH:MM, or "-" when the account never completed a cycle.
func LastRun(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("15:04")
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func formatEntry(e logx.Entry) string {
	var b strings.Builder
	b.WriteString(mutedStyle.Render("[" + e.At.Local().Format("15:04:05") + "]"))
	b.WriteString(" ")
	b.WriteString(levelStyle(e.Level).Render(fmt.Sprintf("%-5s", strings.ToUpper(e.Level.String()))))
	b.WriteString(" ")
	ctx := ""
	if e.Context != "" {
		ctx = "[" + e.Context + "]"
	}
	b.WriteString(contextStyle.Render(fmt.Sprintf("%-12s", ctx)))
	b.WriteString(" ")
	b.WriteString(levelStyle(e.Level).Render(e.Message))
	if e.Extra != "" {
		b.WriteString(" ")
		b.WriteString(mutedStyle.Render(e.Extra))
	}
	return b.String()
}
