package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"voyagebot/internal/scheduler"
	logx "voyagebot/pkg/logx"
)

var (
	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("14")).
			Border(lipgloss.DoubleBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 2)

	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14")).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	borderStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pointsStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	streakStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	readyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	expiredStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	logTitle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))
	contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	statusStyles = map[scheduler.Status]lipgloss.Style{
		scheduler.StatusSuccess:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		scheduler.StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
		scheduler.StatusProcessing: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		scheduler.StatusWaiting:    lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		scheduler.StatusExpired:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}

	levelStyles = map[logx.Level]lipgloss.Style{
		logx.LevelTrace: mutedStyle,
		logx.LevelDebug: mutedStyle,
		logx.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("7")),
		logx.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		logx.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

func statusStyle(s scheduler.Status) lipgloss.Style {
	if st, ok := statusStyles[s]; ok {
		return st
	}
	return cellStyle
}

func levelStyle(l logx.Level) lipgloss.Style {
	if st, ok := levelStyles[l]; ok {
		return st
	}
	return levelStyles[logx.LevelError]
}
