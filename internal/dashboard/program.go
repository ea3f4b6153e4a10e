package dashboard

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// ErrQuit is returned by Run when the user closed the dashboard.
var ErrQuit = errors.New("dashboard closed by user")

// Run shows m on the alternate screen until ctx ends or the user quits.
// A user quit returns ErrQuit so the caller can stop the process.
func Run(ctx context.Context, m Model, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(m, opts...)
	final, err := p.Run()
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, tea.ErrProgramKilled) {
			return nil
		}
		if errors.Is(err, tea.ErrInterrupted) {
			return ErrQuit
		}
		return err
	}
	if fm, ok := final.(Model); ok && fm.Stopped() {
		return ErrQuit
	}
	return nil
}
