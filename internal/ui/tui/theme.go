package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/tinytrack/ttrack/internal/domain"
)

type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Card     lipgloss.Style
	Toast    lipgloss.Style

	Running  lipgloss.Style
	Finished lipgloss.Style
	Failed   lipgloss.Style
	Deleted  lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtitle: lipgloss.NewStyle().Faint(true),
		Help:     lipgloss.NewStyle().Faint(true),
		Card: lipgloss.NewStyle().
			Padding(1, 2).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")),
		Toast: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),

		Running:  lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		Finished: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Failed:   lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
		Deleted:  lipgloss.NewStyle().Faint(true).Strikethrough(true),
	}
}

func (t Theme) Status(s domain.RunStatus) string {
	switch s {
	case domain.RunRunning, domain.RunScheduled:
		return t.Running.Render(s.String())
	case domain.RunFinished:
		return t.Finished.Render(s.String())
	default:
		return t.Failed.Render(s.String())
	}
}
