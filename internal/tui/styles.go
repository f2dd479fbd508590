package tui

import (
	"github.com/charmbracelet/lipgloss/v2"
)

type Styles struct {
	Status        lipgloss.Style
	StatusKey     lipgloss.Style
	StatusSep     lipgloss.Style
	StatusLoading lipgloss.Style
	StatusError   lipgloss.Style
	StatusNotice  lipgloss.Style

	RowIndex       lipgloss.Style
	RowID          lipgloss.Style
	RowName        lipgloss.Style
	RowStatus      lipgloss.Style
	RowBody        lipgloss.Style
	RowPlaceholder lipgloss.Style
}

func DefaultStyles() Styles {
	var (
		fg      = lipgloss.Color("#DFDBDD")
		muted   = lipgloss.Color("#858392")
		subtle  = lipgloss.Color("#605F6B")
		primary = lipgloss.Color("#6B50FF")
		accent  = lipgloss.Color("#00A4FF")
		warn    = lipgloss.Color("#E8FE96")
		danger  = lipgloss.Color("#EB4268")
		surface = lipgloss.Color("#201F26")
	)
	return Styles{
		Status:        lipgloss.NewStyle().Foreground(fg).Background(surface),
		StatusKey:     lipgloss.NewStyle().Foreground(primary).Bold(true),
		StatusSep:     lipgloss.NewStyle().Foreground(subtle),
		StatusLoading: lipgloss.NewStyle().Foreground(warn),
		StatusError:   lipgloss.NewStyle().Foreground(danger),
		StatusNotice:  lipgloss.NewStyle().Foreground(accent).Italic(true),

		RowIndex:       lipgloss.NewStyle().Foreground(subtle),
		RowID:          lipgloss.NewStyle().Foreground(accent),
		RowName:        lipgloss.NewStyle().Foreground(fg).Bold(true),
		RowStatus:      lipgloss.NewStyle().Foreground(muted),
		RowBody:        lipgloss.NewStyle().Foreground(muted).PaddingLeft(2),
		RowPlaceholder: lipgloss.NewStyle().Foreground(subtle).Faint(true),
	}
}
