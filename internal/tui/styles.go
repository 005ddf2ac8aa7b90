package tui

import (
	"github.com/charmbracelet/lipgloss"
)

// ------- minimal styling helpers (Lip Gloss) -------
type styles struct {
	title, success, pending, accent, muted, err lipgloss.Style
	selected, done, help, due, overdue, frame   lipgloss.Style
	boxChecked, boxUnchecked                    string
}

func stylesFor(theme string) styles {
	s := styles{
		title:    lipgloss.NewStyle().Bold(true),
		success:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		pending:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		accent:   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		muted:    lipgloss.NewStyle().Faint(true),
		err:      lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		selected: lipgloss.NewStyle().Bold(true).Reverse(true),
		done:     lipgloss.NewStyle().Faint(true).Strikethrough(true),
		help:     lipgloss.NewStyle().Faint(true),
		due:      lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		overdue:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		frame: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("8")).
			Padding(0, 1),
		boxChecked:   "☑",
		boxUnchecked: "☐",
	}
	switch theme {
	case "neon":
		s.title = s.title.Foreground(lipgloss.Color("13"))
		s.accent = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
		s.boxChecked, s.boxUnchecked = "◼", "◻"
	case "mono":
		plain := lipgloss.NewStyle()
		s.success, s.pending, s.accent, s.due, s.overdue = plain, plain, plain, plain, plain
		s.err = plain.Bold(true)
		s.frame = s.frame.Border(lipgloss.NormalBorder()).UnsetBorderForeground()
		s.boxChecked, s.boxUnchecked = "[x]", "[ ]"
	}
	return s
}
