package components

import (
	"strings"

	"github.com/theirongolddev/paychat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Status is what the bottom bar reports.
type Status struct {
	Network string
	Address string // short form; empty when no wallet is connected
	Online  bool
	Checked bool // a health check has completed
	Spent   string
	Sending bool
}

// RenderStatusBar renders the bottom status bar.
func RenderStatusBar(width int, st Status) string {
	t := theme.Active

	base := lipgloss.NewStyle().Background(t.Surface)
	muted := base.Foreground(t.TextMuted)
	dim := base.Foreground(t.TextDim)
	accent := base.Foreground(t.Accent).Bold(true)

	left := dim.Render(" [?]help  [tab]model  [ctrl+d]disconnect  [ctrl+c]quit")

	var health string
	switch {
	case !st.Checked:
		health = dim.Render("● checking")
	case st.Online:
		health = base.Foreground(t.Good).Render("● online")
	default:
		health = base.Foreground(t.Bad).Render("● offline")
	}

	addr := st.Address
	if addr == "" {
		addr = "no wallet"
	}

	right := muted.Render(st.Network) + dim.Render(" │ ") +
		accent.Render(addr) + dim.Render(" │ ") +
		health + dim.Render(" │ ") +
		muted.Render("spent ") + base.Foreground(t.Text).Render(st.Spent)
	if st.Sending {
		right = base.Foreground(t.Pending).Render("paying… ") + right
	}
	right += base.Render(" ")

	padding := width - lipgloss.Width(left) - lipgloss.Width(right)
	if padding < 1 {
		// Drop the key hints before the live state.
		left = ""
		padding = width - lipgloss.Width(right)
		if padding < 0 {
			padding = 0
		}
	}

	return lipgloss.NewStyle().Width(width).Background(t.Surface).
		Render(left + base.Render(strings.Repeat(" ", padding)) + right)
}
