package components

import (
	"strings"

	"github.com/theirongolddev/paychat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

// Tab represents a single tab in the tab bar.
type Tab struct {
	Name string
	Key  string // jump key, shown as F1..F3
}

// Tabs defines all available tabs. The chat tab owns the keyboard for
// typing, so tabs are reached with function keys.
var Tabs = []Tab{
	{Name: "Chat", Key: "f1"},
	{Name: "Models", Key: "f2"},
	{Name: "Ledger", Key: "f3"},
}

// TabVisualWidth returns the rendered width of a tab.
func TabVisualWidth(tab Tab, active bool) int {
	return lipgloss.Width(renderTab(tab, active))
}

func renderTab(tab Tab, active bool) string {
	t := theme.Active
	if active {
		return lipgloss.NewStyle().
			Foreground(t.AccentBright).
			Background(t.Highlight).
			Bold(true).
			Padding(0, 1).
			Render(tab.Name)
	}
	name := lipgloss.NewStyle().
		Foreground(t.TextMuted).
		Background(t.Surface).
		Padding(0, 0, 0, 1).
		Render(tab.Name)
	key := lipgloss.NewStyle().
		Foreground(t.TextDim).
		Background(t.Surface).
		Padding(0, 1, 0, 0).
		Render(" " + strings.ToUpper(tab.Key))
	return name + key
}

// RenderTabBar renders the tab bar with the given active index, padded to width.
func RenderTabBar(activeIdx int, width int) string {
	t := theme.Active
	sep := lipgloss.NewStyle().Foreground(t.Border).Background(t.Surface).Render("│")

	parts := make([]string, 0, len(Tabs))
	for i, tab := range Tabs {
		parts = append(parts, renderTab(tab, i == activeIdx))
	}
	bar := strings.Join(parts, sep)

	return lipgloss.NewStyle().
		Background(t.Surface).
		Width(width).
		Render(bar)
}

// TabIdxByKey returns the tab index for a key press, or -1.
func TabIdxByKey(key string) int {
	for i, tab := range Tabs {
		if tab.Key == key {
			return i
		}
	}
	return -1
}
