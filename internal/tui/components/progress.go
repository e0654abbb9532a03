package components

import (
	"fmt"

	"github.com/theirongolddev/paychat/internal/tui/theme"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

// ColorForPct returns green/yellow/orange/red based on utilization level.
func ColorForPct(pct float64) string {
	t := theme.Active
	switch {
	case pct >= 0.9:
		return string(t.Bad)
	case pct >= 0.7:
		return string(t.Warn)
	case pct >= 0.5:
		return string(t.Pending)
	default:
		return string(t.Good)
	}
}

// CapBar renders how much of a spend cap an amount would use.
// Amounts over the cap render a full red bar.
func CapBar(label string, amount, limit float64, width int) string {
	t := theme.Active

	pct := 1.0
	if limit > 0 {
		pct = amount / limit
	}
	if pct < 0 {
		pct = 0
	}
	shown := pct
	if shown > 1 {
		shown = 1
	}

	barW := width - lipgloss.Width(label) - 7
	if barW < 4 {
		barW = 4
	}

	bar := progress.New(
		progress.WithSolidFill(ColorForPct(pct)),
		progress.WithWidth(barW),
		progress.WithoutPercentage(),
	)
	bar.EmptyColor = string(t.TextDim)

	labelStyle := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Surface)
	pctStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(ColorForPct(pct))).Background(t.Surface).Bold(true)
	spaceStyle := lipgloss.NewStyle().Background(t.Surface)

	pctStr := fmt.Sprintf("%3.0f%%", pct*100)
	if pct > 9.99 {
		pctStr = ">999%"
	}
	return labelStyle.Render(label) +
		spaceStyle.Render(" ") +
		bar.ViewAs(shown) +
		spaceStyle.Render(" ") +
		pctStyle.Render(pctStr)
}
