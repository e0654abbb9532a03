package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/tui/components"
	"github.com/theirongolddev/paychat/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// modelIndex returns the catalog position of id, or 0 if unknown.
func modelIndex(id string) int {
	for i, m := range config.Models() {
		if m.ID == id {
			return i
		}
	}
	return 0
}

func (a App) updateModelsKeys(key string) (tea.Model, tea.Cmd) {
	n := len(config.Models())
	switch key {
	case "?":
		a.showHelp = true
	case "j", "down":
		if a.modelCursor < n-1 {
			a.modelCursor++
		}
	case "k", "up":
		if a.modelCursor > 0 {
			a.modelCursor--
		}
	case "g", "home":
		a.modelCursor = 0
	case "G", "end":
		a.modelCursor = n - 1
	case "enter":
		if a.sending {
			return a, nil
		}
		m := config.Models()[a.modelCursor]
		if err := a.orch.SetModel(m.ID); err != nil {
			a.log.Warn("selecting model", "model", m.ID, "error", err)
			return a, nil
		}
		a.activeTab = tabChat
	case "left":
		a.activeTab = tabChat
	case "right":
		a.activeTab = tabLedger
	}
	return a, nil
}

func (a App) renderModelsTab(cw int) string {
	t := theme.Active
	current := a.orch.Model().ID
	maxTokens := a.orch.State().MaxOutputTokens

	innerW := components.CardInnerWidth(cw)
	surface := lipgloss.NewStyle().Background(t.Surface)
	section := surface.Foreground(t.Accent).Bold(true)
	row := surface.Foreground(t.Text)
	muted := surface.Foreground(t.TextMuted)
	selected := lipgloss.NewStyle().Background(t.Highlight).Foreground(t.AccentBright).Bold(true)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", muted.Render(fmt.Sprintf("%-3s %-16s %-18s %-18s %s", "", "Model", "Input", "Output", "Max request")))

	idx := 0
	byCat := config.ModelsByCategory()
	for _, cat := range config.Categories {
		models := byCat[cat]
		if len(models) == 0 {
			continue
		}
		b.WriteString("\n")
		b.WriteString(section.Render(cat))
		b.WriteString("\n")
		for _, m := range models {
			marker := "  "
			if m.ID == current {
				marker = "● "
			}
			worst := float64(maxTokens) / 1000 * m.Pricing.OutputPerKTok
			line := fmt.Sprintf("%-3s %-16s %-18s %-18s %s", marker,
				truncStr(m.DisplayName, 16),
				cli.FormatPrice(m.Pricing.InputPerKTok),
				cli.FormatPrice(m.Pricing.OutputPerKTok),
				cli.FormatCost(worst))
			line = truncStr(line, innerW)
			if idx == a.modelCursor {
				b.WriteString(selected.Render(padRight(line, innerW)))
			} else {
				b.WriteString(row.Render(line))
			}
			b.WriteString("\n")
			idx++
		}
	}
	b.WriteString("\n")
	b.WriteString(muted.Render(fmt.Sprintf("Max request is the output cost of %d tokens. j/k to move, enter to select.", maxTokens)))

	return components.ContentCard("Models", b.String(), cw)
}

func padRight(s string, w int) string {
	if n := lipgloss.Width(s); n < w {
		return s + strings.Repeat(" ", w-n)
	}
	return s
}
