package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/tui/components"
	"github.com/theirongolddev/paychat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func (a App) renderLedgerTab(cw int) string {
	t := theme.Active
	if a.ledger == nil {
		return lipgloss.NewStyle().Foreground(t.TextMuted).Render("\n  Ledger disabled for this session.")
	}

	tot := a.totals
	failNote := ""
	if tot.Exchanges > 0 {
		failNote = cli.FormatPercent(float64(tot.Failures) / float64(tot.Exchanges))
	}

	var b strings.Builder
	b.WriteString(components.MetricRow([]components.Metric{
		{Label: "Net spent", Value: cli.FormatCost(tot.Net()), Note: "this session"},
		{Label: "Charged", Value: cli.FormatCost(tot.Charged), Note: fmt.Sprintf("%d paid", tot.Paid)},
		{Label: "Refunded", Value: cli.FormatCost(tot.Refunded)},
		{Label: "Exchanges", Value: cli.FormatNumber(int64(tot.Exchanges)), Note: cli.FormatTokens(tot.Tokens) + " tokens"},
		{Label: "Failures", Value: cli.FormatNumber(int64(tot.Failures)), Note: failNote, Warn: tot.Failures > 0},
	}, cw))
	b.WriteString("\n")

	halves := components.LayoutRow(cw, 2)
	b.WriteString(components.CardRow([]string{
		components.ContentCard("By Model", a.renderByModel(components.CardInnerWidth(halves[0])), halves[0]),
		components.ContentCard("Charges", a.renderCharges(components.CardInnerWidth(halves[1])), halves[1]),
	}))
	b.WriteString("\n")

	b.WriteString(components.ContentCard("Recent", a.renderRecent(components.CardInnerWidth(cw)), cw))
	return b.String()
}

func (a App) renderByModel(w int) string {
	t := theme.Active
	surface := lipgloss.NewStyle().Background(t.Surface)
	muted := surface.Foreground(t.TextMuted)
	row := surface.Foreground(t.Text)

	if len(a.byModel) == 0 {
		return muted.Render("No paid exchanges yet.")
	}

	lines := []string{muted.Render(fmt.Sprintf("%-14s %5s %12s %8s", "Model", "Count", "Net", "Tokens"))}
	for _, m := range a.byModel {
		net := m.Charged - m.Refunded
		if net < 0 {
			net = 0
		}
		line := fmt.Sprintf("%-14s %5d %12s %8s",
			truncStr(m.Model, 14), m.Exchanges, cli.FormatCost(net), cli.FormatTokens(m.Tokens))
		lines = append(lines, row.Render(truncStr(line, w)))
	}
	return strings.Join(lines, "\n")
}

// renderCharges draws a sparkline of net charges, oldest on the left.
func (a App) renderCharges(w int) string {
	t := theme.Active
	muted := lipgloss.NewStyle().Background(t.Surface).Foreground(t.TextMuted)

	values := chargeSeries(a.recent)
	if len(values) == 0 {
		return muted.Render("Nothing charged yet.")
	}
	peak := 0.0
	for _, v := range values {
		if v > peak {
			peak = v
		}
	}
	return components.Sparkline(values, t.Accent, w) + "\n" +
		muted.Render(fmt.Sprintf("%d charges, largest %s", len(values), cli.FormatCost(peak)))
}

// chargeSeries returns net charges of paid exchanges in chronological order.
// recent is newest first.
func chargeSeries(recent []store.Exchange) []float64 {
	var out []float64
	for i := len(recent) - 1; i >= 0; i-- {
		e := recent[i]
		if !e.Paid || e.Status != store.StatusOK {
			continue
		}
		net := e.AmountCharged - e.RefundAmount
		if net < 0 {
			net = 0
		}
		out = append(out, net)
	}
	return out
}

func (a App) renderRecent(w int) string {
	t := theme.Active
	surface := lipgloss.NewStyle().Background(t.Surface)
	muted := surface.Foreground(t.TextMuted)
	row := surface.Foreground(t.Text)
	bad := surface.Foreground(t.Bad)

	if len(a.recent) == 0 {
		return muted.Render("No exchanges recorded.")
	}

	limit := a.contentHeight() - 14
	if limit < 3 {
		limit = 3
	}

	lines := []string{muted.Render(fmt.Sprintf("%-8s %-14s %-6s %12s %s", "Time", "Model", "Status", "Net", "Detail"))}
	for i, e := range a.recent {
		if i >= limit {
			lines = append(lines, muted.Render(fmt.Sprintf("… %d more", len(a.recent)-limit)))
			break
		}
		detail := cli.ShortHash(e.TransactionHash)
		style := row
		if e.Status != store.StatusOK {
			detail = e.Error
			style = bad
		}
		line := fmt.Sprintf("%-8s %-14s %-6s %12s %s",
			e.At.Local().Format("15:04:05"), truncStr(e.Model, 14), e.Status,
			cli.FormatCost(e.AmountCharged-e.RefundAmount), detail)
		lines = append(lines, style.Render(truncStr(line, w)))
	}
	return strings.Join(lines, "\n")
}
