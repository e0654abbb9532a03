package tui

import (
	"fmt"
	"strings"

	"github.com/theirongolddev/paychat/internal/chat"
	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/tui/components"
	"github.com/theirongolddev/paychat/internal/tui/theme"

	"github.com/charmbracelet/lipgloss"
)

func (a App) renderChatTab(cw int) string {
	t := theme.Active
	st := a.orch.State()

	var b strings.Builder
	b.WriteString(a.view.View())
	b.WriteString("\n")

	if st.LastError != "" {
		errStyle := lipgloss.NewStyle().Foreground(t.Bad).Background(t.Background)
		b.WriteString(errStyle.Render(truncStr("✗ "+st.LastError+"  (esc to dismiss)", cw)))
	} else {
		b.WriteString(a.renderPreview(cw))
	}
	b.WriteString("\n")

	border := t.Border
	if !a.sending {
		border = t.BorderFocus
	}
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border).
		BorderBackground(t.Background).
		Width(cw - 2)
	b.WriteString(box.Render(a.input.View()))

	return b.String()
}

// renderPreview shows the estimated price of the current draft next to the
// per-request spend cap.
func (a App) renderPreview(cw int) string {
	t := theme.Active
	p := a.orch.Preview(a.input.Value())

	muted := lipgloss.NewStyle().Foreground(t.TextMuted).Background(t.Background)
	model := lipgloss.NewStyle().Foreground(t.Accent).Background(t.Background).Bold(true)

	left := model.Render(p.Model.DisplayName) +
		muted.Render(fmt.Sprintf("  ~%s in / %s out  est. %s",
			cli.FormatNumber(int64(p.InputTokens)), cli.FormatNumber(int64(p.OutputTokens)),
			cli.FormatCost(p.TotalCost)))
	if p.ExceedsCap {
		left += lipgloss.NewStyle().Foreground(t.Warn).Background(t.Background).Render("  over cap")
	}

	barW := cw - lipgloss.Width(left) - 2
	if barW < 24 {
		return left
	}
	if barW > 48 {
		barW = 48
	}
	return left + muted.Render("  ") + components.CapBar("cap", p.TotalCost, p.SpendCap, barW)
}

func (a App) renderTranscript(w int) string {
	t := theme.Active
	st := a.orch.State()

	if len(st.Transcript) == 0 && !a.sending {
		dim := lipgloss.NewStyle().Foreground(t.TextDim)
		return "\n" + dim.Render("  No messages yet. Each request is paid in USDC when the gateway asks for it.")
	}

	bodyW := w - 4
	if bodyW < 20 {
		bodyW = 20
	}
	userStyle := lipgloss.NewStyle().Foreground(t.User).Bold(true)
	botStyle := lipgloss.NewStyle().Foreground(t.Good).Bold(true)
	textStyle := lipgloss.NewStyle().Foreground(t.Text).Width(bodyW).PaddingLeft(2)

	var b strings.Builder
	for _, turn := range st.Transcript {
		b.WriteString("\n")
		if turn.Role == chat.RoleUser {
			b.WriteString(userStyle.Render("you"))
		} else {
			b.WriteString(botStyle.Render(turn.Model))
		}
		b.WriteString("\n")
		b.WriteString(textStyle.Render(turn.Content))
		b.WriteString("\n")
		if line := a.receiptLine(turn); line != "" {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	if a.sending {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(t.Pending).Render(a.spinner.View() + " paying and waiting for " + st.Model))
		b.WriteString("\n")
	}
	return b.String()
}

func (a App) receiptLine(turn chat.Turn) string {
	if turn.Role != chat.RoleAssistant {
		return ""
	}
	t := theme.Active
	dim := lipgloss.NewStyle().Foreground(t.TextDim)
	green := lipgloss.NewStyle().Foreground(t.Good)

	var parts []string
	if r := turn.Receipt; r != nil {
		parts = append(parts, "charged "+cli.FormatUSDC(r.AmountCharged))
		if r.RefundAmount > 0 {
			parts = append(parts, green.Render("refund "+cli.FormatUSDC(r.RefundAmount)))
		}
		if r.TransactionHash != "" {
			parts = append(parts, "tx "+cli.ShortHash(r.TransactionHash))
		}
	}
	if u := turn.Usage; u != nil {
		parts = append(parts, fmt.Sprintf("%s tokens (%d in / %d out)",
			cli.FormatTokens(int64(u.TotalTokens)), u.PromptTokens, u.CompletionTokens))
	}
	if len(parts) == 0 {
		return ""
	}
	line := "  " + dim.Render(strings.Join(parts, " · "))
	if r := turn.Receipt; r != nil && r.TransactionHash != "" {
		line += "\n  " + dim.Render(a.settings.Network.TxURL(r.TransactionHash))
	}
	return line
}
