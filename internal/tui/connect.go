package tui

import (
	"strings"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/tui/theme"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

const connectFormWidth = 72

func (a App) formWidth() int {
	if a.width > 0 && a.width-8 < connectFormWidth {
		return a.width - 8
	}
	return connectFormWidth
}

func (a App) newConnectForm() *huh.Form {
	*a.connectKey = ""
	desc := "Paste a hex private key to sign payments for this session.\nIt stays in memory and is discarded on disconnect."
	if a.settings.Network.Testnet {
		desc += "\nThis is a test network; fund the address with test USDC."
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Connect wallet").
				Description(desc).
				Placeholder("0x…").
				EchoMode(huh.EchoModePassword).
				Value(a.connectKey),
		),
	).WithShowHelp(false)
	return form.WithWidth(a.formWidth())
}

// openConnect swaps the main view for the wallet prompt.
func (a App) openConnect() (tea.Model, tea.Cmd) {
	a.connectForm = a.newConnectForm()
	return a, a.connectForm.Init()
}

func (a App) updateConnect(msg tea.Msg) (tea.Model, tea.Cmd) {
	if a.connectForm == nil {
		return a.openConnect()
	}

	form, cmd := a.connectForm.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		a.connectForm = f
	}

	switch a.connectForm.State {
	case huh.StateCompleted:
		if err := a.connectWith(*a.connectKey); err != nil {
			return a.openConnect()
		}
		a.connectForm = nil
		a.layout()
		return a, nil
	case huh.StateAborted:
		return a, tea.Quit
	}
	return a, cmd
}

// connectWith starts a wallet session from key. The key buffer is cleared
// whether or not the key parses.
func (a *App) connectWith(key string) error {
	defer func() { *a.connectKey = "" }()

	s, err := a.wallet.Connect(strings.TrimSpace(key))
	if err != nil {
		a.connectErr = err.Error()
		a.log.Warn("wallet connect failed", "error", err)
		return err
	}
	a.connectErr = ""
	a.log.Info("wallet connected", "address", s.Address(), "network", a.settings.Network.Name)
	return nil
}

func (a App) viewConnect() string {
	t := theme.Active

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.BorderFocus).
		Padding(1, 2)
	titleStyle := lipgloss.NewStyle().Foreground(t.AccentBright).Bold(true)
	mutedStyle := lipgloss.NewStyle().Foreground(t.TextMuted)
	errStyle := lipgloss.NewStyle().Foreground(t.Bad)

	var b strings.Builder
	b.WriteString(titleStyle.Render("◈ paychat"))
	b.WriteString(mutedStyle.Render("  " + a.settings.Network.DisplayName + " · " + a.settings.APIBaseURL))
	b.WriteString("\n\n")
	if a.connectForm != nil {
		b.WriteString(a.connectForm.View())
	}
	if a.connectErr != "" {
		b.WriteString("\n")
		b.WriteString(errStyle.Render("✗ " + a.connectErr))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("The key can also come from " + config.EnvPrivateKey + " or --key-file.  ctrl+c quits."))

	return lipgloss.Place(a.width, a.height, lipgloss.Center, lipgloss.Center, cardStyle.Render(b.String()),
		lipgloss.WithWhitespaceBackground(t.Background))
}
