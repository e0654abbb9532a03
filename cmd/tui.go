package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/store"
	"github.com/theirongolddev/paychat/internal/tui"
	"github.com/theirongolddev/paychat/internal/tui/theme"
	"github.com/theirongolddev/paychat/internal/wallet"
	"github.com/theirongolddev/paychat/internal/x402"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive chat (default)",
	RunE:  runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(_ *cobra.Command, _ []string) error {
	// The alt screen owns the terminal, so logs only go to --log-file.
	cfg, s, err := loadSettings(io.Discard)
	if err != nil {
		return err
	}
	theme.SetActive(cfg.Appearance.Theme)

	// Force TrueColor profile so all background styling produces ANSI codes
	// Without this, lipgloss may default to Ascii profile (no colors)
	lipgloss.SetColorProfile(termenv.TrueColor)

	// A key from the environment or --key-file skips the connect screen.
	mgr := &wallet.Manager{}
	if _, err := connectWallet(mgr, false); err != nil && !errors.Is(err, errNoKey) {
		return err
	}
	defer mgr.Disconnect()

	ledger, err := store.Open()
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	app := tui.NewApp(tui.Options{
		Config:    cfg,
		Settings:  s,
		Gateway:   x402.NewClient(s),
		Wallet:    mgr,
		Ledger:    ledger,
		NeedSetup: !config.Exists(),
	})
	p := tea.NewProgram(app, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}
