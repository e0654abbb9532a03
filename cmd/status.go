package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/wallet"
	"github.com/theirongolddev/paychat/internal/x402"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway health, network, spend cap and wallet",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(_ *cobra.Command, _ []string) error {
	_, s, err := loadSettings(os.Stderr)
	if err != nil {
		return err
	}

	if !flagQuiet {
		fmt.Fprintf(os.Stderr, "  Checking %s...\n", s.APIBaseURL)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	up := x402.NewClient(s).Health(ctx)

	health := lipgloss.NewStyle().Foreground(cli.ColorGreen).Bold(true).Render("online")
	if !up {
		health = lipgloss.NewStyle().Foreground(cli.ColorRed).Bold(true).Render("offline")
	}

	fmt.Println()
	fmt.Println(cli.RenderTitle("PAYCHAT STATUS"))
	fmt.Println()
	fmt.Print(cli.RenderKV("Gateway", []cli.KV{
		{Key: "URL", Value: s.APIBaseURL},
		{Key: "Health", Value: health},
		{Key: "Timeout", Value: timeoutLabel(s.RequestTimeout)},
	}))
	fmt.Println()

	network := s.Network.DisplayName
	if s.Network.Testnet {
		network += " (testnet)"
	}
	fmt.Print(cli.RenderKV("Payment", []cli.KV{
		{Key: "Network", Value: network},
		{Key: "Chain ID", Value: fmt.Sprintf("%d", s.Network.ChainID)},
		{Key: "USDC", Value: s.Network.USDC},
		{Key: "Spend cap", Value: cli.FormatUSDC(s.MaxSpendUSDC) + " per request"},
		{Key: "Model", Value: s.DefaultModel},
	}))
	fmt.Println()

	var mgr wallet.Manager
	sess, err := connectWallet(&mgr, false)
	switch {
	case err == nil:
		fmt.Print(cli.RenderKV("Wallet", []cli.KV{
			{Key: "Address", Value: sess.Address()},
			{Key: "Explorer", Value: s.Network.AddressURL(sess.Address())},
		}))
		mgr.Disconnect()
	case errors.Is(err, errNoKey):
		fmt.Print(cli.RenderKV("Wallet", []cli.KV{{Key: "Address", Value: "not connected", Warn: true}}))
	default:
		fmt.Print(cli.RenderKV("Wallet", []cli.KV{{Key: "Error", Value: err.Error(), Warn: true}}))
	}
	fmt.Println()
	return nil
}

func timeoutLabel(d time.Duration) string {
	if d <= 0 {
		return "none"
	}
	return cli.FormatDuration(int64(d.Seconds()))
}
