// Package cmd implements the paychat CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE:  runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(_ *cobra.Command, _ []string) error {
	cfg, s, err := loadSettings(os.Stderr)
	if err != nil {
		return err
	}

	fmt.Printf("  Config file: %s\n", config.Path())
	if config.Exists() {
		fmt.Println("  Status: loaded")
	} else {
		fmt.Println("  Status: using defaults (no config file)")
	}
	fmt.Println()

	fmt.Print(cli.RenderKV("[gateway]", []cli.KV{
		{Key: "Base URL", Value: s.APIBaseURL},
		{Key: "Timeout", Value: timeoutLabel(s.RequestTimeout)},
	}))
	fmt.Println()

	chain := fmt.Sprintf("%d (%s)", s.Network.ChainID, s.Network.DisplayName)
	fmt.Print(cli.RenderKV("[payment]", []cli.KV{
		{Key: "Chain", Value: chain, Warn: s.UnknownChainID != 0},
		{Key: "Max spend", Value: cli.FormatUSDC(s.MaxSpendUSDC)},
	}))
	fmt.Println()

	fmt.Print(cli.RenderKV("[chat]", []cli.KV{
		{Key: "Default model", Value: s.DefaultModel},
		{Key: "Max output tokens", Value: cli.FormatNumber(int64(s.MaxOutputTokens))},
	}))
	fmt.Println()

	fmt.Print(cli.RenderKV("[appearance]", []cli.KV{{Key: "Theme", Value: cfg.Appearance.Theme}}))
	fmt.Println()

	fmt.Print(cli.RenderKV("[log]", []cli.KV{
		{Key: "Level", Value: cfg.Log.Level},
		{Key: "Format", Value: cfg.Log.Format},
	}))
	fmt.Println()

	key := "not set"
	if os.Getenv(config.EnvPrivateKey) != "" {
		key = "set via " + config.EnvPrivateKey
	} else if flagKeyFile != "" {
		key = "from " + flagKeyFile
	}
	fmt.Print(cli.RenderKV("Wallet key", []cli.KV{{Key: "Source", Value: key}}))
	fmt.Println()

	fmt.Println("  Run `paychat setup` to reconfigure.")
	return nil
}
