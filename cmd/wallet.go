package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/wallet"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

var errNoKey = errors.New("no wallet key: set " + config.EnvPrivateKey + ", pass --key-file, or run interactively")

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Show the address derived from the configured key",
	RunE:  runWallet,
}

func init() {
	rootCmd.AddCommand(walletCmd)
}

func runWallet(_ *cobra.Command, _ []string) error {
	_, s, err := loadSettings(os.Stderr)
	if err != nil {
		return err
	}

	var mgr wallet.Manager
	sess, err := connectWallet(&mgr, true)
	if err != nil {
		return err
	}
	defer mgr.Disconnect()

	fmt.Println()
	fmt.Println(cli.RenderTitle("WALLET"))
	fmt.Println()
	fmt.Print(cli.RenderKV("", []cli.KV{
		{Key: "Address", Value: sess.Address()},
		{Key: "Short", Value: sess.ShortAddress()},
		{Key: "Network", Value: s.Network.DisplayName},
		{Key: "Explorer", Value: s.Network.AddressURL(sess.Address())},
	}))
	if s.Network.Testnet {
		fmt.Println()
		fmt.Println("  Test network: fund this address with Base Sepolia USDC from a faucet.")
	}
	fmt.Println()
	return nil
}

// readKey finds key material: the environment first, then --key-file, then
// a masked prompt when interactive is set.
func readKey(interactive bool) (string, error) {
	if k := strings.TrimSpace(os.Getenv(config.EnvPrivateKey)); k != "" {
		return k, nil
	}
	if flagKeyFile != "" {
		//nolint:gosec // key path is configured by the local user
		data, err := os.ReadFile(flagKeyFile)
		if err != nil {
			return "", fmt.Errorf("reading key file: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	if !interactive {
		return "", errNoKey
	}

	var key string
	err := huh.NewInput().
		Title("Wallet private key").
		Description("Hex, with or without 0x. Held in memory for this session only.").
		EchoMode(huh.EchoModePassword).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("key is required")
			}
			return nil
		}).
		Value(&key).
		Run()
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return "", errNoKey
		}
		return "", err
	}
	return key, nil
}

// connectWallet reads key material and makes it the manager's active session.
func connectWallet(mgr *wallet.Manager, interactive bool) (*wallet.Session, error) {
	key, err := readKey(interactive)
	if err != nil {
		return nil, err
	}
	sess, err := mgr.Connect(key)
	if err != nil {
		return nil, err
	}
	return sess, nil
}
