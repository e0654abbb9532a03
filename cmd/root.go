package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	flagAPIURL    string
	flagChainID   int64
	flagMaxSpend  float64
	flagModel     string
	flagTimeout   int
	flagKeyFile   string
	flagLogLevel  string
	flagLogFormat string
	flagLogFile   string
	flagQuiet     bool
)

// version is set at build time with -ldflags "-X".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:          "paychat",
	Short:        "Pay-per-request chat over x402",
	Long:         "Chat with an x402 inference gateway, paying each request in USDC from a local wallet.",
	Version:      version,
	SilenceUsage: true,
	RunE:         runTUI,
}

// Execute is the main entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// .env in the working directory, if present; real environment wins.
	_ = godotenv.Load()

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagAPIURL, "api-url", "", "Gateway base URL (overrides config and "+config.EnvAPIURL+")")
	pf.Int64Var(&flagChainID, "chain-id", 0, "Chain ID: 84532 (Base Sepolia) or 8453 (Base)")
	pf.Float64Var(&flagMaxSpend, "max-spend", -1, "Per-request spend cap in USDC")
	pf.StringVarP(&flagModel, "model", "m", "", "Model id")
	pf.IntVar(&flagTimeout, "timeout", -1, "Request timeout in seconds (0 = none)")
	pf.StringVar(&flagKeyFile, "key-file", "", "File containing the wallet private key")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flagLogFormat, "log-format", "", "Log format: text or json")
	pf.StringVar(&flagLogFile, "log-file", "", "Write logs to this file instead of stderr")
	pf.BoolVarP(&flagQuiet, "quiet", "q", false, "Suppress progress output")
}

// loadSettings reads the config file, applies environment and flag
// overrides, and initializes logging. Logs go to w unless --log-file is set.
func loadSettings(w io.Writer) (config.Config, config.Settings, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, config.Settings{}, err
	}

	if flagAPIURL != "" {
		cfg.Gateway.BaseURL = flagAPIURL
	}
	if flagChainID != 0 {
		cfg.Payment.ChainID = flagChainID
	}
	if flagMaxSpend >= 0 {
		cfg.Payment.MaxSpendUSDC = flagMaxSpend
	}
	if flagModel != "" {
		cfg.Chat.DefaultModel = flagModel
	}
	if flagTimeout >= 0 {
		cfg.Gateway.TimeoutSec = flagTimeout
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	if flagLogFormat != "" {
		cfg.Log.Format = flagLogFormat
	}

	if flagLogFile != "" {
		//nolint:gosec // log path is configured by the local user
		f, err := os.OpenFile(flagLogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return cfg, config.Settings{}, fmt.Errorf("open log file: %w", err)
		}
		w = f
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format, w)

	s, err := config.Resolve(cfg, flagPrecedence(os.Getenv))
	if err != nil {
		return cfg, s, err
	}
	if s.UnknownChainID != 0 {
		slog.Warn("unknown chain id, using test network",
			"chain_id", s.UnknownChainID,
			"network", s.Network.Name,
		)
		if !flagQuiet {
			fmt.Fprintf(os.Stderr, "  Warning: unknown chain id %d, using %s\n", s.UnknownChainID, s.Network.DisplayName)
		}
	}
	return cfg, s, nil
}

// flagPrecedence hides environment overrides for settings given as flags.
func flagPrecedence(getenv func(string) string) func(string) string {
	return func(key string) string {
		switch key {
		case config.EnvAPIURL, "VITE_API_URL":
			if flagAPIURL != "" {
				return ""
			}
		case config.EnvChainID, "VITE_CHAIN_ID":
			if flagChainID != 0 {
				return ""
			}
		case config.EnvMaxSpend:
			if flagMaxSpend >= 0 {
				return ""
			}
		case config.EnvModel:
			if flagModel != "" {
				return ""
			}
		case config.EnvTimeout:
			if flagTimeout >= 0 {
				return ""
			}
		}
		return getenv(key)
	}
}
