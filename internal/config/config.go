// Package config loads paychat configuration, the network registry, and the model catalog.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all paychat configuration persisted to config.toml.
// The wallet private key is never part of it.
type Config struct {
	Gateway    GatewayConfig    `toml:"gateway"`
	Payment    PaymentConfig    `toml:"payment"`
	Chat       ChatConfig       `toml:"chat"`
	Appearance AppearanceConfig `toml:"appearance"`
	Log        LogConfig        `toml:"log"`
}

// GatewayConfig holds the inference gateway location.
type GatewayConfig struct {
	BaseURL    string `toml:"base_url"`
	TimeoutSec int    `toml:"timeout_sec"`
}

// PaymentConfig holds x402 payment settings.
type PaymentConfig struct {
	ChainID      int64   `toml:"chain_id"`
	MaxSpendUSDC float64 `toml:"max_spend_usdc"`
}

// ChatConfig holds request defaults.
type ChatConfig struct {
	DefaultModel    string `toml:"default_model"`
	MaxOutputTokens int    `toml:"max_output_tokens"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

const (
	DefaultBaseURL         = "http://localhost:8000"
	DefaultTimeoutSec      = 60
	DefaultMaxSpendUSDC    = 1.0
	DefaultModelID         = "gpt-4o-mini"
	DefaultMaxOutputTokens = 1000
)

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Gateway: GatewayConfig{
			BaseURL:    DefaultBaseURL,
			TimeoutSec: DefaultTimeoutSec,
		},
		Payment: PaymentConfig{
			ChainID:      BaseSepolia.ChainID,
			MaxSpendUSDC: DefaultMaxSpendUSDC,
		},
		Chat: ChatConfig{
			DefaultModel:    DefaultModelID,
			MaxOutputTokens: DefaultMaxOutputTokens,
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Dir returns the XDG-compliant config directory.
func Dir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "paychat")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "paychat")
}

// Path returns the full path to the config file.
func Path() string {
	return filepath.Join(Dir(), "config.toml")
}

// Load reads the config file, returning defaults if it doesn't exist.
func Load() (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path())
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Save writes the config to disk.
func Save(cfg Config) error {
	dir := Dir()
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(Path(), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return toml.NewEncoder(f).Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(Path())
	return err == nil
}
