package tui

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/theirongolddev/paychat/internal/cli"
	"github.com/theirongolddev/paychat/internal/config"
	"github.com/theirongolddev/paychat/internal/tui/theme"

	"github.com/charmbracelet/huh"
)

// SetupValues holds the first-run wizard answers. Numbers are kept as text
// so the form can validate them in place.
type SetupValues struct {
	BaseURL   string
	ChainID   int64
	MaxSpend  string
	Model     string
	MaxTokens string
	Theme     string
}

// SetupValuesFrom seeds the wizard from an existing config.
func SetupValuesFrom(cfg config.Config) SetupValues {
	chain := cfg.Payment.ChainID
	if _, ok := config.NetworkByChainID(chain); !ok {
		chain = config.BaseSepolia.ChainID
	}
	return SetupValues{
		BaseURL:   cfg.Gateway.BaseURL,
		ChainID:   chain,
		MaxSpend:  strconv.FormatFloat(cfg.Payment.MaxSpendUSDC, 'f', -1, 64),
		Model:     cfg.Chat.DefaultModel,
		MaxTokens: strconv.Itoa(cfg.Chat.MaxOutputTokens),
		Theme:     cfg.Appearance.Theme,
	}
}

// NewSetupForm builds the configuration wizard bound to vals.
func NewSetupForm(vals *SetupValues) *huh.Form {
	networkOpts := make([]huh.Option[int64], 0, len(config.Networks))
	for _, n := range config.Networks {
		networkOpts = append(networkOpts, huh.NewOption(fmt.Sprintf("%s (%d)", n.DisplayName, n.ChainID), n.ChainID))
	}

	modelOpts := make([]huh.Option[string], 0)
	for _, m := range config.Models() {
		label := fmt.Sprintf("%-14s %s in / %s out", m.DisplayName,
			cli.FormatPrice(m.Pricing.InputPerKTok), cli.FormatPrice(m.Pricing.OutputPerKTok))
		modelOpts = append(modelOpts, huh.NewOption(label, m.ID))
	}

	themeOpts := make([]huh.Option[string], 0, len(theme.All))
	for _, t := range theme.All {
		themeOpts = append(themeOpts, huh.NewOption(t.Name, t.Name))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Welcome to paychat").
				Description("Requests are paid per call in USDC through x402.\nYour private key is never saved; it is read from "+config.EnvPrivateKey+" or entered per session."),
			huh.NewInput().
				Title("Gateway URL").
				Value(&vals.BaseURL).
				Validate(validateURL),
			huh.NewSelect[int64]().
				Title("Network").
				Options(networkOpts...).
				Value(&vals.ChainID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Spend cap per request (USDC)").
				Value(&vals.MaxSpend).
				Validate(validateNonNegative),
			huh.NewSelect[string]().
				Title("Default model").
				Options(modelOpts...).
				Value(&vals.Model),
			huh.NewInput().
				Title("Max output tokens").
				Value(&vals.MaxTokens).
				Validate(validatePositiveInt),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Color theme").
				Options(themeOpts...).
				Value(&vals.Theme),
		),
	)
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("enter a full URL, e.g. http://localhost:8000")
	}
	return nil
}

func validateNonNegative(s string) error {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f < 0 {
		return errors.New("enter a non-negative number")
	}
	return nil
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return errors.New("enter a positive whole number")
	}
	return nil
}

// Apply copies the wizard answers into cfg.
func (v SetupValues) Apply(cfg *config.Config) {
	cfg.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(v.BaseURL), "/")
	cfg.Payment.ChainID = v.ChainID
	if f, err := strconv.ParseFloat(strings.TrimSpace(v.MaxSpend), 64); err == nil && f >= 0 {
		cfg.Payment.MaxSpendUSDC = f
	}
	if _, ok := config.LookupModel(v.Model); ok {
		cfg.Chat.DefaultModel = v.Model
	}
	if n, err := strconv.Atoi(strings.TrimSpace(v.MaxTokens)); err == nil && n > 0 {
		cfg.Chat.MaxOutputTokens = n
	}
	if v.Theme != "" {
		cfg.Appearance.Theme = v.Theme
	}
}

// SaveSetup applies vals to the on-disk config and activates the chosen theme.
func SaveSetup(vals SetupValues) (config.Config, error) {
	cfg, _ := config.Load()
	vals.Apply(&cfg)
	theme.SetActive(cfg.Appearance.Theme)
	return cfg, config.Save(cfg)
}
