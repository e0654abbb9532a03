package config

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Settings is the resolved runtime configuration. It is built once at startup
// and passed to the components that need it.
type Settings struct {
	APIBaseURL      string
	Network         Network
	MaxSpendUSDC    float64
	RequestTimeout  time.Duration
	DefaultModel    string
	MaxOutputTokens int

	// UnknownChainID is set when the configured chain id was not recognized
	// and the test network was substituted.
	UnknownChainID int64
}

// Environment variables consulted by Resolve. The VITE_ names are accepted
// for compatibility with existing gateway deployments' .env files.
const (
	EnvAPIURL     = "PAYCHAT_API_URL"
	EnvChainID    = "PAYCHAT_CHAIN_ID"
	EnvMaxSpend   = "PAYCHAT_MAX_SPEND"
	EnvTimeout    = "PAYCHAT_TIMEOUT"
	EnvModel      = "PAYCHAT_MODEL"
	EnvPrivateKey = "ETH_PRIVATE_KEY"

	envViteAPIURL  = "VITE_API_URL"
	envViteChainID = "VITE_CHAIN_ID"
)

// Resolve applies environment overrides from getenv to cfg and validates the result.
func Resolve(cfg Config, getenv func(string) string) (Settings, error) {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	first := func(keys ...string) string {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				return v
			}
		}
		return ""
	}

	baseURL := cfg.Gateway.BaseURL
	if v := first(EnvAPIURL, envViteAPIURL); v != "" {
		baseURL = v
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return Settings{}, fmt.Errorf("invalid gateway base url %q", baseURL)
	}

	chainID := cfg.Payment.ChainID
	if v := first(EnvChainID, envViteChainID); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s %q: %w", EnvChainID, v, err)
		}
		chainID = id
	}
	if chainID == 0 {
		chainID = BaseSepolia.ChainID
	}

	maxSpend := cfg.Payment.MaxSpendUSDC
	if v := first(EnvMaxSpend); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s %q: %w", EnvMaxSpend, v, err)
		}
		maxSpend = f
	}
	if math.IsNaN(maxSpend) || math.IsInf(maxSpend, 0) || maxSpend < 0 {
		return Settings{}, fmt.Errorf("max spend must be a non-negative number, got %g", maxSpend)
	}

	timeoutSec := cfg.Gateway.TimeoutSec
	if v := first(EnvTimeout); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Settings{}, fmt.Errorf("invalid %s %q: %w", EnvTimeout, v, err)
		}
		timeoutSec = n
	}
	if timeoutSec < 0 {
		timeoutSec = 0
	}

	model := cfg.Chat.DefaultModel
	if v := first(EnvModel); v != "" {
		model = v
	}
	if model == "" {
		model = DefaultModelID
	}
	m, ok := LookupModel(model)
	if !ok {
		return Settings{}, fmt.Errorf("unknown model %q", model)
	}

	maxTokens := cfg.Chat.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxOutputTokens
	}

	s := Settings{
		APIBaseURL:      baseURL,
		MaxSpendUSDC:    maxSpend,
		RequestTimeout:  time.Duration(timeoutSec) * time.Second,
		DefaultModel:    m.ID,
		MaxOutputTokens: maxTokens,
	}
	network, known := NetworkByChainID(chainID)
	s.Network = network
	if !known {
		s.UnknownChainID = chainID
	}
	return s, nil
}
