package config

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestResolveDefaults(t *testing.T) {
	s, err := Resolve(DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.APIBaseURL != "http://localhost:8000" {
		t.Fatalf("APIBaseURL = %q, want http://localhost:8000", s.APIBaseURL)
	}
	if s.Network.ChainID != 84532 || !s.Network.Testnet {
		t.Fatalf("Network = %+v, want Base Sepolia", s.Network)
	}
	if s.MaxSpendUSDC != 1.0 {
		t.Fatalf("MaxSpendUSDC = %g, want 1.0", s.MaxSpendUSDC)
	}
	if s.RequestTimeout != 60*time.Second {
		t.Fatalf("RequestTimeout = %s, want 60s", s.RequestTimeout)
	}
	if s.DefaultModel != "gpt-4o-mini" {
		t.Fatalf("DefaultModel = %q, want gpt-4o-mini", s.DefaultModel)
	}
	if s.MaxOutputTokens != 1000 {
		t.Fatalf("MaxOutputTokens = %d, want 1000", s.MaxOutputTokens)
	}
}

func TestResolveEnvOverrides(t *testing.T) {
	s, err := Resolve(DefaultConfig(), envMap(map[string]string{
		EnvAPIURL:   "https://gw.example.com/",
		EnvChainID:  "8453",
		EnvMaxSpend: "0.25",
		EnvTimeout:  "5",
		EnvModel:    "GPT-4o",
	}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.APIBaseURL != "https://gw.example.com" {
		t.Fatalf("APIBaseURL = %q, want trailing slash trimmed", s.APIBaseURL)
	}
	if s.Network.Name != "base" {
		t.Fatalf("Network = %q, want base", s.Network.Name)
	}
	if s.MaxSpendUSDC != 0.25 {
		t.Fatalf("MaxSpendUSDC = %g, want 0.25", s.MaxSpendUSDC)
	}
	if s.RequestTimeout != 5*time.Second {
		t.Fatalf("RequestTimeout = %s, want 5s", s.RequestTimeout)
	}
	if s.DefaultModel != "gpt-4o" {
		t.Fatalf("DefaultModel = %q, want gpt-4o", s.DefaultModel)
	}
}

func TestResolveViteAliases(t *testing.T) {
	s, err := Resolve(DefaultConfig(), envMap(map[string]string{
		"VITE_API_URL":  "http://10.0.0.2:9000",
		"VITE_CHAIN_ID": "8453",
	}))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.APIBaseURL != "http://10.0.0.2:9000" || s.Network.ChainID != 8453 {
		t.Fatalf("got %q on chain %d", s.APIBaseURL, s.Network.ChainID)
	}
}

func TestResolveUnknownChainFallsBackToTestnet(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Payment.ChainID = 1
	s, err := Resolve(cfg, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.Network.ChainID != BaseSepolia.ChainID {
		t.Fatalf("Network.ChainID = %d, want %d", s.Network.ChainID, BaseSepolia.ChainID)
	}
	if s.UnknownChainID != 1 {
		t.Fatalf("UnknownChainID = %d, want 1", s.UnknownChainID)
	}
}

func TestResolveRejectsBadInput(t *testing.T) {
	cases := map[string]map[string]string{
		"url":      {EnvAPIURL: "not a url"},
		"chain":    {EnvChainID: "base"},
		"spend":    {EnvMaxSpend: "lots"},
		"negative": {EnvMaxSpend: "-1"},
		"nan":      {EnvMaxSpend: "NaN"},
		"inf":      {EnvMaxSpend: "Inf"},
		"neg-inf":  {EnvMaxSpend: "-Inf"},
		"timeout":  {EnvTimeout: "1m"},
		"model":    {EnvModel: "llama-3"},
	}
	for name, env := range cases {
		if _, err := Resolve(DefaultConfig(), envMap(env)); err == nil {
			t.Errorf("%s: Resolve returned nil error", name)
		}
	}
}

func TestResolveRejectsNonFiniteConfiguredCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Payment.MaxSpendUSDC = math.Inf(1)
	if _, err := Resolve(cfg, envMap(nil)); err == nil {
		t.Fatal("infinite max_spend_usdc should be rejected")
	}
}

func TestLoadSaveRoundTrip(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if Exists() {
		t.Fatal("config should not exist in a fresh dir")
	}
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if cfg.Gateway.BaseURL != DefaultBaseURL {
		t.Fatalf("missing file should yield defaults, got %q", cfg.Gateway.BaseURL)
	}

	cfg.Payment.ChainID = Base.ChainID
	cfg.Payment.MaxSpendUSDC = 0.1
	cfg.Chat.DefaultModel = "o1-mini"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("config mode = %o, want 600", perm)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Payment.ChainID != Base.ChainID || got.Payment.MaxSpendUSDC != 0.1 || got.Chat.DefaultModel != "o1-mini" {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	if err := os.MkdirAll(filepath.Join(dir, "paychat"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(Path(), []byte("[gateway\nbase_url = "), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail on malformed TOML")
	}
}

func TestNetworkExplorerLinks(t *testing.T) {
	if got := BaseSepolia.TxURL("0xabc"); got != "https://sepolia.basescan.org/tx/0xabc" {
		t.Fatalf("TxURL = %q", got)
	}
	if got := Base.AddressURL("0x1"); got != "https://basescan.org/address/0x1" {
		t.Fatalf("AddressURL = %q", got)
	}
	if got := Base.TxURL(""); got != "" {
		t.Fatalf("TxURL of empty hash = %q, want empty", got)
	}
}
