package config

import "strings"

// Network describes a settlement chain and the USDC deployment used for payment.
type Network struct {
	Name         string // x402 network identifier, e.g. "base-sepolia"
	DisplayName  string
	ChainID      int64
	Testnet      bool
	USDC         string // token contract, the EIP-712 verifying contract
	TokenName    string // EIP-712 domain name
	TokenVersion string // EIP-712 domain version
	Decimals     int
	ExplorerURL  string
}

// BaseSepolia is the default test network.
var BaseSepolia = Network{
	Name:         "base-sepolia",
	DisplayName:  "Base Sepolia",
	ChainID:      84532,
	Testnet:      true,
	USDC:         "0x036CbD53842c5426634e7929541eC2318f3dCF7e",
	TokenName:    "USDC",
	TokenVersion: "2",
	Decimals:     6,
	ExplorerURL:  "https://sepolia.basescan.org",
}

// Base is the main network.
var Base = Network{
	Name:         "base",
	DisplayName:  "Base",
	ChainID:      8453,
	USDC:         "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
	TokenName:    "USD Coin",
	TokenVersion: "2",
	Decimals:     6,
	ExplorerURL:  "https://basescan.org",
}

// Networks lists the supported networks, test network first.
var Networks = []Network{BaseSepolia, Base}

// NetworkByChainID returns the network for a chain id.
// Unknown ids resolve to BaseSepolia with ok=false.
func NetworkByChainID(id int64) (Network, bool) {
	for _, n := range Networks {
		if n.ChainID == id {
			return n, true
		}
	}
	return BaseSepolia, false
}

// TxURL returns the explorer link for a settlement transaction.
func (n Network) TxURL(hash string) string {
	if hash == "" {
		return ""
	}
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + hash
}

// AddressURL returns the explorer link for an account.
func (n Network) AddressURL(addr string) string {
	return strings.TrimRight(n.ExplorerURL, "/") + "/address/" + addr
}
