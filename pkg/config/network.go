package config

import "strings"

// Network is a preset for a supported ledger.
type Network struct {
	Name    string
	ChainID int64
	RPCURL  string
	USDC    string
}

var (
	ArbitrumOne = Network{
		Name:    "mainnet",
		ChainID: 42161,
		RPCURL:  "https://arb1.arbitrum.io/rpc",
		USDC:    "0xaf88d065e77c8cC2239327C5EDb3A432268e5831",
	}
	ArbitrumSepolia = Network{
		Name:    "sepolia",
		ChainID: 421614,
		RPCURL:  "https://sepolia-rollup.arbitrum.io/rpc",
		USDC:    "0x75faf114eafb1BDbe2F0316DF893fd58CE46AA4d",
	}
)

// NetworkFor maps a DOTPAY_NETWORK value to a preset. Unknown values fall back to Sepolia.
func NetworkFor(name string) Network {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "mainnet", "prod", "production":
		return ArbitrumOne
	default:
		return ArbitrumSepolia
	}
}
