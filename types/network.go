package types

import (
	"fmt"
	"strings"
)

// Network represents supported EVM networks
type Network string

const (
	NetworkEthereum      Network = "ethereum"
	NetworkSepolia       Network = "sepolia" // testnet
	NetworkPolygon       Network = "polygon"
	NetworkPolygonAmoy   Network = "polygon-amoy"   // testnet
	NetworkPolygonMumbai Network = "polygon-mumbai" // testnet, deprecated
	NetworkBase          Network = "base"
	NetworkBaseSepolia   Network = "base-sepolia" // testnet
	NetworkLocal         Network = "local"
)

// NetworkInfo holds the static parameters of a network: its chain id, the
// hosts used to build user-facing links, and the confirmation depth at which
// a mined transaction is considered final.
type NetworkInfo struct {
	ChainID          int64
	Symbol           string
	ExplorerHost     string
	MarketplaceHost  string
	MarketplaceChain string
	RequiredConfirms int
	AverageBlockSecs int
}

var networks = map[Network]NetworkInfo{
	NetworkEthereum: {
		ChainID: 1, Symbol: "ETH",
		ExplorerHost: "etherscan.io", MarketplaceHost: "opensea.io", MarketplaceChain: "ethereum",
		RequiredConfirms: 2, AverageBlockSecs: 12,
	},
	NetworkSepolia: {
		ChainID: 11155111, Symbol: "ETH",
		ExplorerHost: "sepolia.etherscan.io", MarketplaceHost: "testnets.opensea.io", MarketplaceChain: "sepolia",
		RequiredConfirms: 1, AverageBlockSecs: 12,
	},
	NetworkPolygon: {
		ChainID: 137, Symbol: "POL",
		ExplorerHost: "polygonscan.com", MarketplaceHost: "opensea.io", MarketplaceChain: "matic",
		RequiredConfirms: 3, AverageBlockSecs: 2,
	},
	NetworkPolygonAmoy: {
		ChainID: 80002, Symbol: "POL",
		ExplorerHost: "amoy.polygonscan.com", MarketplaceHost: "testnets.opensea.io", MarketplaceChain: "amoy",
		RequiredConfirms: 3, AverageBlockSecs: 2,
	},
	NetworkPolygonMumbai: {
		ChainID: 80001, Symbol: "MATIC",
		ExplorerHost: "mumbai.polygonscan.com", MarketplaceHost: "testnets.opensea.io", MarketplaceChain: "mumbai",
		RequiredConfirms: 3, AverageBlockSecs: 2,
	},
	NetworkBase: {
		ChainID: 8453, Symbol: "ETH",
		ExplorerHost: "basescan.org", MarketplaceHost: "opensea.io", MarketplaceChain: "base",
		RequiredConfirms: 1, AverageBlockSecs: 2,
	},
	NetworkBaseSepolia: {
		ChainID: 84532, Symbol: "ETH",
		ExplorerHost: "sepolia.basescan.org", MarketplaceHost: "testnets.opensea.io", MarketplaceChain: "base-sepolia",
		RequiredConfirms: 1, AverageBlockSecs: 2,
	},
	NetworkLocal: {
		ChainID: 1337, Symbol: "ETH",
		ExplorerHost: "localhost", MarketplaceHost: "localhost", MarketplaceChain: "local",
		RequiredConfirms: 1, AverageBlockSecs: 1,
	},
}

// ParseNetwork resolves a network name case-insensitively.
func ParseNetwork(name string) (Network, error) {
	n := Network(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := networks[n]; !ok {
		return "", fmt.Errorf("unsupported network: %s", name)
	}
	return n, nil
}

// Info returns the static parameters of the network. Unknown networks get
// the parameters of NetworkLocal.
func (n Network) Info() NetworkInfo {
	if info, ok := networks[n]; ok {
		return info
	}
	return networks[NetworkLocal]
}

func (n Network) IsSupported() bool {
	_, ok := networks[n]
	return ok
}

func (n Network) IsTestnet() bool {
	switch n {
	case NetworkSepolia, NetworkPolygonAmoy, NetworkPolygonMumbai, NetworkBaseSepolia, NetworkLocal:
		return true
	}
	return false
}

func (n Network) String() string {
	return string(n)
}

// SupportedNetworks lists every network known to the client.
func SupportedNetworks() []Network {
	return []Network{
		NetworkEthereum, NetworkSepolia,
		NetworkPolygon, NetworkPolygonAmoy, NetworkPolygonMumbai,
		NetworkBase, NetworkBaseSepolia,
		NetworkLocal,
	}
}
