package session

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tiermint/types"
)

// Links builds the explorer and marketplace URLs shown after a mint.
type Links struct {
	ExplorerHost     string
	MarketplaceHost  string
	MarketplaceChain string
	Contract         common.Address
}

// NewLinks uses the network's hosts unless explorerHost or marketplaceHost
// override them.
func NewLinks(network types.Network, contract common.Address, explorerHost, marketplaceHost string) Links {
	info := network.Info()
	if explorerHost == "" {
		explorerHost = info.ExplorerHost
	}
	if marketplaceHost == "" {
		marketplaceHost = info.MarketplaceHost
	}
	return Links{
		ExplorerHost:     explorerHost,
		MarketplaceHost:  marketplaceHost,
		MarketplaceChain: info.MarketplaceChain,
		Contract:         contract,
	}
}

// Tx returns https://<explorer>/tx/<hash>.
func (l Links) Tx(hash common.Hash) string {
	if l.ExplorerHost == "" || hash == (common.Hash{}) {
		return ""
	}
	return fmt.Sprintf("https://%s/tx/%s", trimHost(l.ExplorerHost), hash.Hex())
}

// Asset returns https://<marketplace>/assets/<chain>/<contract>/<tokenId>.
func (l Links) Asset(tokenID *big.Int) string {
	if l.MarketplaceHost == "" || tokenID == nil {
		return ""
	}
	return fmt.Sprintf("https://%s/assets/%s/%s/%s",
		trimHost(l.MarketplaceHost), l.MarketplaceChain, l.Contract.Hex(), tokenID.String())
}

func trimHost(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimSuffix(host, "/")
}
