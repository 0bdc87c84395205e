package types

import (
	"fmt"
	"time"
)

// TierConfig overrides one tier; Price is in whole native units.
type TierConfig struct {
	Name     string `json:"name" mapstructure:"name" validate:"required"`
	Price    string `json:"price" mapstructure:"price" validate:"required,amount"`
	ImageRef string `json:"imageRef" mapstructure:"image_ref"`
}

// Config contains the configuration of a tiermint client
type Config struct {
	Network         Network `json:"network" mapstructure:"network" validate:"required,network"`
	RPCUrl          string  `json:"rpcUrl" mapstructure:"rpc_url" validate:"required,url"`
	WSUrl           string  `json:"wsUrl,omitempty" mapstructure:"ws_url" validate:"omitempty,url"`
	ContractAddress string  `json:"contractAddress" mapstructure:"contract_address" validate:"required,eth_addr"`

	// MintFunction is the payable entrypoint: "mint" or "safeMint".
	MintFunction string `json:"mintFunction" mapstructure:"mint_function" validate:"omitempty,oneof=mint safeMint"`

	PrivateKey string `json:"-" mapstructure:"private_key"`

	Tiers []TierConfig `json:"tiers,omitempty" mapstructure:"tiers" validate:"omitempty,dive"`

	// ConfirmationTimeout bounds the wall-clock wait for a receipt.
	ConfirmationTimeout time.Duration `json:"confirmationTimeout,omitempty" mapstructure:"confirmation_timeout"`
	// ConfirmationBlocks bounds the wait in blocks after submission.
	ConfirmationBlocks uint64 `json:"confirmationBlocks,omitempty" mapstructure:"confirmation_blocks"`
	// Confirmations overrides the network's required confirmation depth.
	Confirmations int           `json:"confirmations,omitempty" mapstructure:"confirmations" validate:"gte=0"`
	PollInterval  time.Duration `json:"pollInterval,omitempty" mapstructure:"poll_interval"`

	ExplorerHost    string `json:"explorerHost,omitempty" mapstructure:"explorer_host" validate:"omitempty,hostname_rfc1123"`
	MarketplaceHost string `json:"marketplaceHost,omitempty" mapstructure:"marketplace_host" validate:"omitempty,hostname_rfc1123"`

	LogLevel      string `json:"logLevel,omitempty" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn error"`
	EnableMetrics bool   `json:"enableMetrics,omitempty" mapstructure:"enable_metrics"`
}

const (
	DefaultMintFunction        = "mint"
	DefaultConfirmationTimeout = 5 * time.Minute
	DefaultConfirmationBlocks  = 50
	DefaultPollInterval        = 2 * time.Second
)

// WithDefaults returns a copy of the config with unset fields defaulted.
func (c Config) WithDefaults() Config {
	if c.MintFunction == "" {
		c.MintFunction = DefaultMintFunction
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = DefaultConfirmationTimeout
	}
	if c.ConfirmationBlocks == 0 {
		c.ConfirmationBlocks = DefaultConfirmationBlocks
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	info := c.Network.Info()
	if c.Confirmations == 0 {
		c.Confirmations = info.RequiredConfirms
	}
	if c.ExplorerHost == "" {
		c.ExplorerHost = info.ExplorerHost
	}
	if c.MarketplaceHost == "" {
		c.MarketplaceHost = info.MarketplaceHost
	}
	return c
}

// TierOptions resolves the configured tiers, falling back to DefaultTiers.
func (c Config) TierOptions() ([]TierOption, error) {
	if len(c.Tiers) == 0 {
		return DefaultTiers(), nil
	}
	tiers := make([]TierOption, 0, len(c.Tiers))
	for i, t := range c.Tiers {
		wei, err := EtherToWei(t.Price)
		if err != nil {
			return nil, &MintError{
				Code:    ErrConfigError,
				Message: fmt.Sprintf("tier %d: %v", i, err),
				Err:     err,
			}
		}
		tiers = append(tiers, TierOption{Index: i, Name: t.Name, PriceWei: wei, ImageRef: t.ImageRef})
	}
	return tiers, nil
}
