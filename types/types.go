package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TierOption is a fixed mint option with its price and artwork.
type TierOption struct {
	Index    int      `json:"index"`
	Name     string   `json:"name"`
	PriceWei *big.Int `json:"priceWei"`
	ImageRef string   `json:"imageRef"`
}

// PriceEther formats the tier price in whole native units.
func (t TierOption) PriceEther() string {
	return WeiToEther(t.PriceWei).String()
}

// DefaultTiers returns the three tiers offered by the TierNFT contract.
func DefaultTiers() []TierOption {
	return []TierOption{
		{Index: 0, Name: "Basic", PriceWei: MustEtherToWei("0.01"), ImageRef: "/nfts/0_basic.svg"},
		{Index: 1, Name: "Medium", PriceWei: MustEtherToWei("0.02"), ImageRef: "/nfts/1_medium.svg"},
		{Index: 2, Name: "Premium", PriceWei: MustEtherToWei("0.05"), ImageRef: "/nfts/2_premium.svg"},
	}
}

var weiPerEther = decimal.New(1, 18)

// EtherToWei converts a decimal amount of native units into wei.
func EtherToWei(amount string) (*big.Int, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", amount, err)
	}
	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative: %s", amount)
	}
	wei := dec.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than 18 decimals", amount)
	}
	return wei.BigInt(), nil
}

// MustEtherToWei is EtherToWei for constants.
func MustEtherToWei(amount string) *big.Int {
	wei, err := EtherToWei(amount)
	if err != nil {
		panic(err)
	}
	return wei
}

// WeiToEther converts wei into a decimal amount of native units.
func WeiToEther(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -18)
}

// ContractReadResult is a snapshot of one cached contract query.
type ContractReadResult[T any] struct {
	Value         T         `json:"value"`
	Present       bool      `json:"present"`
	IsStale       bool      `json:"isStale"`
	LastFetchedAt time.Time `json:"lastFetchedAt"`
}

// MintRequest is created when a user picks a tier and lives until its
// transaction reaches a terminal state.
type MintRequest struct {
	Tier        TierOption `json:"tier"`
	RequestedAt time.Time  `json:"requestedAt"`
}

// Attribute is one key/value trait of a token.
type Attribute struct {
	Key   string `json:"trait_type"`
	Value string `json:"value"`
}

// NFTMetadata is the decoded token metadata document.
type NFTMetadata struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Attribute returns the value of the first attribute named key.
func (m NFTMetadata) Attribute(key string) (string, bool) {
	for _, a := range m.Attributes {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// MintPhase is the state of the mint transaction controller.
type MintPhase int

const (
	PhaseIdle MintPhase = iota
	PhasePreparing
	PhaseSubmitted
	PhaseConfirming
	PhaseConfirmed
	PhaseFailed
)

func (p MintPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePreparing:
		return "preparing"
	case PhaseSubmitted:
		return "submitted"
	case PhaseConfirming:
		return "confirming"
	case PhaseConfirmed:
		return "confirmed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether a mint request is between selection and a
// terminal state.
func (p MintPhase) InFlight() bool {
	return p == PhasePreparing || p == PhaseSubmitted || p == PhaseConfirming
}

// MintOutcome is the terminal result of one mint request.
type MintOutcome struct {
	Request  MintRequest        `json:"request"`
	Tx       *TransactionHandle `json:"tx,omitempty"`
	TokenID  *big.Int           `json:"tokenId,omitempty"`
	Tier     *big.Int           `json:"tier,omitempty"`
	Metadata *NFTMetadata       `json:"metadata,omitempty"`
	Err      error              `json:"-"`
}

// Succeeded reports whether the mint transaction was confirmed.
func (o *MintOutcome) Succeeded() bool {
	return o != nil && o.Err == nil && o.Tx != nil && o.Tx.Status == TxConfirmed
}

// MintEvent is published by the controller on every phase change.
type MintEvent struct {
	Phase   MintPhase    `json:"phase"`
	Request *MintRequest `json:"request,omitempty"`
	TxHash  common.Hash  `json:"txHash"`
	Outcome *MintOutcome `json:"outcome,omitempty"`
	At      time.Time    `json:"at"`
}

// ConnectionStatus is the wallet connection signal.
type ConnectionStatus int

const (
	Disconnected ConnectionStatus = iota
	Connecting
	Connected
)

func (s ConnectionStatus) String() string {
	switch s {
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	default:
		return "disconnected"
	}
}

// UISessionState is the projection rendered by the presentation layer.
type UISessionState struct {
	WalletConnected bool         `json:"walletConnected"`
	Minting         bool         `json:"minting"`
	ModalVisible    bool         `json:"modalVisible"`
	LatestMetadata  *NFTMetadata `json:"latestMetadata,omitempty"`
	Phase           MintPhase    `json:"phase"`
	TxHash          common.Hash  `json:"txHash"`
	Outcome         *MintOutcome `json:"outcome,omitempty"`
	TotalSupply     *big.Int     `json:"totalSupply,omitempty"`
}
