// Package contract binds the TierNFT ERC-721 contract: it packs and unpacks
// the calls the client makes and classifies their failures.
package contract

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Caller executes read-only contract calls. *ethclient.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// TierNFT is a binding to one deployed TierNFT contract.
type TierNFT struct {
	address    common.Address
	abi        abi.ABI
	caller     Caller
	mintMethod string
}

// NewTierNFT binds the contract at address. mintMethod selects the payable
// entrypoint, "mint" or "safeMint".
func NewTierNFT(address common.Address, caller Caller, mintMethod string) (*TierNFT, error) {
	parsed, err := ParsedABI()
	if err != nil {
		return nil, err
	}
	if mintMethod == "" {
		mintMethod = "mint"
	}
	m, ok := parsed.Methods[mintMethod]
	if !ok || !m.IsPayable() {
		return nil, fmt.Errorf("contract: %q is not a payable mint entrypoint", mintMethod)
	}
	return &TierNFT{
		address:    address,
		abi:        parsed,
		caller:     caller,
		mintMethod: mintMethod,
	}, nil
}

// ParsedABI parses TierNFTABI.
func ParsedABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(TierNFTABI))
}

func (t *TierNFT) Address() common.Address { return t.address }

func (t *TierNFT) MintMethod() string { return t.mintMethod }

func (t *TierNFT) TotalSupply(ctx context.Context) (*big.Int, error) {
	out, err := t.call(ctx, "totalSupply")
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (t *TierNFT) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := t.call(ctx, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// TokenTier returns the tier index recorded for a minted token.
func (t *TierNFT) TokenTier(ctx context.Context, tokenID *big.Int) (*big.Int, error) {
	out, err := t.call(ctx, "tokenTier", tokenID)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

func (t *TierNFT) Name(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "name")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

func (t *TierNFT) Symbol(ctx context.Context) (string, error) {
	out, err := t.call(ctx, "symbol")
	if err != nil {
		return "", err
	}
	return *abi.ConvertType(out[0], new(string)).(*string), nil
}

// PackMint returns the calldata of the configured mint entrypoint.
func (t *TierNFT) PackMint() ([]byte, error) {
	return t.abi.Pack(t.mintMethod)
}

// MintedTokenID finds the ERC-721 Transfer from the zero address emitted by
// this contract in logs. When to is non-zero the recipient must match.
func (t *TierNFT) MintedTokenID(logs []*ethtypes.Log, to common.Address) (*big.Int, bool) {
	transfer := t.abi.Events["Transfer"]
	for _, l := range logs {
		if l == nil || l.Address != t.address || len(l.Topics) != 4 || l.Topics[0] != transfer.ID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != (common.Address{}) {
			continue
		}
		if to != (common.Address{}) && common.BytesToAddress(l.Topics[2].Bytes()) != to {
			continue
		}
		return new(big.Int).SetBytes(l.Topics[3].Bytes()), true
	}
	return nil, false
}

func (t *TierNFT) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("contract: pack %s: %w", method, err)
	}

	res, err := t.caller.CallContract(ctx, ethereum.CallMsg{To: &t.address, Data: data}, nil)
	if err != nil {
		return nil, classifyCallError(method, err)
	}

	out, err := t.abi.Unpack(method, res)
	if err != nil {
		// an empty result from a contract without the method decodes here
		return nil, classifyCallError(method, fmt.Errorf("unpack %s: %w", method, err))
	}
	if len(out) == 0 {
		return nil, classifyCallError(method, fmt.Errorf("%s returned no values", method))
	}
	return out, nil
}
