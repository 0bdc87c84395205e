// Package verification runs the pre-flight checks of a mint request: the
// wallet is connected, can pay for the tier, and the mint call simulates
// cleanly at the current head.
package verification

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/types"
)

// Chain is the subset of the chain collaborator used for simulation.
type Chain interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
}

// Prepared is a mint call that passed every check.
type Prepared struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	Calldata []byte
	Gas      uint64
	Balance  *big.Int
}

// Preparer checks mint requests before they are handed to the wallet.
type Preparer struct {
	chain   Chain
	nft     *contract.TierNFT
	timeout time.Duration
	log     logger.Logger
}

func NewPreparer(chain Chain, nft *contract.TierNFT, timeout time.Duration, log logger.Logger) *Preparer {
	return &Preparer{
		chain:   chain,
		nft:     nft,
		timeout: timeout,
		log:     logger.OrNoop(log),
	}
}

// QuickCheck validates the request without touching the chain.
func (p *Preparer) QuickCheck(wallet clients.Wallet, req types.MintRequest) error {
	if wallet == nil || wallet.Status() != types.Connected {
		return types.NewError(types.ErrPrepareFailed, nil, "please connect your wallet")
	}
	if req.Tier.PriceWei == nil || req.Tier.PriceWei.Sign() < 0 {
		return types.NewError(types.ErrPrepareFailed, nil, "tier %d has no valid price", req.Tier.Index)
	}
	return nil
}

// Prepare runs QuickCheck, then checks the balance and simulates the mint
// call. Every failure is a PrepareFailed error with a user-facing reason.
func (p *Preparer) Prepare(ctx context.Context, wallet clients.Wallet, req types.MintRequest) (*Prepared, error) {
	if err := p.QuickCheck(wallet, req); err != nil {
		return nil, err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	from := wallet.Address()
	to := p.nft.Address()
	value := new(big.Int).Set(req.Tier.PriceWei)

	calldata, err := p.nft.PackMint()
	if err != nil {
		return nil, types.NewError(types.ErrPrepareFailed, err, "failed to encode %s call: %v", p.nft.MintMethod(), err)
	}

	balance, err := p.chain.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, types.NewError(types.ErrPrepareFailed, err, "failed to read balance: %v", err)
	}
	if balance.Cmp(value) < 0 {
		return nil, types.NewError(types.ErrPrepareFailed, nil,
			"insufficient balance: have %s, tier %s costs %s",
			types.WeiToEther(balance), req.Tier.Name, types.WeiToEther(value))
	}

	gas, err := p.chain.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  calldata,
	})
	if err != nil {
		p.log.Warn("mint simulation failed", map[string]any{
			"tier":  req.Tier.Index,
			"from":  from.Hex(),
			"error": err,
		})
		if reason, ok := contract.RevertReason(err); ok {
			return nil, types.NewError(types.ErrPrepareFailed, err, "mint would revert: %s", reason)
		}
		return nil, types.NewError(types.ErrPrepareFailed, err, "gas estimation failed: %v", err)
	}

	p.log.Debug("mint prepared", map[string]any{
		"tier":    req.Tier.Index,
		"value":   value.String(),
		"gas":     gas,
		"balance": balance.String(),
	})

	return &Prepared{
		From:     from,
		To:       to,
		Value:    value,
		Calldata: calldata,
		Gas:      gas,
		Balance:  balance,
	}, nil
}

func (p *Prepared) String() string {
	return fmt.Sprintf("%s -> %s value=%s gas=%d", p.From.Hex(), p.To.Hex(), p.Value, p.Gas)
}
