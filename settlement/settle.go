// Package settlement waits for submitted transactions to reach a final
// status.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/types"
)

// Chain is the subset of the chain collaborator used to follow a
// transaction.
type Chain interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Options bound the wait. Zero values take the package defaults and the
// network's confirmation depth.
type Options struct {
	Timeout       time.Duration
	MaxBlocks     uint64
	Confirmations int
	PollInterval  time.Duration
}

// Confirmation is the final state of a transaction.
type Confirmation struct {
	Tx      *types.TransactionHandle
	Receipt *ethtypes.Receipt
}

// Waiter follows transactions until they are confirmed, revert, or run out
// of time.
type Waiter struct {
	chain         Chain
	network       types.Network
	timeout       time.Duration
	maxBlocks     uint64
	confirmations int
	pollInterval  time.Duration
	log           logger.Logger
}

func NewWaiter(chain Chain, network types.Network, opts Options, log logger.Logger) *Waiter {
	if opts.Timeout <= 0 {
		opts.Timeout = types.DefaultConfirmationTimeout
	}
	if opts.MaxBlocks == 0 {
		opts.MaxBlocks = types.DefaultConfirmationBlocks
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = types.DefaultPollInterval
	}
	return &Waiter{
		chain:         chain,
		network:       network,
		timeout:       opts.Timeout,
		maxBlocks:     opts.MaxBlocks,
		confirmations: getRequiredConfirmations(network, opts.Confirmations),
		pollInterval:  opts.PollInterval,
		log:           logger.OrNoop(log),
	}
}

// Wait polls for the receipt of tx. It returns once the transaction has the
// required confirmations. A revert, a timeout, or MaxBlocks passing without
// inclusion all return a TransactionFailed error. replay is the call that
// produced tx and is re-executed at the receipt's block to recover the revert
// reason; a zero replay skips that.
func (w *Waiter) Wait(ctx context.Context, tx *types.TransactionHandle, replay ethereum.CallMsg) (*Confirmation, error) {
	settleCtx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	conf := &Confirmation{Tx: tx}
	startBlock, haveStart := w.head(settleCtx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.chain.TransactionReceipt(settleCtx, tx.Hash)
		switch {
		case err == nil && receipt != nil:
			conf.Receipt = receipt
			tx.BlockNumber = receipt.BlockNumber.Uint64()

			if receipt.Status != ethtypes.ReceiptStatusSuccessful {
				tx.Status = types.TxFailed
				tx.Reason = w.revertReason(settleCtx, replay, receipt.BlockNumber)
				w.log.Warn("transaction reverted", map[string]any{
					"hash":   tx.Hash.Hex(),
					"block":  tx.BlockNumber,
					"reason": tx.Reason,
				})
				return conf, types.NewError(types.ErrTransactionFailed, nil, "transaction reverted: %s", tx.Reason)
			}

			head, ok := w.head(settleCtx)
			if ok && head+1 >= tx.BlockNumber+uint64(w.confirmations) {
				tx.Status = types.TxConfirmed
				w.log.Info("transaction confirmed", map[string]any{
					"hash":          tx.Hash.Hex(),
					"block":         tx.BlockNumber,
					"confirmations": w.confirmations,
				})
				return conf, nil
			}

		case err != nil && !errors.Is(err, ethereum.NotFound):
			if settleCtx.Err() == nil {
				w.log.Debug("receipt lookup failed", map[string]any{"hash": tx.Hash.Hex(), "error": err})
			}

		default:
			if !haveStart {
				startBlock, haveStart = w.head(settleCtx)
			} else if head, ok := w.head(settleCtx); ok && head > startBlock+w.maxBlocks {
				return w.fail(conf, nil, "transaction %s not mined within %d blocks", tx.Hash.Hex(), w.maxBlocks)
			}
		}

		select {
		case <-settleCtx.Done():
			if ctx.Err() != nil {
				return w.fail(conf, ctx.Err(), "stopped waiting for transaction %s: %v", tx.Hash.Hex(), ctx.Err())
			}
			return w.fail(conf, settleCtx.Err(), "transaction %s not confirmed within %s", tx.Hash.Hex(), w.timeout)
		case <-ticker.C:
		}
	}
}

func (w *Waiter) fail(conf *Confirmation, cause error, format string, args ...any) (*Confirmation, error) {
	conf.Tx.Status = types.TxFailed
	conf.Tx.Reason = fmt.Sprintf(format, args...)
	w.log.Warn("transaction wait ended", map[string]any{
		"hash":   conf.Tx.Hash.Hex(),
		"reason": conf.Tx.Reason,
	})
	return conf, types.NewError(types.ErrTransactionFailed, cause, "%s", conf.Tx.Reason)
}

func (w *Waiter) head(ctx context.Context) (uint64, bool) {
	h, err := w.chain.HeaderByNumber(ctx, nil)
	if err != nil || h == nil || h.Number == nil {
		return 0, false
	}
	return h.Number.Uint64(), true
}

// revertReason replays the reverted call at its block. Nodes only return
// the reason for calls, not for mined transactions.
func (w *Waiter) revertReason(ctx context.Context, replay ethereum.CallMsg, block *big.Int) string {
	if replay.To == nil {
		return "execution reverted"
	}
	_, err := w.chain.CallContract(ctx, replay, block)
	if reason, ok := contract.RevertReason(err); ok {
		return reason
	}
	return "execution reverted"
}

// RequiredConfirmations is the confirmation depth the waiter enforces.
func (w *Waiter) RequiredConfirmations() int {
	return w.confirmations
}

func getRequiredConfirmations(network types.Network, requested int) int {
	if requested > 0 {
		return requested
	}
	if n := network.Info().RequiredConfirms; n > 0 {
		return n
	}
	return 1
}
