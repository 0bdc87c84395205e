// Package mint drives a mint request through its lifecycle:
//
//	Idle -> Preparing -> Submitted -> Confirming -> Confirmed | Failed -> Idle
//
// Only one request is in flight at a time. A confirmed mint refreshes the
// total supply first and then the token URI of the token it created, so the
// decoded metadata always belongs to the new token.
package mint

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vitwit/tiermint/cache"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/metadata"
	"github.com/vitwit/tiermint/metrics"
	"github.com/vitwit/tiermint/settlement"
	"github.com/vitwit/tiermint/types"
	"github.com/vitwit/tiermint/verification"
)

// Deps are the collaborators of a Controller. Logger and Metrics may be nil.
type Deps struct {
	Wallet   clients.Wallet
	NFT      *contract.TierNFT
	Cache    *cache.ReadCache
	Preparer *verification.Preparer
	Waiter   *settlement.Waiter
	Tiers    []types.TierOption
	Network  types.Network
	Logger   logger.Logger
	Metrics  metrics.Recorder
}

type Controller struct {
	mu       sync.Mutex
	phase    types.MintPhase
	current  *types.MintRequest
	txHash   common.Hash
	last     *types.MintOutcome
	metadata *types.NFTMetadata

	listeners map[int]func(types.MintEvent)
	nextID    int

	wallet   clients.Wallet
	nft      *contract.TierNFT
	cache    *cache.ReadCache
	preparer *verification.Preparer
	waiter   *settlement.Waiter
	tiers    []types.TierOption
	network  types.Network
	log      logger.Logger
	metrics  metrics.Recorder
}

func NewController(d Deps) (*Controller, error) {
	switch {
	case d.Wallet == nil:
		return nil, fmt.Errorf("mint: wallet is required")
	case d.NFT == nil:
		return nil, fmt.Errorf("mint: contract binding is required")
	case d.Cache == nil:
		return nil, fmt.Errorf("mint: read cache is required")
	case d.Preparer == nil:
		return nil, fmt.Errorf("mint: preparer is required")
	case d.Waiter == nil:
		return nil, fmt.Errorf("mint: waiter is required")
	}
	tiers := d.Tiers
	if len(tiers) == 0 {
		tiers = types.DefaultTiers()
	}

	return &Controller{
		listeners: make(map[int]func(types.MintEvent)),
		wallet:    d.Wallet,
		nft:       d.NFT,
		cache:     d.Cache,
		preparer:  d.Preparer,
		waiter:    d.Waiter,
		tiers:     tiers,
		network:   d.Network,
		log:       logger.OrNoop(d.Logger).With(map[string]any{"component": "mint"}),
		metrics:   metrics.OrNoop(d.Metrics),
	}, nil
}

// Tiers returns the selectable tiers.
func (c *Controller) Tiers() []types.TierOption {
	out := make([]types.TierOption, len(c.tiers))
	copy(out, c.tiers)
	return out
}

func (c *Controller) Phase() types.MintPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// LastOutcome returns the result of the most recent finished request.
func (c *Controller) LastOutcome() *types.MintOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

// LatestMetadata returns the metadata of the last successfully decoded
// mint. A failed decode never clears it.
func (c *Controller) LatestMetadata() *types.NFTMetadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// Subscribe registers fn for every phase change. Events of one request are
// delivered in order on the goroutine running it.
func (c *Controller) Subscribe(fn func(types.MintEvent)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Mint runs a request for tier to completion. While another request is in
// flight it returns AlreadyMinting and leaves that request untouched.
func (c *Controller) Mint(ctx context.Context, tier int) (*types.MintOutcome, error) {
	req, err := c.begin(tier)
	if err != nil {
		return nil, err
	}
	outcome := c.run(ctx, req)
	return outcome, outcome.Err
}

// Start is Mint in the background. The guard runs synchronously, so an
// AlreadyMinting rejection is returned here; the outcome is delivered on the
// channel.
func (c *Controller) Start(ctx context.Context, tier int) (<-chan *types.MintOutcome, error) {
	req, err := c.begin(tier)
	if err != nil {
		return nil, err
	}
	out := make(chan *types.MintOutcome, 1)
	go func() {
		defer close(out)
		out <- c.run(ctx, req)
	}()
	return out, nil
}

func (c *Controller) begin(tier int) (types.MintRequest, error) {
	if tier < 0 || tier >= len(c.tiers) {
		return types.MintRequest{}, types.NewError(types.ErrPrepareFailed, nil, "unknown tier %d", tier)
	}
	if c.wallet.Status() != types.Connected {
		c.metrics.IncCounter(metrics.MintTransitions, c.labels("rejected"))
		return types.MintRequest{}, types.NewError(types.ErrPrepareFailed, nil, "please connect your wallet")
	}
	req := types.MintRequest{Tier: c.tiers[tier], RequestedAt: time.Now()}

	c.mu.Lock()
	if c.phase != types.PhaseIdle {
		phase := c.phase
		c.mu.Unlock()
		c.metrics.IncCounter(metrics.MintTransitions, c.labels("rejected"))
		c.log.Info("mint rejected, another request is in flight", map[string]any{
			"tier":  tier,
			"phase": phase.String(),
		})
		return types.MintRequest{}, types.NewError(types.ErrAlreadyMinting, nil, "a mint is already %s", phase)
	}
	c.phase = types.PhasePreparing
	c.current = &req
	c.txHash = common.Hash{}
	c.mu.Unlock()

	c.emit(types.PhasePreparing, &req, common.Hash{}, nil)
	return req, nil
}

// run drives req from Preparing. Every exit passes through finish, which
// returns the controller to Idle.
func (c *Controller) run(ctx context.Context, req types.MintRequest) (outcome *types.MintOutcome) {
	outcome = &types.MintOutcome{Request: req}
	defer func() { c.finish(outcome) }()

	prepared, err := c.preparer.Prepare(ctx, c.wallet, req)
	if err != nil {
		outcome.Err = err
		return outcome
	}

	tx, err := c.wallet.SignAndSend(ctx, prepared.To, prepared.Value, prepared.Calldata)
	if err != nil {
		outcome.Err = asPrepareError(err)
		return outcome
	}
	outcome.Tx = tx
	submittedAt := time.Now()
	c.transition(types.PhaseSubmitted, &req, tx.Hash, nil)
	c.transition(types.PhaseConfirming, &req, tx.Hash, nil)

	replay := ethereum.CallMsg{
		From:  prepared.From,
		To:    &prepared.To,
		Value: prepared.Value,
		Data:  prepared.Calldata,
	}
	conf, err := c.waiter.Wait(ctx, tx, replay)
	if err != nil {
		// a failed mint leaves the cache untouched
		outcome.Err = err
		c.transition(types.PhaseFailed, &req, tx.Hash, outcome)
		return outcome
	}

	c.metrics.ObserveLatency(metrics.MintLatency, time.Since(submittedAt), c.labels(""))
	c.transition(types.PhaseConfirmed, &req, tx.Hash, outcome)

	c.refreshAfterConfirm(ctx, conf, outcome)
	return outcome
}

// refreshAfterConfirm runs strictly after the confirmation was observed.
// Read and decode failures are logged and never fail the mint.
func (c *Controller) refreshAfterConfirm(ctx context.Context, conf *settlement.Confirmation, outcome *types.MintOutcome) {
	prev := cache.As[*big.Int](c.cache.Peek(cache.TotalSupply()))

	c.cache.Invalidate(cache.TotalSupply())
	res, err := c.cache.Refresh(ctx, cache.TotalSupply())
	supply := cache.As[*big.Int](res)
	if err != nil {
		c.log.Warn("total supply refresh failed after mint", map[string]any{"error": err})
	} else if prev.Present && supply.Present && new(big.Int).Sub(supply.Value, prev.Value).Cmp(big.NewInt(1)) != 0 {
		c.log.Info("total supply moved by more than this mint", map[string]any{
			"before": prev.Value.String(),
			"after":  supply.Value.String(),
		})
	}

	tokenID, ok := c.nft.MintedTokenID(conf.Receipt.Logs, c.wallet.Address())
	if !ok {
		if !supply.Present {
			c.log.Warn("cannot determine minted token id", map[string]any{"tx": conf.Tx.Hash.Hex()})
			return
		}
		tokenID = new(big.Int).Set(supply.Value)
		c.log.Debug("no Transfer log in receipt, using total supply as token id", map[string]any{
			"tokenId": tokenID.String(),
		})
	}
	outcome.TokenID = tokenID

	q := cache.TokenURI(tokenID)
	c.cache.Invalidate(q)
	uriRes, err := c.cache.Refresh(ctx, q)
	uri := cache.As[string](uriRes)
	if err != nil || !uri.Present {
		c.log.Warn("token URI refresh failed after mint", map[string]any{
			"tokenId": tokenID.String(),
			"error":   err,
		})
	} else if meta, err := metadata.Decode(uri.Value); err != nil {
		c.metrics.IncCounter(metrics.DecodeFailures, c.labels("error"))
		c.log.Warn("keeping previous metadata, token URI did not decode", map[string]any{
			"tokenId": tokenID.String(),
			"error":   err,
		})
	} else {
		outcome.Metadata = &meta
		c.mu.Lock()
		c.metadata = &meta
		c.mu.Unlock()
	}

	tier, err := c.nft.TokenTier(ctx, tokenID)
	if err != nil {
		c.log.Debug("tokenTier read failed", map[string]any{"tokenId": tokenID.String(), "error": err})
		return
	}
	outcome.Tier = tier
}

// finish records the outcome and returns to Idle.
func (c *Controller) finish(outcome *types.MintOutcome) {
	c.mu.Lock()
	req := c.current
	hash := c.txHash
	c.phase = types.PhaseIdle
	c.current = nil
	c.last = outcome
	c.mu.Unlock()

	fields := map[string]any{"tier": outcome.Request.Tier.Index}
	if outcome.Tx != nil {
		fields["tx"] = outcome.Tx.Hash.Hex()
	}
	if outcome.TokenID != nil {
		fields["tokenId"] = outcome.TokenID.String()
	}
	if outcome.Err != nil {
		fields["error"] = outcome.Err
		fields["code"] = types.Code(outcome.Err)
		c.log.Warn("mint finished with error", fields)
	} else {
		c.log.Info("mint finished", fields)
	}

	c.metrics.IncCounter(metrics.MintTransitions, c.labels(types.PhaseIdle.String()))
	c.emit(types.PhaseIdle, req, hash, outcome)
}

func (c *Controller) transition(phase types.MintPhase, req *types.MintRequest, hash common.Hash, outcome *types.MintOutcome) {
	c.mu.Lock()
	c.phase = phase
	c.txHash = hash
	c.mu.Unlock()

	c.log.Info("mint phase changed", map[string]any{
		"phase": phase.String(),
		"tier":  req.Tier.Index,
		"tx":    hash.Hex(),
	})
	c.metrics.IncCounter(metrics.MintTransitions, c.labels(phase.String()))
	c.emit(phase, req, hash, outcome)
}

func (c *Controller) emit(phase types.MintPhase, req *types.MintRequest, hash common.Hash, outcome *types.MintOutcome) {
	ev := types.MintEvent{
		Phase:   phase,
		Request: req,
		TxHash:  hash,
		At:      time.Now(),
	}
	if outcome != nil {
		// listeners get a snapshot; the outcome is still filled in after Confirmed
		cp := *outcome
		ev.Outcome = &cp
	}

	c.mu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	listeners := make([]func(types.MintEvent), 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, c.listeners[id])
	}
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (c *Controller) labels(status string) map[string]string {
	return map[string]string{"network": c.network.String(), "status": status}
}

// asPrepareError keeps MintErrors and files anything else under
// PrepareFailed, or UserRejected when the wallet declined.
func asPrepareError(err error) error {
	if types.Code(err) != "" {
		return err
	}
	if clients.IsUserRejection(err) {
		return types.NewError(types.ErrUserRejected, err, "user rejected the transaction")
	}
	return types.NewError(types.ErrPrepareFailed, err, "failed to submit mint: %v", err)
}
