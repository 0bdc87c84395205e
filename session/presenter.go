// Package session projects the wallet signal, the mint controller's events
// and cache updates onto a UISessionState. It holds no logic of its own
// beyond that mapping and the modal's dismissal.
package session

import (
	"math/big"
	"sort"
	"sync"

	"github.com/vitwit/tiermint/cache"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/types"
)

// WalletSignal is the wallet connection status collaborator.
type WalletSignal interface {
	Status() types.ConnectionStatus
	OnStatusChange(fn func(types.ConnectionStatus)) (unsubscribe func())
}

// MintEvents is satisfied by *mint.Controller.
type MintEvents interface {
	Subscribe(fn func(types.MintEvent)) (unsubscribe func())
}

// CacheUpdates is satisfied by *cache.ReadCache.
type CacheUpdates interface {
	Subscribe(fn func(cache.Update)) (unsubscribe func())
}

type Presenter struct {
	mu     sync.Mutex
	state  types.UISessionState
	links  Links
	subs   map[int]func(types.UISessionState)
	nextID int
	stop   []func()
	log    logger.Logger
}

// NewPresenter subscribes to every non-nil source. Call Close to detach.
func NewPresenter(wallet WalletSignal, mints MintEvents, updates CacheUpdates, links Links, log logger.Logger) *Presenter {
	p := &Presenter{
		links: links,
		subs:  make(map[int]func(types.UISessionState)),
		log:   logger.OrNoop(log).With(map[string]any{"component": "session"}),
	}
	if wallet != nil {
		p.state.WalletConnected = wallet.Status() == types.Connected
		p.stop = append(p.stop, wallet.OnStatusChange(p.onWallet))
	}
	if mints != nil {
		p.stop = append(p.stop, mints.Subscribe(p.onMint))
	}
	if updates != nil {
		p.stop = append(p.stop, updates.Subscribe(p.onCache))
	}
	return p
}

// Close detaches the presenter from its sources.
func (p *Presenter) Close() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	for _, fn := range stop {
		fn()
	}
}

// Snapshot returns a copy of the current state. It shares no mutable data
// with the presenter.
func (p *Presenter) Snapshot() types.UISessionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Presenter) snapshotLocked() types.UISessionState {
	s := p.state
	if s.TotalSupply != nil {
		s.TotalSupply = new(big.Int).Set(s.TotalSupply)
	}
	if s.LatestMetadata != nil {
		meta := *s.LatestMetadata
		meta.Attributes = append([]types.Attribute(nil), meta.Attributes...)
		s.LatestMetadata = &meta
	}
	if s.Outcome != nil {
		out := *s.Outcome
		s.Outcome = &out
	}
	return s
}

// Subscribe calls fn with a snapshot after every change.
func (p *Presenter) Subscribe(fn func(types.UISessionState)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subs, id)
	}
}

// CanMint reports whether a tier selection is reachable.
func (p *Presenter) CanMint() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.WalletConnected && !p.state.Minting
}

// Dismiss hides the modal. It is refused while a mint is in flight.
func (p *Presenter) Dismiss() error {
	return p.update(func(s *types.UISessionState) error {
		if s.Minting {
			return types.NewError(types.ErrAlreadyMinting, nil, "cannot close the dialog while minting")
		}
		s.ModalVisible = false
		return nil
	})
}

func (p *Presenter) onWallet(status types.ConnectionStatus) {
	_ = p.update(func(s *types.UISessionState) error {
		s.WalletConnected = status == types.Connected
		return nil
	})
}

func (p *Presenter) onMint(ev types.MintEvent) {
	_ = p.update(func(s *types.UISessionState) error {
		s.Phase = ev.Phase
		switch ev.Phase {
		case types.PhasePreparing:
			s.Minting = true
			s.ModalVisible = true
			s.Outcome = nil
			s.TxHash = ev.TxHash
		case types.PhaseSubmitted, types.PhaseConfirming:
			s.TxHash = ev.TxHash
		case types.PhaseConfirmed, types.PhaseFailed:
			s.Outcome = ev.Outcome
		case types.PhaseIdle:
			s.Minting = false
			if ev.Outcome != nil {
				s.Outcome = ev.Outcome
				if ev.Outcome.Metadata != nil {
					s.LatestMetadata = ev.Outcome.Metadata
				}
			}
		}
		return nil
	})
}

func (p *Presenter) onCache(u cache.Update) {
	if u.Err != nil || u.Query.Kind != cache.KindTotalSupply {
		return
	}
	supply := cache.As[*big.Int](u.Result)
	if !supply.Present {
		return
	}
	_ = p.update(func(s *types.UISessionState) error {
		s.TotalSupply = new(big.Int).Set(supply.Value)
		return nil
	})
}

// update applies fn and notifies subscribers when it succeeds.
func (p *Presenter) update(fn func(*types.UISessionState) error) error {
	p.mu.Lock()
	if err := fn(&p.state); err != nil {
		p.mu.Unlock()
		p.log.Debug("session update refused", map[string]any{"error": err})
		return err
	}
	snap := p.snapshotLocked()
	ids := make([]int, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	subs := make([]func(types.UISessionState), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, p.subs[id])
	}
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	return nil
}
