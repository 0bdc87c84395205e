package clients

import (
	"context"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/tiermint/logger"
)

// HeadSource yields chain heads by subscription or by polling.
type HeadSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
}

// Heads streams new heads until ctx is done, then closes the channel. It
// subscribes when the endpoint supports notifications and polls every
// interval otherwise, or after the subscription drops.
func Heads(ctx context.Context, src HeadSource, interval time.Duration, log logger.Logger) <-chan *ethtypes.Header {
	log = logger.OrNoop(log)
	out := make(chan *ethtypes.Header, 16)

	go func() {
		defer close(out)

		in := make(chan *ethtypes.Header, 16)
		sub, err := src.SubscribeNewHead(ctx, in)
		if err != nil {
			log.Info("head subscription unavailable, polling", map[string]any{
				"error":    err,
				"interval": interval.String(),
			})
			pollHeads(ctx, src, interval, out, log)
			return
		}
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-sub.Err():
				if !ok {
					return
				}
				log.Warn("head subscription dropped, polling", map[string]any{"error": err})
				pollHeads(ctx, src, interval, out, log)
				return
			case h := <-in:
				if !send(ctx, out, h) {
					return
				}
			}
		}
	}()

	return out
}

func pollHeads(ctx context.Context, src HeadSource, interval time.Duration, out chan<- *ethtypes.Header, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last uint64
	for {
		h, err := src.HeaderByNumber(ctx, nil)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return
			}
			log.Debug("head poll failed", map[string]any{"error": err})
		case h != nil && h.Number != nil && h.Number.Uint64() > last:
			last = h.Number.Uint64()
			if !send(ctx, out, h) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func send(ctx context.Context, out chan<- *ethtypes.Header, h *ethtypes.Header) bool {
	select {
	case out <- h:
		return true
	case <-ctx.Done():
		return false
	}
}
