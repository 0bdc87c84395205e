package cache

import (
	"context"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/time/rate"
)

// Watch refreshes queries on every new head until ctx is done or heads is
// closed. Refreshes are spaced at least the watch interval apart; heads that
// arrive in between are folded into the next refresh.
func (c *ReadCache) Watch(ctx context.Context, heads <-chan *ethtypes.Header, queries ...Query) error {
	limiter := rate.NewLimiter(rate.Every(c.watchInterval), 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case head, ok := <-heads:
			if !ok {
				// a head source closes its channel when ctx ends
				return ctx.Err()
			}
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			head = latest(heads, head)

			fields := map[string]any{"queries": len(queries)}
			if head != nil && head.Number != nil {
				fields["block"] = head.Number.Uint64()
			}
			c.log.Debug("new head, refreshing contract reads", fields)

			for _, q := range queries {
				// failures are logged and published by the round trip
				_, _ = c.Refresh(ctx, q)
			}
		}
	}
}

func latest(heads <-chan *ethtypes.Header, head *ethtypes.Header) *ethtypes.Header {
	for {
		select {
		case h, ok := <-heads:
			if !ok {
				return head
			}
			head = h
		default:
			return head
		}
	}
}
