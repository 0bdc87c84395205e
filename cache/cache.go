// Package cache keeps the latest observed value of the contract reads the
// client depends on.
//
// Every query carries a generation. Invalidate and forced refreshes bump it,
// and a response is stored only if its generation is still the latest, so a
// slow response issued before an invalidation can never overwrite a newer
// one. Readers never wait on a stale entry: they get the last known value
// while a single background round trip refreshes it.
package cache

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/kpango/fastime"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/metrics"
	"github.com/vitwit/tiermint/types"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultFetchTimeout  = 15 * time.Second
	DefaultWatchInterval = time.Second
)

// Source performs the underlying contract reads. *contract.TierNFT
// satisfies it.
type Source interface {
	TotalSupply(ctx context.Context) (*big.Int, error)
	TokenURI(ctx context.Context, tokenID *big.Int) (string, error)
}

// Result is an untyped snapshot; use As to convert it.
type Result = types.ContractReadResult[any]

// Update is delivered to subscribers after every completed round trip.
type Update struct {
	Query  Query
	Result Result
	Err    error
}

type entry struct {
	value     any
	present   bool
	stale     bool
	fetchedAt time.Time
	gen       uint64
}

type flight struct {
	result   Result
	accepted bool
}

type ReadCache struct {
	mu      sync.Mutex
	src     Source
	entries map[string]*entry
	flights singleflight.Group

	subs    map[int]func(Update)
	nextSub int

	log           logger.Logger
	metrics       metrics.Recorder
	network       string
	fetchTimeout  time.Duration
	watchInterval time.Duration

	background sync.WaitGroup
}

type Option func(*ReadCache)

func WithLogger(l logger.Logger) Option {
	return func(c *ReadCache) { c.log = logger.OrNoop(l) }
}

func WithMetrics(m metrics.Recorder) Option {
	return func(c *ReadCache) { c.metrics = metrics.OrNoop(m) }
}

// WithNetwork sets the network label of emitted metrics.
func WithNetwork(network string) Option {
	return func(c *ReadCache) { c.network = network }
}

// WithFetchTimeout bounds every contract round trip.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *ReadCache) { c.fetchTimeout = d }
}

// WithWatchInterval sets the minimum spacing of watch-mode refreshes.
func WithWatchInterval(d time.Duration) Option {
	return func(c *ReadCache) { c.watchInterval = d }
}

func New(src Source, opts ...Option) *ReadCache {
	c := &ReadCache{
		src:           src,
		entries:       make(map[string]*entry),
		subs:          make(map[int]func(Update)),
		log:           logger.NoopLogger{},
		metrics:       metrics.NoopRecorder{},
		fetchTimeout:  DefaultFetchTimeout,
		watchInterval: DefaultWatchInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the cached result of q. A fresh entry is returned as is. A
// stale entry returns its last value immediately and schedules one
// background refresh. An entry that was never fetched costs one round trip.
func (c *ReadCache) Read(ctx context.Context, q Query) (Result, error) {
	c.mu.Lock()
	e := c.entry(q)
	switch {
	case e.present && !e.stale:
		res := snapshot(e)
		c.mu.Unlock()
		return res, nil
	case e.present:
		res := snapshot(e)
		gen := e.gen
		c.mu.Unlock()
		c.refreshAsync(q, gen)
		return res, nil
	}
	gen := e.gen
	c.mu.Unlock()
	return c.await(ctx, q, gen)
}

// Refresh forces a round trip for q and returns its result. Responses of
// reads issued earlier are discarded.
func (c *ReadCache) Refresh(ctx context.Context, q Query) (Result, error) {
	c.mu.Lock()
	e := c.entry(q)
	e.gen++
	gen := e.gen
	c.mu.Unlock()
	return c.await(ctx, q, gen)
}

// Invalidate marks q stale. The next Read refreshes it and any round trip
// already in flight is discarded when it returns. Calling it repeatedly is
// harmless.
func (c *ReadCache) Invalidate(q Query) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entry(q)
	e.stale = true
	e.gen++
}

// Peek returns the cached result of q without touching the chain.
func (c *ReadCache) Peek(q Query) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[q.Key()]
	if !ok {
		return Result{IsStale: true}
	}
	return snapshot(e)
}

// Subscribe registers fn for every completed round trip. fn runs on the
// goroutine that completed the read and must not block.
func (c *ReadCache) Subscribe(fn func(Update)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Wait blocks until background refreshes have finished.
func (c *ReadCache) Wait() {
	c.background.Wait()
}

// await fetches q at gen. When a newer generation supersedes it the caller
// joins the newer read instead, so the result returned is always one the
// cache accepted.
func (c *ReadCache) await(ctx context.Context, q Query, gen uint64) (Result, error) {
	for {
		res, accepted, err := c.fetch(ctx, q, gen)
		if accepted || ctx.Err() != nil {
			return res, err
		}
		c.mu.Lock()
		gen = c.entry(q).gen
		c.mu.Unlock()
	}
}

func (c *ReadCache) refreshAsync(q Query, gen uint64) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.fetchTimeout)
		defer cancel()
		_, _, _ = c.fetch(ctx, q, gen)
	}()
}

// fetch runs at most one round trip per query and generation; concurrent
// callers share it. The round trip is detached from ctx and bounded by the
// fetch timeout, so a cancelled caller only stops its own wait.
func (c *ReadCache) fetch(ctx context.Context, q Query, gen uint64) (Result, bool, error) {
	key := fmt.Sprintf("%s#%d", q.Key(), gen)
	ch := c.flights.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		return c.roundTrip(fctx, q, gen)
	})

	select {
	case <-ctx.Done():
		return Result{}, false, ctx.Err()
	case r := <-ch:
		f, _ := r.Val.(flight)
		return f.result, f.accepted, r.Err
	}
}

func (c *ReadCache) roundTrip(ctx context.Context, q Query, gen uint64) (flight, error) {
	start := time.Now()
	value, err := c.load(ctx, q)
	c.metrics.ObserveLatency(metrics.CacheFetches, time.Since(start), map[string]string{"network": c.network})

	c.mu.Lock()
	e := c.entry(q)
	if e.gen != gen {
		res, latest := snapshot(e), e.gen
		c.mu.Unlock()
		c.metrics.IncCounter(metrics.CacheDiscarded, c.labels("discarded"))
		c.log.Debug("discarded superseded contract read", map[string]any{
			"query":      q.Key(),
			"generation": gen,
			"latest":     latest,
		})
		return flight{result: res}, err
	}

	if err != nil {
		res := snapshot(e)
		c.mu.Unlock()
		c.metrics.IncCounter(metrics.CacheFetches, c.labels("error"))
		c.log.Warn("contract read failed", map[string]any{
			"query": q.Key(),
			"error": err,
		})
		c.notify(Update{Query: q, Result: res, Err: err})
		return flight{result: res, accepted: true}, err
	}

	e.value = value
	e.present = true
	e.stale = false
	e.fetchedAt = fastime.Now()
	res := snapshot(e)
	c.mu.Unlock()

	c.metrics.IncCounter(metrics.CacheFetches, c.labels("ok"))
	if supply, ok := value.(*big.Int); ok && q.Kind == KindTotalSupply {
		f, _ := new(big.Float).SetInt(supply).Float64()
		c.metrics.SetGauge(metrics.TotalSupply, f, map[string]string{"network": c.network})
	}
	c.notify(Update{Query: q, Result: res})
	return flight{result: res, accepted: true}, nil
}

func (c *ReadCache) load(ctx context.Context, q Query) (any, error) {
	switch q.Kind {
	case KindTotalSupply:
		return c.src.TotalSupply(ctx)
	case KindTokenURI:
		if q.TokenID == nil {
			return nil, fmt.Errorf("cache: tokenURI query without token id")
		}
		return c.src.TokenURI(ctx, q.TokenID)
	default:
		return nil, fmt.Errorf("cache: unknown query kind %d", q.Kind)
	}
}

func (c *ReadCache) notify(u Update) {
	c.mu.Lock()
	subs := make([]func(Update), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()
	for _, fn := range subs {
		fn(u)
	}
}

func (c *ReadCache) labels(status string) map[string]string {
	return map[string]string{"network": c.network, "status": status}
}

// entry must be called with c.mu held.
func (c *ReadCache) entry(q Query) *entry {
	e, ok := c.entries[q.Key()]
	if !ok {
		e = &entry{}
		c.entries[q.Key()] = e
	}
	return e
}

func snapshot(e *entry) Result {
	return Result{
		Value:         e.value,
		Present:       e.present,
		IsStale:       e.stale || !e.present,
		LastFetchedAt: e.fetchedAt,
	}
}

// As converts an untyped snapshot. A missing or mistyped value yields the
// zero value of T with Present false.
func As[T any](r Result) types.ContractReadResult[T] {
	out := types.ContractReadResult[T]{
		IsStale:       r.IsStale,
		LastFetchedAt: r.LastFetchedAt,
	}
	if v, ok := r.Value.(T); ok && r.Present {
		out.Value = v
		out.Present = true
	}
	return out
}

// ReadTotalSupply is Read for the total supply query.
func (c *ReadCache) ReadTotalSupply(ctx context.Context) (types.ContractReadResult[*big.Int], error) {
	res, err := c.Read(ctx, TotalSupply())
	return As[*big.Int](res), err
}

// ReadTokenURI is Read for the token URI of tokenID.
func (c *ReadCache) ReadTokenURI(ctx context.Context, tokenID *big.Int) (types.ContractReadResult[string], error) {
	res, err := c.Read(ctx, TokenURI(tokenID))
	return As[string](res), err
}
