package cache

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tiermint/metrics"
	"github.com/vitwit/tiermint/types"
)

type fakeSource struct {
	mu     sync.Mutex
	supply int64
	uris   map[int64]string
	err    error
	gate   chan struct{}
	calls  atomic.Int32
}

func (f *fakeSource) TotalSupply(ctx context.Context) (*big.Int, error) {
	f.mu.Lock()
	v, err, gate := f.supply, f.err, f.gate
	f.mu.Unlock()
	f.calls.Add(1)

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return big.NewInt(v), nil
}

func (f *fakeSource) TokenURI(_ context.Context, id *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls.Add(1)
	uri, ok := f.uris[id.Int64()]
	if !ok {
		return "", types.NewError(types.ErrContractReverted, nil, "tokenURI reverted")
	}
	return uri, nil
}

func (f *fakeSource) set(supply int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.supply = supply
}

func (f *fakeSource) block() chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	return f.gate
}

func (f *fakeSource) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type countingRecorder struct {
	metrics.NoopRecorder
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) IncCounter(name string, labels map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[name+"/"+labels["status"]]++
}

func (r *countingRecorder) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

func supplyOf(t *testing.T, r Result) int64 {
	t.Helper()
	v := As[*big.Int](r)
	require.True(t, v.Present)
	return v.Value.Int64()
}

func TestReadFetchesOnceThenServesCache(t *testing.T) {
	src := &fakeSource{supply: 4}
	c := New(src)

	res, err := c.ReadTotalSupply(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Present)
	assert.False(t, res.IsStale)
	assert.Equal(t, int64(4), res.Value.Int64())
	assert.False(t, res.LastFetchedAt.IsZero())

	src.set(5)
	res, err = c.ReadTotalSupply(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Value.Int64())
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestStaleReadReturnsLastValueWithoutBlocking(t *testing.T) {
	src := &fakeSource{supply: 1}
	c := New(src)
	ctx := context.Background()

	_, err := c.Read(ctx, TotalSupply())
	require.NoError(t, err)

	c.Invalidate(TotalSupply())
	src.set(2)
	gate := src.block()

	res, err := c.Read(ctx, TotalSupply())
	require.NoError(t, err)
	assert.True(t, res.IsStale)
	assert.Equal(t, int64(1), supplyOf(t, res))

	// a second stale read joins the same refresh
	res, err = c.Read(ctx, TotalSupply())
	require.NoError(t, err)
	assert.Equal(t, int64(1), supplyOf(t, res))

	close(gate)
	c.Wait()

	res = c.Peek(TotalSupply())
	assert.False(t, res.IsStale)
	assert.Equal(t, int64(2), supplyOf(t, res))
}

func TestInvalidateDiscardsInFlightResponse(t *testing.T) {
	src := &fakeSource{supply: 1}
	rec := &countingRecorder{}
	c := New(src, WithMetrics(rec))

	var seen []int64
	var mu sync.Mutex
	c.Subscribe(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, As[*big.Int](u.Result).Value.Int64())
	})

	gate := src.block()
	done := make(chan Result, 1)
	go func() {
		res, err := c.Refresh(context.Background(), TotalSupply())
		assert.NoError(t, err)
		done <- res
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	src.set(2)
	c.Invalidate(TotalSupply())
	c.Invalidate(TotalSupply())
	close(gate)

	res := <-done
	assert.Equal(t, int64(2), supplyOf(t, res))
	assert.Equal(t, int64(2), supplyOf(t, c.Peek(TotalSupply())))
	assert.Equal(t, 1, rec.count(metrics.CacheDiscarded+"/discarded"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int64{2}, seen)
}

func TestConcurrentReadsShareOneRoundTrip(t *testing.T) {
	src := &fakeSource{supply: 9}
	c := New(src)
	gate := src.block()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Read(context.Background(), TotalSupply())
			assert.NoError(t, err)
			assert.Equal(t, int64(9), supplyOf(t, res))
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestCancelledReaderDoesNotFailSharedRead(t *testing.T) {
	src := &fakeSource{supply: 9}
	rec := &countingRecorder{}
	c := New(src, WithMetrics(rec))
	gate := src.block()

	var updates []Update
	var mu sync.Mutex
	c.Subscribe(func(u Update) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, u)
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Read(ctxA, TotalSupply())
		errA <- err
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	resB := make(chan Result, 1)
	go func() {
		res, err := c.Read(context.Background(), TotalSupply())
		assert.NoError(t, err)
		resB <- res
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate)

	assert.Equal(t, int64(9), supplyOf(t, <-resB))
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Zero(t, rec.count(metrics.CacheFetches+"/error"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, updates, 1)
	assert.NoError(t, updates[0].Err)
}

func TestReadErrorKeepsLastValue(t *testing.T) {
	src := &fakeSource{}
	c := New(src)
	ctx := context.Background()
	rpcErr := types.NewError(types.ErrChainQuery, nil, "totalSupply query failed")

	src.fail(rpcErr)
	res, err := c.Read(ctx, TotalSupply())
	require.ErrorIs(t, err, types.ChainQueryError)
	assert.False(t, res.Present)

	src.fail(nil)
	src.set(3)
	_, err = c.Refresh(ctx, TotalSupply())
	require.NoError(t, err)

	src.fail(rpcErr)
	res, err = c.Refresh(ctx, TotalSupply())
	require.Error(t, err)
	assert.Equal(t, int64(3), supplyOf(t, res))
	assert.Equal(t, int64(3), supplyOf(t, c.Peek(TotalSupply())))
}

func TestTokenURIQueries(t *testing.T) {
	src := &fakeSource{uris: map[int64]string{1: "data:application/json;base64,e30="}}
	c := New(src)
	ctx := context.Background()

	res, err := c.ReadTokenURI(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "data:application/json;base64,e30=", res.Value)

	_, err = c.ReadTokenURI(ctx, big.NewInt(2))
	assert.True(t, errors.Is(err, types.ContractReverted))

	assert.Equal(t, "tokenURI(1)", TokenURI(big.NewInt(1)).Key())
	assert.Equal(t, "totalSupply", TotalSupply().Key())
	assert.NotEqual(t, TokenURI(big.NewInt(1)).Key(), TokenURI(big.NewInt(2)).Key())
}

func TestWatchRefreshesOnNewHeads(t *testing.T) {
	src := &fakeSource{supply: 1}
	c := New(src, WithWatchInterval(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	_, err := c.Read(ctx, TotalSupply())
	require.NoError(t, err)

	heads := make(chan *ethtypes.Header, 4)
	errCh := make(chan error, 1)
	go func() { errCh <- c.Watch(ctx, heads, TotalSupply()) }()

	src.set(2)
	heads <- &ethtypes.Header{Number: big.NewInt(10)}
	require.Eventually(t, func() bool {
		return supplyOf(t, c.Peek(TotalSupply())) == 2
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
}

func TestWatchStopsWhenHeadsClose(t *testing.T) {
	c := New(&fakeSource{})
	heads := make(chan *ethtypes.Header)
	close(heads)
	assert.NoError(t, c.Watch(context.Background(), heads, TotalSupply()))
}

func TestAs(t *testing.T) {
	r := As[string](Result{Value: 5, Present: true})
	assert.False(t, r.Present)
	assert.Equal(t, "", r.Value)

	n := As[*big.Int](Result{Value: big.NewInt(5), Present: true})
	assert.True(t, n.Present)
}
