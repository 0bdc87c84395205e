package tiermint

import (
	"context"
	"encoding/hex"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/internal/chaintest"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/session"
	"github.com/vitwit/tiermint/types"
)

func testConfig(chain *chaintest.Chain) types.Config {
	key := chain.NewAccount(types.MustEtherToWei("1"))
	return types.Config{
		Network:         types.NetworkLocal,
		RPCUrl:          "http://127.0.0.1:8545",
		ContractAddress: chaintest.ContractAddress.Hex(),
		PrivateKey:      hex.EncodeToString(crypto.FromECDSA(key)),
		PollInterval:    time.Millisecond,
	}
}

func newTestMinter(t *testing.T, chain *chaintest.Chain, cfg types.Config, opts ...Option) *Minter {
	t.Helper()
	opts = append([]Option{WithLogger(logger.NoopLogger{}), WithTimeout(time.Second)}, opts...)
	m, err := NewWithBackend(cfg, chain, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func TestMinterMintsAndDecodes(t *testing.T) {
	chain := chaintest.New()
	chain.SetAutoMine(true)
	m := newTestMinter(t, chain, testConfig(chain))
	ctx := context.Background()

	assert.Equal(t, session.HeadlineConnect, m.Session().View().Headline)
	require.NoError(t, m.Connect(ctx))
	assert.Equal(t, session.HeadlineReady, m.Session().View().Headline)

	supply, err := m.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), supply.Value.Int64())

	outcome, err := m.Mint(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), outcome.TokenID.Int64())
	assert.Equal(t, int64(1), outcome.Tier.Int64())

	supply, err = m.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), supply.Value.Int64())

	meta, err := m.Metadata(ctx, big.NewInt(1))
	require.NoError(t, err)
	assert.Equal(t, "Tier NFT #1", meta.Name)
	assert.Equal(t, "/nfts/1_medium.svg", meta.Image)

	v := m.Session().View()
	assert.Equal(t, session.HeadlineSuccess, v.Headline)
	require.NoError(t, m.Session().Dismiss())

	info, err := m.ContractInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "TierNFT", info.Name)
	assert.Equal(t, "TIER", info.Symbol)
}

func TestMinterReadOnly(t *testing.T) {
	chain := chaintest.New()
	cfg := testConfig(chain)
	cfg.PrivateKey = ""
	m := newTestMinter(t, chain, cfg)

	_, err := m.Mint(context.Background(), 0)
	require.ErrorIs(t, err, types.PrepareFailed)
	assert.Error(t, m.Connect(context.Background()))
	assert.Equal(t, session.HeadlineConnect, m.Session().View().Headline)
	assert.Equal(t, common.Address{}, m.Address())
}

func TestMinterMintBeforeConnect(t *testing.T) {
	chain := chaintest.New()
	chain.SetAutoMine(true)
	m := newTestMinter(t, chain, testConfig(chain))

	outcome, err := m.Mint(context.Background(), 0)
	require.ErrorIs(t, err, types.PrepareFailed)
	assert.Nil(t, outcome)

	v := m.Session().View()
	assert.Equal(t, session.HeadlineConnect, v.Headline)
	assert.False(t, v.Modal)
	assert.False(t, m.Session().Snapshot().Minting)
	assert.Zero(t, chain.Calls("mint"))
	assert.Equal(t, int64(0), chain.Supply())
}

func TestMinterApproverDeclines(t *testing.T) {
	chain := chaintest.New()
	chain.SetAutoMine(true)
	m := newTestMinter(t, chain, testConfig(chain), WithApprover(func(context.Context, clients.TxRequest) error {
		return clients.ErrSignatureDeclined
	}))
	require.NoError(t, m.Connect(context.Background()))

	_, err := m.Mint(context.Background(), 0)
	require.ErrorIs(t, err, types.UserRejected)
	assert.Equal(t, session.HeadlineFailed, m.Session().View().Headline)
}

func TestMinterConfigErrors(t *testing.T) {
	chain := chaintest.New()

	cfg := testConfig(chain)
	cfg.ContractAddress = "nope"
	_, err := NewWithBackend(cfg, chain, WithLogger(logger.NoopLogger{}))
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigError, types.Code(err))

	cfg = testConfig(chain)
	cfg.Tiers = []types.TierConfig{{Name: "A", Price: "0.05"}, {Name: "B", Price: "0.01"}}
	_, err = NewWithBackend(cfg, chain, WithLogger(logger.NoopLogger{}))
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigError, types.Code(err))
}

func TestMinterCustomTiers(t *testing.T) {
	chain := chaintest.New()
	cfg := testConfig(chain)
	cfg.Tiers = []types.TierConfig{{Name: "Only", Price: "0.01", ImageRef: "/only.svg"}}
	m := newTestMinter(t, chain, cfg)

	tiers := m.Tiers()
	require.Len(t, tiers, 1)
	assert.Equal(t, "Only", tiers[0].Name)
	assert.Equal(t, 0, tiers[0].PriceWei.Cmp(types.MustEtherToWei("0.01")))
}

func TestMinterWatch(t *testing.T) {
	chain := chaintest.New()
	m := newTestMinter(t, chain, testConfig(chain))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()

	// another user mints; the watcher picks it up from the new head
	require.Eventually(t, func() bool {
		chain.MintDirect(0)
		s := m.Session().Snapshot()
		return s.TotalSupply != nil && s.TotalSupply.Sign() > 0
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestGetVersion(t *testing.T) {
	v := GetVersion()
	assert.Equal(t, Version, v["library_version"])
	assert.Contains(t, v["supported_networks"], "polygon-amoy")
}
