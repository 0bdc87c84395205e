package verification

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/internal/chaintest"
	"github.com/vitwit/tiermint/types"
)

func setup(t *testing.T, balance string) (*chaintest.Chain, *clients.KeyWallet, *Preparer) {
	t.Helper()
	chain := chaintest.New()
	nft, err := contract.NewTierNFT(chaintest.ContractAddress, chain, "mint")
	require.NoError(t, err)

	wallet := clients.NewKeyWallet(chain.NewAccount(types.MustEtherToWei(balance)), chain)
	require.NoError(t, wallet.Connect(context.Background()))

	return chain, wallet, NewPreparer(chain, nft, time.Second, nil)
}

func request(tier int) types.MintRequest {
	return types.MintRequest{Tier: types.DefaultTiers()[tier], RequestedAt: time.Now()}
}

func TestPrepare(t *testing.T) {
	_, wallet, p := setup(t, "1")

	prepared, err := p.Prepare(context.Background(), wallet, request(1))
	require.NoError(t, err)
	assert.Equal(t, wallet.Address(), prepared.From)
	assert.Equal(t, chaintest.ContractAddress, prepared.To)
	assert.Equal(t, 0, prepared.Value.Cmp(types.MustEtherToWei("0.02")))
	assert.Equal(t, uint64(chaintest.MintGas), prepared.Gas)
	assert.NotEmpty(t, prepared.Calldata)
	assert.Contains(t, prepared.String(), "gas=150000")
}

func TestPrepareFailures(t *testing.T) {
	t.Run("disconnected wallet", func(t *testing.T) {
		_, wallet, p := setup(t, "1")
		wallet.Disconnect()

		_, err := p.Prepare(context.Background(), wallet, request(0))
		require.ErrorIs(t, err, types.PrepareFailed)
		assert.Contains(t, err.Error(), "connect your wallet")
	})

	t.Run("insufficient balance", func(t *testing.T) {
		_, wallet, p := setup(t, "0.03")

		_, err := p.Prepare(context.Background(), wallet, request(2))
		require.ErrorIs(t, err, types.PrepareFailed)
		assert.Contains(t, err.Error(), "insufficient balance")
		assert.Contains(t, err.Error(), "0.05")
	})

	t.Run("simulation reverts", func(t *testing.T) {
		_, wallet, p := setup(t, "1")
		req := request(0)
		req.Tier.PriceWei = big.NewInt(1)

		_, err := p.Prepare(context.Background(), wallet, req)
		require.ErrorIs(t, err, types.PrepareFailed)
		assert.Contains(t, err.Error(), "Not enough value for the minimum Tier")
	})

	t.Run("estimation error", func(t *testing.T) {
		chain, wallet, p := setup(t, "1")
		chain.FailEstimate(errors.New("gas required exceeds allowance"))

		_, err := p.Prepare(context.Background(), wallet, request(0))
		require.ErrorIs(t, err, types.PrepareFailed)
		assert.Contains(t, err.Error(), "gas estimation failed")
	})

	t.Run("missing price", func(t *testing.T) {
		_, wallet, p := setup(t, "1")
		req := request(0)
		req.Tier.PriceWei = nil

		err := p.QuickCheck(wallet, req)
		require.ErrorIs(t, err, types.PrepareFailed)
	})
}
