package clients

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/internal/chaintest"
	"github.com/vitwit/tiermint/types"
)

func mintCalldata(t *testing.T) []byte {
	t.Helper()
	parsed, err := contract.ParsedABI()
	require.NoError(t, err)
	data, err := parsed.Pack("mint")
	require.NoError(t, err)
	return data
}

func connectedWallet(t *testing.T, chain *chaintest.Chain, opts ...WalletOption) *KeyWallet {
	t.Helper()
	key := chain.NewAccount(types.MustEtherToWei("1"))
	w := NewKeyWallet(key, chain, opts...)
	require.NoError(t, w.Connect(context.Background()))
	return w
}

func TestConnectNotifiesListeners(t *testing.T) {
	chain := chaintest.New()
	w := NewKeyWallet(chain.NewAccount(big.NewInt(0)), chain)

	var seen []types.ConnectionStatus
	unsubscribe := w.OnStatusChange(func(s types.ConnectionStatus) { seen = append(seen, s) })

	assert.Equal(t, types.Disconnected, w.Status())
	require.NoError(t, w.Connect(context.Background()))
	assert.Equal(t, types.Connected, w.Status())

	w.Disconnect()
	unsubscribe()
	require.NoError(t, w.Connect(context.Background()))

	assert.Equal(t, []types.ConnectionStatus{types.Connecting, types.Connected, types.Disconnected}, seen)
}

func TestSignAndSend(t *testing.T) {
	chain := chaintest.New()
	var approved TxRequest
	w := connectedWallet(t, chain, WithApprover(func(_ context.Context, req TxRequest) error {
		approved = req
		return nil
	}))

	price := types.MustEtherToWei("0.01")
	handle, err := w.SignAndSend(context.Background(), chaintest.ContractAddress, price, mintCalldata(t))
	require.NoError(t, err)
	assert.Equal(t, types.TxPending, handle.Status)
	assert.NotEqual(t, common.Hash{}, handle.Hash)
	assert.Equal(t, 1, chain.Pending())

	assert.Equal(t, w.Address(), approved.From)
	assert.Equal(t, price, approved.Value)
	assert.Equal(t, uint64(chaintest.MintGas), approved.Gas)
	assert.Equal(t, chaintest.TipCap, approved.GasTipCap)
	wantFeeCap := new(big.Int).Add(chaintest.TipCap, new(big.Int).Mul(chaintest.BaseFee, big.NewInt(2)))
	assert.Equal(t, wantFeeCap, approved.GasFeeCap)
	assert.Equal(t, 0, approved.MaxCost().Cmp(new(big.Int).Add(price, new(big.Int).Mul(big.NewInt(chaintest.MintGas), wantFeeCap))))

	chain.Mine()
	receipt, err := chain.TransactionReceipt(context.Background(), handle.Hash)
	require.NoError(t, err)
	assert.Equal(t, ethtypes.ReceiptStatusSuccessful, receipt.Status)
	assert.Equal(t, int64(1), chain.Supply())
}

func TestSignAndSendRequiresConnection(t *testing.T) {
	chain := chaintest.New()
	w := NewKeyWallet(chain.NewAccount(types.MustEtherToWei("1")), chain)

	_, err := w.SignAndSend(context.Background(), chaintest.ContractAddress, big.NewInt(1), nil)
	require.Error(t, err)
	assert.Equal(t, types.ErrPrepareFailed, types.Code(err))
}

func TestDeclinedSignatureIsUserRejected(t *testing.T) {
	chain := chaintest.New()
	w := connectedWallet(t, chain, WithApprover(func(context.Context, TxRequest) error {
		return ErrSignatureDeclined
	}))

	_, err := w.SignAndSend(context.Background(), chaintest.ContractAddress, types.MustEtherToWei("0.01"), mintCalldata(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.UserRejected))
	assert.Equal(t, 0, chain.Pending())
}

func TestSendErrorsAreClassified(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"eip-1193 rejection", &chaintest.RPCError{Code: CodeUserRejected, Message: "User denied transaction signature"}, types.ErrUserRejected},
		{"rejection by message", errors.New("user rejected transaction"), types.ErrUserRejected},
		{"revert", chaintest.NewRevertError("sold out"), types.ErrPrepareFailed},
		{"disconnected provider", &chaintest.RPCError{Code: CodeDisconnected, Message: "disconnected"}, types.ErrPrepareFailed},
		{"other", errors.New("nonce too low"), types.ErrPrepareFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := chaintest.New()
			w := connectedWallet(t, chain)
			chain.FailSend(tt.err)

			_, err := w.SignAndSend(context.Background(), chaintest.ContractAddress, types.MustEtherToWei("0.01"), mintCalldata(t))
			require.Error(t, err)
			assert.Equal(t, tt.code, types.Code(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestEstimateRevertIsPrepareFailed(t *testing.T) {
	chain := chaintest.New()
	w := connectedWallet(t, chain)

	_, err := w.SignAndSend(context.Background(), chaintest.ContractAddress, big.NewInt(1), mintCalldata(t))
	require.Error(t, err)
	assert.Equal(t, types.ErrPrepareFailed, types.Code(err))
	assert.Contains(t, err.Error(), "Not enough value for the minimum Tier")
}

func TestHeadsFallsBackToPolling(t *testing.T) {
	for _, subscribe := range []bool{true, false} {
		chain := chaintest.New()
		if !subscribe {
			chain.DisableSubscriptions()
		}

		ctx, cancel := context.WithCancel(context.Background())
		heads := Heads(ctx, chain, time.Millisecond, nil)

		var got *ethtypes.Header
		require.Eventually(t, func() bool {
			chain.Mine()
			select {
			case got = <-heads:
				return got.Number.Uint64() > 1
			default:
				return false
			}
		}, time.Second, 5*time.Millisecond)

		cancel()
		for range heads {
		}
	}
}

// emptyHeads polls without subscriptions and answers the first polls with
// no header.
type emptyHeads struct {
	polls atomic.Int32
}

func (e *emptyHeads) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	if e.polls.Add(1) <= 3 {
		return nil, nil
	}
	return &ethtypes.Header{Number: big.NewInt(7)}, nil
}

func (e *emptyHeads) SubscribeNewHead(context.Context, chan<- *ethtypes.Header) (ethereum.Subscription, error) {
	return nil, errors.New("notifications not supported")
}

func TestHeadsSkipsMissingHeader(t *testing.T) {
	src := &emptyHeads{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	heads := Heads(ctx, src, time.Millisecond, nil)
	select {
	case h := <-heads:
		require.NotNil(t, h)
		assert.Equal(t, uint64(7), h.Number.Uint64())
	case <-time.After(time.Second):
		t.Fatal("no head after empty polls")
	}
	assert.Greater(t, src.polls.Load(), int32(3))
}
