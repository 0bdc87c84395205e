package clients

import (
	"context"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vitwit/tiermint/types"
)

// Wallet is the session collaborator that owns the signing key.
type Wallet interface {
	Status() types.ConnectionStatus
	Address() common.Address
	// SignAndSend signs a transaction carrying value and calldata to `to`
	// and broadcasts it. A declined signature yields types.UserRejected.
	SignAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.TransactionHandle, error)
	// OnStatusChange registers fn for connection changes.
	OnStatusChange(fn func(types.ConnectionStatus)) (unsubscribe func())
}

// ChainReader is the read-only chain collaborator. *ethclient.Client
// satisfies it.
type ChainReader interface {
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error)
}

// TxBackend is what KeyWallet needs to build and broadcast transactions.
type TxBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
}
