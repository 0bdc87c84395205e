package clients

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/types"
)

// DefaultTipCap is used when the node cannot suggest a priority fee.
var DefaultTipCap = big.NewInt(2_500_000_000)

// TxRequest is what the user is asked to approve before signing.
type TxRequest struct {
	From      common.Address
	To        common.Address
	Value     *big.Int
	Data      []byte
	Gas       uint64
	GasFeeCap *big.Int
	GasTipCap *big.Int
	Nonce     uint64
	ChainID   *big.Int
}

// MaxCost is the most the transaction can spend: value plus gas at the fee
// cap.
func (r TxRequest) MaxCost() *big.Int {
	cost := new(big.Int).Mul(new(big.Int).SetUint64(r.Gas), r.GasFeeCap)
	return cost.Add(cost, r.Value)
}

// Approver decides whether a transaction may be signed. Returning
// ErrSignatureDeclined rejects it.
type Approver func(ctx context.Context, req TxRequest) error

// AutoApprove signs everything.
func AutoApprove(context.Context, TxRequest) error { return nil }

var _ Wallet = (*KeyWallet)(nil)

// KeyWallet is a Wallet holding a local private key. It signs EIP-1559
// transactions once the Approver agrees.
type KeyWallet struct {
	mu        sync.RWMutex
	key       *ecdsa.PrivateKey
	address   common.Address
	backend   TxBackend
	approve   Approver
	status    types.ConnectionStatus
	chainID   *big.Int
	listeners map[int]func(types.ConnectionStatus)
	nextID    int
	sendMu    sync.Mutex
	log       logger.Logger
}

type WalletOption func(*KeyWallet)

func WithApprover(a Approver) WalletOption {
	return func(w *KeyWallet) { w.approve = a }
}

func WithWalletLogger(l logger.Logger) WalletOption {
	return func(w *KeyWallet) { w.log = logger.OrNoop(l) }
}

func NewKeyWallet(key *ecdsa.PrivateKey, backend TxBackend, opts ...WalletOption) *KeyWallet {
	w := &KeyWallet{
		key:       key,
		address:   crypto.PubkeyToAddress(key.PublicKey),
		backend:   backend,
		approve:   AutoApprove,
		listeners: make(map[int]func(types.ConnectionStatus)),
		log:       logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Connect resolves the chain id and marks the wallet connected.
func (w *KeyWallet) Connect(ctx context.Context) error {
	w.setStatus(types.Connecting)

	chainID, err := w.backend.ChainID(ctx)
	if err != nil {
		w.setStatus(types.Disconnected)
		return types.NewError(types.ErrChainQuery, err, "wallet connect failed: %v", err)
	}

	w.mu.Lock()
	w.chainID = chainID
	w.mu.Unlock()

	w.setStatus(types.Connected)
	w.log.Info("wallet connected", map[string]any{
		"address": w.address.Hex(),
		"chainId": chainID.String(),
	})
	return nil
}

func (w *KeyWallet) Disconnect() {
	w.setStatus(types.Disconnected)
	w.log.Info("wallet disconnected", map[string]any{"address": w.address.Hex()})
}

func (w *KeyWallet) Status() types.ConnectionStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

func (w *KeyWallet) Address() common.Address {
	return w.address
}

func (w *KeyWallet) OnStatusChange(fn func(types.ConnectionStatus)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.listeners[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.listeners, id)
	}
}

func (w *KeyWallet) setStatus(s types.ConnectionStatus) {
	w.mu.Lock()
	if w.status == s {
		w.mu.Unlock()
		return
	}
	w.status = s
	listeners := make([]func(types.ConnectionStatus), 0, len(w.listeners))
	for _, fn := range w.listeners {
		listeners = append(listeners, fn)
	}
	w.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// SignAndSend builds a dynamic fee transaction, asks the Approver, signs and
// broadcasts it. Errors before broadcast are UserRejected or PrepareFailed.
func (w *KeyWallet) SignAndSend(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.TransactionHandle, error) {
	if w.Status() != types.Connected {
		return nil, types.NewError(types.ErrPrepareFailed, nil, "wallet is not connected")
	}
	if value == nil {
		value = new(big.Int)
	}

	// one transaction at a time per key keeps nonces sequential
	w.sendMu.Lock()
	defer w.sendMu.Unlock()

	req, err := w.buildRequest(ctx, to, value, data)
	if err != nil {
		return nil, classifySendError(err)
	}

	if err := w.approve(ctx, req); err != nil {
		w.log.Info("transaction not approved", map[string]any{"to": to.Hex(), "error": err})
		return nil, classifySendError(err)
	}

	tx := ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   req.ChainID,
		Nonce:     req.Nonce,
		GasTipCap: req.GasTipCap,
		GasFeeCap: req.GasFeeCap,
		Gas:       req.Gas,
		To:        &to,
		Value:     value,
		Data:      data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(req.ChainID), w.key)
	if err != nil {
		return nil, types.NewError(types.ErrPrepareFailed, err, "failed to sign transaction: %v", err)
	}

	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, classifySendError(err)
	}

	w.log.Info("transaction broadcast", map[string]any{
		"hash":  signed.Hash().Hex(),
		"nonce": req.Nonce,
		"value": value.String(),
	})
	return &types.TransactionHandle{
		Hash:   signed.Hash(),
		Status: types.TxPending,
	}, nil
}

func (w *KeyWallet) buildRequest(ctx context.Context, to common.Address, value *big.Int, data []byte) (TxRequest, error) {
	w.mu.RLock()
	chainID := w.chainID
	w.mu.RUnlock()

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return TxRequest{}, err
	}

	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  w.address,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return TxRequest{}, err
	}

	tipCap, err := w.backend.SuggestGasTipCap(ctx)
	if err != nil || tipCap == nil {
		tipCap = new(big.Int).Set(DefaultTipCap)
	}

	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return TxRequest{}, err
	}
	// fee cap is twice the base fee plus the tip
	feeCap := new(big.Int).Set(tipCap)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}

	return TxRequest{
		From:      w.address,
		To:        to,
		Value:     value,
		Data:      data,
		Gas:       gas,
		GasFeeCap: feeCap,
		GasTipCap: tipCap,
		Nonce:     nonce,
		ChainID:   chainID,
	}, nil
}
