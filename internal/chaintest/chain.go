// Package chaintest is an in-memory TierNFT chain for tests. Contract calls
// go through the real ABI codec so bindings exercise their pack and unpack
// paths.
package chaintest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/metadata"
	"github.com/vitwit/tiermint/types"
)

const (
	MintGas        = 150_000
	errNoTier      = "Not enough value for the minimum Tier"
	errNoSuchToken = "ERC721Metadata: URI query for nonexistent token"
)

var (
	ChainID         = big.NewInt(1337)
	ContractAddress = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	BaseFee         = big.NewInt(1_000_000_000)
	TipCap          = big.NewInt(1_500_000_000)
)

// Chain is a single-contract chain. The zero value is not usable; call New.
type Chain struct {
	mu sync.Mutex

	abi      abi.ABI
	signer   ethtypes.Signer
	head     uint64
	balances map[common.Address]*big.Int
	nonces   map[common.Address]uint64
	prices   []*big.Int

	supply int64
	tiers  map[int64]int64
	uris   map[int64]string

	pending  []*ethtypes.Transaction
	receipts map[common.Hash]*ethtypes.Receipt
	reverts  map[uint64]string

	autoMine      bool
	callErr       error
	estimateErr   error
	sendErr       error
	revertMined   string
	noSubscribe   bool
	calls         map[string]int
	subs          map[int]chan<- *ethtypes.Header
	nextSub       int
	beforeReceipt func(common.Hash)
}

// New returns a chain at block 1 with an empty TierNFT contract priced with
// the default tiers.
func New() *Chain {
	parsed, err := contract.ParsedABI()
	if err != nil {
		panic(err)
	}
	c := &Chain{
		abi:      parsed,
		signer:   ethtypes.LatestSignerForChainID(ChainID),
		head:     1,
		balances: make(map[common.Address]*big.Int),
		nonces:   make(map[common.Address]uint64),
		tiers:    make(map[int64]int64),
		uris:     make(map[int64]string),
		receipts: make(map[common.Hash]*ethtypes.Receipt),
		reverts:  make(map[uint64]string),
		calls:    make(map[string]int),
		subs:     make(map[int]chan<- *ethtypes.Header),
	}
	for _, t := range types.DefaultTiers() {
		c.prices = append(c.prices, t.PriceWei)
	}
	return c
}

// NewAccount creates a key funded with balance wei.
func (c *Chain) NewAccount(balance *big.Int) *ecdsa.PrivateKey {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	c.SetBalance(crypto.PubkeyToAddress(key.PublicKey), balance)
	return key
}

func (c *Chain) SetBalance(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[addr] = new(big.Int).Set(wei)
}

// SetAutoMine mines every transaction as soon as it is sent.
func (c *Chain) SetAutoMine(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autoMine = on
}

// FailCalls makes every eth_call return err. nil restores normal behaviour.
func (c *Chain) FailCalls(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callErr = err
}

func (c *Chain) FailEstimate(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.estimateErr = err
}

func (c *Chain) FailSend(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// RevertMined makes mined mint transactions revert with reason while
// simulation keeps succeeding.
func (c *Chain) RevertMined(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revertMined = reason
}

// DisableSubscriptions makes SubscribeNewHead fail like an HTTP endpoint.
func (c *Chain) DisableSubscriptions() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noSubscribe = true
}

// SetTokenURI overrides the URI returned for an existing token.
func (c *Chain) SetTokenURI(id int64, uri string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uris[id] = uri
}

// MintDirect mints a token for someone else, as another user would.
func (c *Chain) MintDirect(tier int64) int64 {
	c.mu.Lock()
	c.supply++
	id := c.supply
	c.tiers[id] = tier
	c.mu.Unlock()
	c.Mine()
	return id
}

// OnReceipt registers fn to run before each receipt lookup.
func (c *Chain) OnReceipt(fn func(common.Hash)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beforeReceipt = fn
}

func (c *Chain) Supply() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.supply
}

func (c *Chain) Head() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

// Calls returns how many eth_calls hit method.
func (c *Chain) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

func (c *Chain) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Mine includes all pending transactions in a new block.
func (c *Chain) Mine() {
	c.mu.Lock()
	c.head++
	for _, tx := range c.pending {
		c.include(tx)
	}
	c.pending = nil
	header := c.header()
	subs := make([]chan<- *ethtypes.Header, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- header:
		default:
		}
	}
}

// AdvanceBlocks mines n blocks.
func (c *Chain) AdvanceBlocks(n int) {
	for i := 0; i < n; i++ {
		c.Mine()
	}
}

func (c *Chain) include(tx *ethtypes.Transaction) {
	from, _ := ethtypes.Sender(c.signer, tx)
	receipt := &ethtypes.Receipt{
		Type:              tx.Type(),
		Status:            ethtypes.ReceiptStatusSuccessful,
		TxHash:            tx.Hash(),
		GasUsed:           tx.Gas(),
		CumulativeGasUsed: tx.Gas(),
		BlockNumber:       new(big.Int).SetUint64(c.head),
	}
	c.receipts[tx.Hash()] = receipt
	defer c.debit(from, new(big.Int).Mul(new(big.Int).SetUint64(tx.Gas()), BaseFee))

	if tx.To() == nil || *tx.To() != ContractAddress {
		c.debit(from, tx.Value())
		return
	}
	if c.revertMined != "" {
		receipt.Status = ethtypes.ReceiptStatusFailed
		c.reverts[c.head] = c.revertMined
		return
	}
	tier, err := c.simulateMint(from, tx.Data(), tx.Value())
	if err != nil {
		receipt.Status = ethtypes.ReceiptStatusFailed
		var re *RevertError
		if errors.As(err, &re) {
			c.reverts[c.head] = re.Reason
		}
		return
	}
	c.debit(from, tx.Value())
	c.supply++
	c.tiers[c.supply] = tier
	receipt.Logs = []*ethtypes.Log{{
		Address: ContractAddress,
		Topics: []common.Hash{
			c.abi.Events["Transfer"].ID,
			{},
			common.BytesToHash(from.Bytes()),
			common.BigToHash(big.NewInt(c.supply)),
		},
		BlockNumber: c.head,
		TxHash:      tx.Hash(),
	}}
}

func (c *Chain) debit(addr common.Address, wei *big.Int) {
	bal, ok := c.balances[addr]
	if !ok {
		return
	}
	bal.Sub(bal, wei)
	if bal.Sign() < 0 {
		bal.SetInt64(0)
	}
}

func (c *Chain) header() *ethtypes.Header {
	return &ethtypes.Header{
		Number:  new(big.Int).SetUint64(c.head),
		BaseFee: new(big.Int).Set(BaseFee),
		Time:    c.head * 2,
	}
}

// simulateMint returns the tier bought by value.
func (c *Chain) simulateMint(from common.Address, data []byte, value *big.Int) (int64, error) {
	if len(data) < 4 {
		return 0, NewRevertError("missing selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil || !method.IsPayable() {
		return 0, NewRevertError("unknown method")
	}
	if bal, ok := c.balances[from]; !ok || bal.Cmp(value) < 0 {
		return 0, fmt.Errorf("insufficient funds for gas * price + value: address %s", from.Hex())
	}
	for i := len(c.prices) - 1; i >= 0; i-- {
		if value.Cmp(c.prices[i]) >= 0 {
			return int64(i), nil
		}
	}
	return 0, NewRevertError(errNoTier)
}

func (c *Chain) tokenURI(id int64) string {
	if uri, ok := c.uris[id]; ok {
		return uri
	}
	tier := types.DefaultTiers()[c.tiers[id]]
	uri, _ := metadata.EncodeDataURI(types.NFTMetadata{
		Name:        fmt.Sprintf("Tier NFT #%d", id),
		Description: tier.Name + " tier",
		Image:       tier.ImageRef,
		Attributes:  []types.Attribute{{Key: "Tier", Value: tier.Name}},
	})
	return uri
}

func (c *Chain) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.callErr != nil {
		return nil, c.callErr
	}
	if msg.To == nil || *msg.To != ContractAddress {
		return nil, nil
	}
	if len(msg.Data) < 4 {
		return nil, NewRevertError("missing selector")
	}
	method, err := c.abi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, NewRevertError("unknown method")
	}
	c.calls[method.Name]++

	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	switch method.Name {
	case "totalSupply":
		return method.Outputs.Pack(big.NewInt(c.supply))
	case "name":
		return method.Outputs.Pack("TierNFT")
	case "symbol":
		return method.Outputs.Pack("TIER")
	case "tokenURI", "tokenTier":
		id := args[0].(*big.Int)
		if id.Sign() <= 0 || id.Int64() > c.supply {
			return nil, NewRevertError(errNoSuchToken)
		}
		if method.Name == "tokenURI" {
			return method.Outputs.Pack(c.tokenURI(id.Int64()))
		}
		return method.Outputs.Pack(big.NewInt(c.tiers[id.Int64()]))
	case "mint", "safeMint":
		if block != nil {
			if reason, ok := c.reverts[block.Uint64()]; ok {
				return nil, NewRevertError(reason)
			}
		}
		value := msg.Value
		if value == nil {
			value = new(big.Int)
		}
		if _, err := c.simulateMint(msg.From, msg.Data, value); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return nil, NewRevertError("unsupported method " + method.Name)
}

func (c *Chain) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	c.mu.Lock()
	estimateErr := c.estimateErr
	c.mu.Unlock()
	if estimateErr != nil {
		return 0, estimateErr
	}
	if _, err := c.CallContract(ctx, msg, nil); err != nil {
		return 0, err
	}
	return MintGas, nil
}

func (c *Chain) BalanceAt(_ context.Context, addr common.Address, _ *big.Int) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bal, ok := c.balances[addr]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (c *Chain) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(ChainID), nil
}

func (c *Chain) PendingNonceAt(_ context.Context, addr common.Address) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nonces[addr], nil
}

func (c *Chain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(TipCap), nil
}

func (c *Chain) HeaderByNumber(_ context.Context, number *big.Int) (*ethtypes.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if number != nil && number.Uint64() > c.head {
		return nil, ethereum.NotFound
	}
	h := c.header()
	if number != nil {
		h.Number = new(big.Int).Set(number)
	}
	return h, nil
}

func (c *Chain) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	c.mu.Lock()
	if c.sendErr != nil {
		err := c.sendErr
		c.mu.Unlock()
		return err
	}
	from, err := ethtypes.Sender(c.signer, tx)
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != c.nonces[from] {
		c.mu.Unlock()
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", c.nonces[from], tx.Nonce())
	}
	c.nonces[from]++
	c.pending = append(c.pending, tx)
	auto := c.autoMine
	c.mu.Unlock()

	if auto {
		c.Mine()
	}
	return nil
}

func (c *Chain) TransactionReceipt(_ context.Context, hash common.Hash) (*ethtypes.Receipt, error) {
	c.mu.Lock()
	hook := c.beforeReceipt
	c.mu.Unlock()
	if hook != nil {
		hook(hash)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (c *Chain) SubscribeNewHead(_ context.Context, ch chan<- *ethtypes.Header) (ethereum.Subscription, error) {
	c.mu.Lock()
	if c.noSubscribe {
		c.mu.Unlock()
		return nil, rpc.ErrNotificationsUnsupported
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	return event.NewSubscription(func(quit <-chan struct{}) error {
		<-quit
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil
	}), nil
}
