// Package tiermint is a client for minting tiered NFTs from a single ERC-721
// contract: it reads the contract state, submits paid mint transactions,
// waits for their confirmation and decodes the on-chain metadata of the
// minted token.
package tiermint

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vitwit/tiermint/cache"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/logger"
	"github.com/vitwit/tiermint/metadata"
	"github.com/vitwit/tiermint/metrics"
	"github.com/vitwit/tiermint/mint"
	"github.com/vitwit/tiermint/session"
	"github.com/vitwit/tiermint/settlement"
	"github.com/vitwit/tiermint/types"
	"github.com/vitwit/tiermint/utils"
	"github.com/vitwit/tiermint/verification"
)

// Backend is everything the client needs from the chain.
// *clients.EVMClient satisfies it.
type Backend interface {
	clients.ChainReader
	clients.TxBackend
}

// Minter is the main struct that wires the mint lifecycle together
type Minter struct {
	config  types.Config
	backend Backend
	closer  func()

	nft        *contract.TierNFT
	cache      *cache.ReadCache
	wallet     *clients.KeyWallet
	controller *mint.Controller
	presenter  *session.Presenter
	tiers      []types.TierOption

	logger   logger.Logger
	metrics  metrics.Recorder
	timeout  time.Duration
	approver clients.Approver
}

// New validates config, dials its RPC endpoint and builds a Minter. The
// websocket URL is preferred when set so new heads arrive by subscription.
func New(ctx context.Context, config types.Config, opts ...Option) (*Minter, error) {
	if err := utils.ValidateConfig(&config); err != nil {
		return nil, err
	}

	url := config.RPCUrl
	if config.WSUrl != "" {
		url = config.WSUrl
	}
	client, err := clients.NewEVMClient(ctx, config.Network, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create EVM client for %s: %w", config.Network, err)
	}

	m, err := NewWithBackend(config, client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	m.closer = client.Close
	return m, nil
}

// NewWithBackend builds a Minter over an existing backend. Without a private
// key the Minter is read-only and reports the wallet as disconnected.
func NewWithBackend(config types.Config, backend Backend, opts ...Option) (*Minter, error) {
	if err := utils.ValidateConfig(&config); err != nil {
		return nil, err
	}
	config = config.WithDefaults()

	m := &Minter{
		config:   config,
		backend:  backend,
		timeout:  30 * time.Second,
		approver: clients.AutoApprove,
	}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.initObservability(); err != nil {
		return nil, err
	}

	tiers, err := config.TierOptions()
	if err != nil {
		return nil, err
	}
	if err := utils.ValidateTiers(tiers); err != nil {
		return nil, &types.MintError{Code: types.ErrConfigError, Message: err.Error(), Err: err}
	}
	m.tiers = tiers

	address := common.HexToAddress(config.ContractAddress)
	m.nft, err = contract.NewTierNFT(address, backend, config.MintFunction)
	if err != nil {
		return nil, &types.MintError{Code: types.ErrConfigError, Message: err.Error(), Err: err}
	}

	m.cache = cache.New(m.nft,
		cache.WithLogger(m.logger),
		cache.WithMetrics(m.metrics),
		cache.WithNetwork(config.Network.String()),
		cache.WithFetchTimeout(m.timeout),
	)

	var signal session.WalletSignal
	if config.PrivateKey != "" {
		key, err := utils.PrivateKeyFromHex(config.PrivateKey)
		if err != nil {
			return nil, &types.MintError{Code: types.ErrConfigError, Message: "invalid private key", Err: err}
		}
		m.wallet = clients.NewKeyWallet(key, backend,
			clients.WithApprover(m.approver),
			clients.WithWalletLogger(m.logger),
		)
		signal = m.wallet

		m.controller, err = mint.NewController(mint.Deps{
			Wallet:   m.wallet,
			NFT:      m.nft,
			Cache:    m.cache,
			Preparer: verification.NewPreparer(backend, m.nft, m.timeout, m.logger),
			Waiter: settlement.NewWaiter(backend, config.Network, settlement.Options{
				Timeout:       config.ConfirmationTimeout,
				MaxBlocks:     config.ConfirmationBlocks,
				Confirmations: config.Confirmations,
				PollInterval:  config.PollInterval,
			}, m.logger),
			Tiers:   tiers,
			Network: config.Network,
			Logger:  m.logger,
			Metrics: m.metrics,
		})
		if err != nil {
			return nil, err
		}
	}

	var events session.MintEvents
	if m.controller != nil {
		events = m.controller
	}
	links := session.NewLinks(config.Network, address, config.ExplorerHost, config.MarketplaceHost)
	m.presenter = session.NewPresenter(signal, events, m.cache, links, m.logger)

	m.logger.Info("tiermint client ready", map[string]any{
		"network":  config.Network.String(),
		"contract": address.Hex(),
		"mint":     config.MintFunction,
		"readOnly": m.wallet == nil,
	})
	return m, nil
}

func (m *Minter) initObservability() error {
	if m.logger == nil {
		zl, err := logger.NewZapLogger(m.config.LogLevel, false)
		if err != nil {
			return &types.MintError{Code: types.ErrConfigError, Message: "failed to build logger", Err: err}
		}
		m.logger = zl
	}
	if m.metrics == nil && m.config.EnableMetrics {
		rec, err := metrics.NewPrometheusRecorder(prometheus.DefaultRegisterer)
		if err != nil {
			return &types.MintError{Code: types.ErrConfigError, Message: "failed to register metrics", Err: err}
		}
		m.metrics = rec
	}
	m.logger = logger.OrNoop(m.logger)
	m.metrics = metrics.OrNoop(m.metrics)
	return nil
}

// Connect connects the wallet. It fails for a read-only Minter.
func (m *Minter) Connect(ctx context.Context) error {
	if m.wallet == nil {
		return types.NewError(types.ErrPrepareFailed, nil, "please connect your wallet: no private key configured")
	}
	return m.wallet.Connect(ctx)
}

// Address is the wallet address, or the zero address when read-only.
func (m *Minter) Address() common.Address {
	if m.wallet == nil {
		return common.Address{}
	}
	return m.wallet.Address()
}

func (m *Minter) Config() types.Config {
	return m.config
}

func (m *Minter) Tiers() []types.TierOption {
	out := make([]types.TierOption, len(m.tiers))
	copy(out, m.tiers)
	return out
}

// Mint mints tier and waits for the outcome.
func (m *Minter) Mint(ctx context.Context, tier int) (*types.MintOutcome, error) {
	if m.controller == nil {
		return nil, types.NewError(types.ErrPrepareFailed, nil, "please connect your wallet")
	}
	return m.controller.Mint(ctx, tier)
}

// Start mints tier in the background.
func (m *Minter) Start(ctx context.Context, tier int) (<-chan *types.MintOutcome, error) {
	if m.controller == nil {
		return nil, types.NewError(types.ErrPrepareFailed, nil, "please connect your wallet")
	}
	return m.controller.Start(ctx, tier)
}

// TotalSupply reads the cached total supply.
func (m *Minter) TotalSupply(ctx context.Context) (types.ContractReadResult[*big.Int], error) {
	return m.cache.ReadTotalSupply(ctx)
}

// Metadata reads and decodes the metadata of tokenID.
func (m *Minter) Metadata(ctx context.Context, tokenID *big.Int) (*types.NFTMetadata, error) {
	uri, err := m.cache.ReadTokenURI(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	meta, err := metadata.Decode(uri.Value)
	if err != nil {
		m.metrics.IncCounter(metrics.DecodeFailures, map[string]string{
			"network": m.config.Network.String(),
			"status":  "error",
		})
		return nil, err
	}
	return &meta, nil
}

// ContractInfo is the contract's name and symbol.
type ContractInfo struct {
	Address common.Address `json:"address"`
	Name    string         `json:"name"`
	Symbol  string         `json:"symbol"`
}

func (m *Minter) ContractInfo(ctx context.Context) (*ContractInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	name, err := m.nft.Name(ctx)
	if err != nil {
		return nil, err
	}
	symbol, err := m.nft.Symbol(ctx)
	if err != nil {
		return nil, err
	}
	return &ContractInfo{Address: m.nft.Address(), Name: name, Symbol: symbol}, nil
}

// Watch refreshes the total supply on every new head until ctx is done.
func (m *Minter) Watch(ctx context.Context) error {
	heads := clients.Heads(ctx, m.backend, m.config.PollInterval, m.logger)
	return m.cache.Watch(ctx, heads, cache.TotalSupply())
}

// Session exposes the presentation state.
func (m *Minter) Session() *session.Presenter {
	return m.presenter
}

// Close detaches listeners, waits for background refreshes and closes the
// RPC connection when New opened it.
func (m *Minter) Close() {
	m.presenter.Close()
	m.cache.Wait()
	if m.closer != nil {
		m.closer()
	}
	if zl, ok := m.logger.(*logger.ZapLogger); ok {
		_ = zl.Sync()
	}
}

// Version information
const Version = "0.1.0"

// GetVersion returns version information
func GetVersion() map[string]interface{} {
	networks := make([]string, 0, len(types.SupportedNetworks()))
	for _, n := range types.SupportedNetworks() {
		networks = append(networks, n.String())
	}
	return map[string]interface{}{
		"library_version":    Version,
		"supported_networks": networks,
		"mint_functions":     []string{"mint", "safeMint"},
	}
}
