package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/vitwit/tiermint/types"
)

var (
	_ ChainReader = (*EVMClient)(nil)
	_ TxBackend   = (*EVMClient)(nil)
)

// EVMClient is the chain collaborator backed by a JSON-RPC endpoint.
type EVMClient struct {
	*ethclient.Client

	network types.Network
	rpcURL  string
}

// NewEVMClient dials rpcURL and checks that the endpoint serves network.
// A websocket URL enables head subscriptions; over HTTP heads are polled.
func NewEVMClient(ctx context.Context, network types.Network, rpcURL string) (*EVMClient, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, rpcURL)
	if err != nil {
		return nil, types.NewError(types.ErrChainQuery, err, "failed to connect to RPC %s: %v", rpcURL, err)
	}

	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		eth.Close()
		return nil, types.NewError(types.ErrChainQuery, err, "failed to read chain id: %v", err)
	}
	if network != types.NetworkLocal && chainID.Int64() != network.Info().ChainID {
		eth.Close()
		return nil, &types.MintError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("rpc endpoint serves chain %s, network %s expects %d", chainID, network, network.Info().ChainID),
		}
	}

	return &EVMClient{
		Client:  eth,
		network: network,
		rpcURL:  rpcURL,
	}, nil
}

func (e *EVMClient) GetNetwork() types.Network {
	return e.network
}

func (e *EVMClient) RPCURL() string {
	return e.rpcURL
}
