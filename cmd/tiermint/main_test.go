package main

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitwit/tiermint/clients"
	"github.com/vitwit/tiermint/types"
)

const contractAddr = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tiermint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(strings.NewReader(""), &out)
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	err := cmd.Execute()
	return out.String(), err
}

func TestLoadConfigPrecedence(t *testing.T) {
	path := writeConfig(t, `
network: base-sepolia
rpc_url: https://sepolia.base.org
contract_address: `+contractAddr+`
mint_function: safeMint
confirmation_timeout: 90s
tiers:
  - name: Basic
    price: "0.01"
  - name: Gold
    price: "0.1"
`)
	t.Setenv("TIERMINT_RPC_URL", "https://base-sepolia.example.org")

	cmd := newRootCmd(strings.NewReader(""), &bytes.Buffer{})
	require.NoError(t, cmd.PersistentFlags().Set("confirmations", "4"))

	cfg, err := loadConfig(path, cmd.PersistentFlags())
	require.NoError(t, err)
	assert.Equal(t, types.NetworkBaseSepolia, cfg.Network)
	assert.Equal(t, "https://base-sepolia.example.org", cfg.RPCUrl)
	assert.Equal(t, "safeMint", cfg.MintFunction)
	assert.Equal(t, 90*time.Second, cfg.ConfirmationTimeout)
	assert.Equal(t, 4, cfg.Confirmations)
	assert.Equal(t, uint64(types.DefaultConfirmationBlocks), cfg.ConfirmationBlocks)
	assert.Equal(t, "sepolia.basescan.org", cfg.ExplorerHost)
	require.Len(t, cfg.Tiers, 2)
	assert.Equal(t, "Gold", cfg.Tiers[1].Name)
}

func TestLoadConfigRejectsInvalid(t *testing.T) {
	path := writeConfig(t, "network: solana\nrpc_url: https://example.org\ncontract_address: "+contractAddr+"\n")
	cmd := newRootCmd(strings.NewReader(""), &bytes.Buffer{})

	_, err := loadConfig(path, cmd.PersistentFlags())
	require.Error(t, err)
	assert.Equal(t, types.ErrConfigError, types.Code(err))

	_, err = loadConfig(filepath.Join(t.TempDir(), "missing.yaml"), cmd.PersistentFlags())
	require.Error(t, err)
}

func TestTiersCommand(t *testing.T) {
	path := writeConfig(t, "network: polygon-amoy\nrpc_url: https://rpc-amoy.polygon.technology\ncontract_address: "+contractAddr+"\n")

	out, err := execute(t, "tiers", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Basic")
	assert.Contains(t, out, "0.05 POL")

	out, err = execute(t, "tiers", "--config", path, "--json")
	require.NoError(t, err)
	var tiers []types.TierOption
	require.NoError(t, json.Unmarshal([]byte(out), &tiers))
	require.Len(t, tiers, 3)
	assert.Equal(t, "/nfts/2_premium.svg", tiers[2].ImageRef)
}

func TestMintCommandRejectsBadTier(t *testing.T) {
	out, err := execute(t, "mint", "gold")
	require.Error(t, err)
	assert.Contains(t, out, "PREPARE_FAILED")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "tiermint")
	assert.Contains(t, out, "polygon-amoy")
}

func TestPromptApprover(t *testing.T) {
	req := clients.TxRequest{
		To:        common.HexToAddress(contractAddr),
		Value:     types.MustEtherToWei("0.02"),
		Gas:       150000,
		GasFeeCap: big.NewInt(3_500_000_000),
	}

	var out bytes.Buffer
	approve := promptApprover(strings.NewReader("y\n"), &out)
	require.NoError(t, approve(context.Background(), req))
	assert.Contains(t, out.String(), "Send 0.02 to")

	approve = promptApprover(strings.NewReader("n\n"), &out)
	assert.ErrorIs(t, approve(context.Background(), req), clients.ErrSignatureDeclined)

	approve = promptApprover(strings.NewReader(""), &out)
	assert.ErrorIs(t, approve(context.Background(), req), clients.ErrSignatureDeclined)
}

func TestSupplyPrintsOnlyChanges(t *testing.T) {
	var out bytes.Buffer
	u := newUI(&out, false)

	u.supply(big.NewInt(3))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			u.supply(big.NewInt(3))
		}()
	}
	wg.Wait()
	u.supply(nil)
	u.supply(big.NewInt(4))

	assert.Equal(t, "total supply: 3\ntotal supply: 4\n", out.String())
}
