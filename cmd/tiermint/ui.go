package main

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/vitwit/tiermint"
	"github.com/vitwit/tiermint/session"
	"github.com/vitwit/tiermint/types"
	"github.com/vitwit/tiermint/utils"
)

type status struct {
	Network     types.Network          `json:"network"`
	Contract    *tiermint.ContractInfo `json:"contract"`
	TotalSupply *big.Int               `json:"totalSupply"`
	TokenID     *big.Int               `json:"tokenId,omitempty"`
	Metadata    *types.NFTMetadata     `json:"metadata,omitempty"`
	MetadataErr string                 `json:"metadataError,omitempty"`
}

type ui struct {
	mu   sync.Mutex
	out  io.Writer
	json bool

	lastSupply *big.Int

	title *color.Color
	good  *color.Color
	bad   *color.Color
	note  *color.Color
}

func newUI(out io.Writer, jsonOutput bool) *ui {
	return &ui{
		out:   out,
		json:  jsonOutput,
		title: color.New(color.FgCyan, color.Bold),
		good:  color.New(color.FgGreen, color.Bold),
		bad:   color.New(color.FgRed, color.Bold),
		note:  color.New(color.FgYellow),
	}
}

func (u *ui) emit(v any) {
	data, err := utils.NormalizeJSON(v)
	if err != nil {
		fmt.Fprintf(u.out, "{\"error\":%q}\n", err.Error())
		return
	}
	fmt.Fprintln(u.out, string(data))
}

// reported wraps an error that was already shown to the user.
type reported struct{ error }

func (r reported) Unwrap() error { return r.error }

// fail prints err and returns it for cobra's exit status.
func (u *ui) fail(err error) error {
	var r reported
	if errors.As(err, &r) {
		return err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.json {
		u.emit(map[string]string{"error": err.Error(), "code": types.Code(err)})
		return err
	}
	if code := types.Code(err); code != "" {
		u.bad.Fprintf(u.out, "%s ", code)
	}
	fmt.Fprintln(u.out, err.Error())
	return err
}

func (u *ui) tiers(tiers []types.TierOption, symbol string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.json {
		u.emit(tiers)
		return
	}
	u.title.Fprintln(u.out, "Tiers")
	for _, t := range tiers {
		fmt.Fprintf(u.out, "  %d  %-10s %s %s  %s\n", t.Index, t.Name, t.PriceEther(), symbol, t.ImageRef)
	}
}

func (u *ui) status(st status) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.json {
		u.emit(st)
		return
	}
	u.title.Fprintf(u.out, "%s (%s)\n", st.Contract.Name, st.Contract.Symbol)
	fmt.Fprintf(u.out, "  contract:     %s on %s\n", st.Contract.Address.Hex(), st.Network)
	fmt.Fprintf(u.out, "  total supply: %s\n", st.TotalSupply)
	if st.TokenID == nil {
		return
	}
	fmt.Fprintf(u.out, "  token #%s:\n", st.TokenID)
	if st.MetadataErr != "" {
		u.bad.Fprintf(u.out, "    %s\n", st.MetadataErr)
		return
	}
	u.metadata(st.Metadata, "    ")
}

func (u *ui) metadata(meta *types.NFTMetadata, indent string) {
	if meta == nil {
		return
	}
	fmt.Fprintf(u.out, "%sname:  %s\n", indent, meta.Name)
	fmt.Fprintf(u.out, "%simage: %s\n", indent, meta.Image)
	for _, attr := range meta.Attributes {
		fmt.Fprintf(u.out, "%s%s: %s\n", indent, attr.Key, attr.Value)
	}
}

func (u *ui) connected(addr common.Address) {
	if u.json {
		return
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	u.note.Fprintf(u.out, "wallet %s connected\n", utils.ShortAddress(addr))
}

// follow prints phase changes of the session until the returned func is
// called.
func (u *ui) follow(p *session.Presenter) func() {
	var last types.MintPhase = -1
	return p.Subscribe(func(s types.UISessionState) {
		if s.Phase == last || u.json {
			return
		}
		last = s.Phase
		u.mu.Lock()
		defer u.mu.Unlock()
		switch s.Phase {
		case types.PhasePreparing:
			u.note.Fprintln(u.out, session.HeadlineMinting)
		case types.PhaseSubmitted:
			fmt.Fprintf(u.out, "  submitted %s\n", s.TxHash.Hex())
		case types.PhaseConfirming:
			fmt.Fprintln(u.out, "  waiting for confirmation")
		}
	})
}

func (u *ui) outcome(v session.View, outcome *types.MintOutcome) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.json {
		if outcome == nil {
			return
		}
		data, err := utils.SerializeOutcome(outcome)
		if err != nil {
			return
		}
		fmt.Fprintln(u.out, string(data))
		return
	}

	switch v.Headline {
	case session.HeadlineSuccess:
		u.good.Fprintln(u.out, v.Headline)
		if outcome != nil && outcome.TokenID != nil {
			fmt.Fprintf(u.out, "  token #%s\n", outcome.TokenID)
		}
		if v.Name != "" {
			fmt.Fprintf(u.out, "  name:  %s\n", v.Name)
			fmt.Fprintf(u.out, "  image: %s\n", v.Image)
		}
	case session.HeadlineFailed:
		u.bad.Fprintln(u.out, v.Headline)
		fmt.Fprintf(u.out, "  %s\n", v.Reason)
	default:
		// rejected before the controller started
		return
	}
	if v.TxURL != "" {
		fmt.Fprintf(u.out, "  tx:     %s\n", v.TxURL)
	}
	if v.AssetURL != "" {
		fmt.Fprintf(u.out, "  market: %s\n", v.AssetURL)
	}
}

// supply prints the total supply when it differs from the last one printed.
func (u *ui) supply(supply *big.Int) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if supply == nil || (u.lastSupply != nil && u.lastSupply.Cmp(supply) == 0) {
		return
	}
	u.lastSupply = new(big.Int).Set(supply)
	if u.json {
		u.emit(map[string]any{"totalSupply": supply})
		return
	}
	fmt.Fprintf(u.out, "total supply: %s\n", supply)
}

func (u *ui) version(info map[string]interface{}) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.json {
		u.emit(info)
		return
	}
	u.title.Fprintf(u.out, "tiermint %v\n", info["library_version"])
	if networks, ok := info["supported_networks"].([]string); ok {
		fmt.Fprintf(u.out, "  networks: %s\n", strings.Join(networks, ", "))
	}
}
