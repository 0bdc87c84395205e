package session

import (
	"github.com/vitwit/tiermint/types"
)

const (
	HeadlineConnect = "Please connect your wallet."
	HeadlineMinting = "Minting..."
	HeadlineSuccess = "Mint Successful"
	HeadlineFailed  = "Mint Failed"
	HeadlineReady   = "Choose a tier to mint"
)

// View is the rendered form of a UISessionState.
type View struct {
	Headline string
	Modal    bool
	CanMint  bool

	// set after a mint finished
	Name     string
	Image    string
	Reason   string
	TxURL    string
	AssetURL string
}

// View renders the current state.
func (p *Presenter) View() View {
	return Render(p.Snapshot(), p.links)
}

// Render maps a state onto its view.
func Render(s types.UISessionState, links Links) View {
	v := View{
		Modal:   s.ModalVisible,
		CanMint: s.WalletConnected && !s.Minting,
	}

	switch {
	case !s.WalletConnected:
		v.Headline = HeadlineConnect
		v.Modal = false
	case s.Minting:
		v.Headline = HeadlineMinting
		v.TxURL = links.Tx(s.TxHash)
	case s.ModalVisible && s.Outcome != nil:
		out := s.Outcome
		if out.Tx != nil {
			v.TxURL = links.Tx(out.Tx.Hash)
		}
		if out.Err != nil {
			v.Headline = HeadlineFailed
			v.Reason = out.Err.Error()
			break
		}
		v.Headline = HeadlineSuccess
		v.AssetURL = links.Asset(out.TokenID)
		meta := out.Metadata
		if meta == nil {
			meta = s.LatestMetadata
		}
		if meta != nil {
			v.Name = meta.Name
			v.Image = meta.Image
		}
	default:
		v.Headline = HeadlineReady
	}
	return v
}
