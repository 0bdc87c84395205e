package types

import (
	"github.com/ethereum/go-ethereum/common"
)

// TxStatus is the lifecycle status of a submitted transaction.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// TransactionHandle identifies the single transaction owned by a mint
// request.
type TransactionHandle struct {
	Hash        common.Hash `json:"hash"`
	Status      TxStatus    `json:"status"`
	BlockNumber uint64      `json:"blockNumber,omitempty"`
	Reason      string      `json:"reason,omitempty"`
}
