package clients

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/tiermint/contract"
	"github.com/vitwit/tiermint/types"
)

// EIP-1193 provider error codes
const (
	CodeUserRejected = 4001
	CodeUnauthorized = 4100
	CodeDisconnected = 4900
)

// ErrSignatureDeclined is returned by an Approver that refuses a transaction.
var ErrSignatureDeclined = errors.New("signature declined")

// IsUserRejection reports whether err means the user declined to sign.
func IsUserRejection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSignatureDeclined) || errors.Is(err, types.UserRejected) {
		return true
	}
	var re rpc.Error
	if errors.As(err, &re) && re.ErrorCode() == CodeUserRejected {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "user rejected")
}

// classifySendError maps a failure before the transaction hash is known.
// Everything that is not a user rejection is a preparation failure.
func classifySendError(err error) error {
	if IsUserRejection(err) {
		return types.NewError(types.ErrUserRejected, err, "user rejected the transaction")
	}
	if reason, ok := contract.RevertReason(err); ok {
		return types.NewError(types.ErrPrepareFailed, err, "transaction would revert: %s", reason)
	}
	var re rpc.Error
	if errors.As(err, &re) && (re.ErrorCode() == CodeUnauthorized || re.ErrorCode() == CodeDisconnected) {
		return types.NewError(types.ErrPrepareFailed, err, "wallet unavailable: %v", err)
	}
	return types.NewError(types.ErrPrepareFailed, err, "failed to prepare transaction: %v", err)
}
