package contract

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/vitwit/tiermint/types"
)

const revertedMessage = "execution reverted"

// RevertReason extracts the revert reason carried by an eth_call or
// eth_estimateGas error. ok is false when err is not a revert.
func RevertReason(err error) (reason string, ok bool) {
	if err == nil {
		return "", false
	}

	var de rpc.DataError
	if errors.As(err, &de) {
		if s, isString := de.ErrorData().(string); isString {
			if data, derr := hexutil.Decode(s); derr == nil {
				if reason, uerr := abi.UnpackRevert(data); uerr == nil {
					return reason, true
				}
				return revertedMessage, true
			}
		}
	}

	msg := err.Error()
	if i := strings.Index(msg, revertedMessage); i >= 0 {
		reason := strings.TrimSpace(strings.TrimPrefix(msg[i+len(revertedMessage):], ":"))
		if reason == "" {
			reason = revertedMessage
		}
		return reason, true
	}
	return "", false
}

// classifyCallError maps a failed read into ContractReverted or
// ChainQueryError.
func classifyCallError(method string, err error) error {
	if reason, ok := RevertReason(err); ok {
		return types.NewError(types.ErrContractReverted, err, "%s reverted: %s", method, reason)
	}
	return types.NewError(types.ErrChainQuery, err, "%s query failed: %v", method, err)
}
