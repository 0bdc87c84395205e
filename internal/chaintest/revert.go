package chaintest

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// revertSelector is the 4-byte selector of Error(string).
var revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

// RevertError mimics the JSON-RPC error a node returns for a reverted call:
// code 3 with the ABI encoded reason as data.
type RevertError struct {
	Reason string
	data   string
}

func NewRevertError(reason string) *RevertError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, _ := abi.Arguments{{Type: stringType}}.Pack(reason)
	return &RevertError{
		Reason: reason,
		data:   hexutil.Encode(append(append([]byte{}, revertSelector...), packed...)),
	}
}

func (e *RevertError) Error() string          { return "execution reverted: " + e.Reason }
func (e *RevertError) ErrorCode() int         { return 3 }
func (e *RevertError) ErrorData() interface{} { return e.data }

// RPCError is a JSON-RPC error with an arbitrary code, e.g. 4001 for a
// wallet rejection.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string  { return e.Message }
func (e *RPCError) ErrorCode() int { return e.Code }
