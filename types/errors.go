package types

import (
	"errors"
	"fmt"
)

// MintError is the error type surfaced by every stage of the mint lifecycle.
// Two MintErrors match under errors.Is when their codes are equal.
type MintError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *MintError) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Message
}

func (e *MintError) Unwrap() error {
	return e.Err
}

func (e *MintError) Is(target error) bool {
	var t *MintError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Error codes
const (
	ErrUserRejected      = "USER_REJECTED"
	ErrPrepareFailed     = "PREPARE_FAILED"
	ErrChainQuery        = "CHAIN_QUERY_ERROR"
	ErrContractReverted  = "CONTRACT_REVERTED"
	ErrTransactionFailed = "TRANSACTION_FAILED"
	ErrMalformedMetadata = "MALFORMED_METADATA"
	ErrAlreadyMinting    = "ALREADY_MINTING"
	ErrConfigError       = "CONFIG_ERROR"
)

// Sentinels for errors.Is comparisons.
var (
	UserRejected      = &MintError{Code: ErrUserRejected, Message: "user rejected the request"}
	PrepareFailed     = &MintError{Code: ErrPrepareFailed, Message: "failed to prepare mint transaction"}
	ChainQueryError   = &MintError{Code: ErrChainQuery, Message: "chain query failed"}
	ContractReverted  = &MintError{Code: ErrContractReverted, Message: "contract call reverted"}
	TransactionFailed = &MintError{Code: ErrTransactionFailed, Message: "transaction failed"}
	MalformedMetadata = &MintError{Code: ErrMalformedMetadata, Message: "malformed token metadata"}
	AlreadyMinting    = &MintError{Code: ErrAlreadyMinting, Message: "a mint is already in progress"}
)

// NewError builds a MintError with a formatted message.
func NewError(code string, cause error, format string, args ...any) *MintError {
	return &MintError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Err:     cause,
	}
}

// Code returns the MintError code carried by err, or "" when err is not a
// MintError.
func Code(err error) string {
	var me *MintError
	if errors.As(err, &me) {
		return me.Code
	}
	return ""
}
