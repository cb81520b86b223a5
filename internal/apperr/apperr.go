// Package apperr defines the error taxonomy shared across the wallet
// runtime (spec §7): a small set of machine-readable codes, each wrapping an
// underlying cause, grouped into wallet/protocol/storage families. Mirrors
// the teacher's idiom of typed sentinel errors per package (see
// accountsigner.ErrUnknownSignerType and friends) but centralized, since
// these codes cross every component boundary in this repository.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error classification.
type Code string

const (
	// Wallet errors.
	CodeLimitBreach      Code = "limit_breach"
	CodeSimulationFailed Code = "simulation_failed"
	CodeInsufficientFund Code = "insufficient_funds"
	CodeRPCError         Code = "rpc_error"
	CodeInvalidKeystore  Code = "invalid_keystore"
	CodeSigningFailed    Code = "signing_failed"
	CodeMainnetBlocked   Code = "mainnet_blocked"
	CodeInvalidConfig    Code = "invalid_config"

	// Protocol errors.
	CodeQuoteFailed        Code = "quote_failed"
	CodeSwapFailed         Code = "swap_failed"
	CodeSlippageExceeded   Code = "slippage_exceeded"
	CodePoolNotFound       Code = "pool_not_found"
	CodeAdapterUnavailable Code = "adapter_unavailable"
	CodePriceFetchFailed   Code = "price_fetch_failed"
	CodeInvalidMint        Code = "invalid_mint"

	// Storage errors.
	CodeClosedStore    Code = "closed_store"
	CodeSchemaMismatch Code = "schema_mismatch"
)

// Error is the concrete error type carrying a Code, a safe message, and an
// optional wrapped cause. Messages must never contain key material,
// destination addresses beyond the one under discussion, or password hints
// (spec §7).
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, apperr.New(code, "")) to match by code alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// New constructs an *Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the Code from err, if it (or something it wraps) is an
// *Error. ok is false otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// HasCode reports whether err (or something it wraps) carries code.
func HasCode(err error, code Code) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}
