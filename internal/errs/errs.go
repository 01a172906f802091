package errs

import (
	"errors"
	"fmt"
)

// Code is a stable, client-visible error identifier.
type Code string

const (
	CodeInsufficientFunds    Code = "insufficient_funds"
	CodeInvalidParameters    Code = "invalid_parameters"
	CodeRoundClosed          Code = "round_closed"
	CodeRoundAlreadyResolved Code = "round_already_resolved"
	CodeNotFound             Code = "not_found"
	CodeUnauthorized         Code = "unauthorized"
	CodeInternal             Code = "internal"

	// Invariant family. Always fatal to the operation.
	CodeInvariantViolation Code = "invariant_violation"
	CodeDoubleSettlement   Code = "double_settlement"
	CodeSeedReuse          Code = "seed_reuse"
	CodeSeedInUse          Code = "seed_in_use"
	CodeNegativeBalance    Code = "negative_balance"
)

// Error carries a Code plus a human message and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so errors.Is(err, ErrDoubleSettlement)
// works for errors built with New.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInsufficientFunds    = &Error{Code: CodeInsufficientFunds, Message: "insufficient funds"}
	ErrInvalidParameters    = &Error{Code: CodeInvalidParameters, Message: "invalid parameters"}
	ErrRoundClosed          = &Error{Code: CodeRoundClosed, Message: "round is not accepting bets"}
	ErrRoundAlreadyResolved = &Error{Code: CodeRoundAlreadyResolved, Message: "round already resolved"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, Message: "unauthorized"}
	ErrInvariantViolation   = &Error{Code: CodeInvariantViolation, Message: "invariant violation"}
	ErrDoubleSettlement     = &Error{Code: CodeDoubleSettlement, Message: "wager already settled"}
	ErrSeedReuse            = &Error{Code: CodeSeedReuse, Message: "nonce already used"}
	ErrSeedInUse            = &Error{Code: CodeSeedInUse, Message: "seed still in use"}
	ErrNegativeBalance      = &Error{Code: CodeNegativeBalance, Message: "balance would go negative"}
)

// New builds an Error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to a new Error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Invalid is shorthand for an invalid_parameters error.
func Invalid(format string, args ...any) *Error {
	return New(CodeInvalidParameters, format, args...)
}

// Invariant is shorthand for a generic invariant_violation error.
func Invariant(format string, args ...any) *Error {
	return New(CodeInvariantViolation, format, args...)
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsInvariant reports whether err belongs to the invariant family.
func IsInvariant(err error) bool {
	switch CodeOf(err) {
	case CodeInvariantViolation, CodeDoubleSettlement, CodeSeedReuse, CodeSeedInUse, CodeNegativeBalance:
		return true
	default:
		return false
	}
}

// IsUserRecoverable reports whether the caller can fix the condition by retrying
// later or with different input.
func IsUserRecoverable(err error) bool {
	switch CodeOf(err) {
	case CodeInsufficientFunds, CodeRoundClosed, CodeRoundAlreadyResolved:
		return true
	default:
		return false
	}
}
