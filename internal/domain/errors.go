/**
 * @description
 * This file defines the error taxonomy shared by the service. Every failure a
 * caller can act on is represented as an *Error carrying a Kind; callers branch
 * on the kind via errors.As instead of string matching or panics.
 *
 * Kinds with no side effects (validation, unauthorized, not found, blocked,
 * insufficient funds) are rejected before any balance mutation. TransferFailed
 * means the credit leg failed and compensation restored the sender.
 * Inconsistent means compensation itself failed; it is never mapped to a
 * success response and always comes with an incident record.
 */

package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain failure.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindNotFound          ErrorKind = "not_found"
	KindAccountBlocked    ErrorKind = "account_blocked"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindTransferFailed    ErrorKind = "transfer_failed"
	KindInconsistent      ErrorKind = "inconsistent"
	KindRateLimited       ErrorKind = "rate_limited"
)

// Error is a domain failure with a machine-readable kind.
type Error struct {
	Kind    ErrorKind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// NewError creates a domain error with the given kind.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewErrorf creates a domain error with a formatted message.
func NewErrorf(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError creates a domain error that wraps an underlying cause.
func WrapError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// KindOf returns the kind of err, or "" if err carries no domain kind.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
