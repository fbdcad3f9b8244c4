// Package apperr defines the stable error kinds returned by the fulfillment core.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "NOT_FOUND"
	KindForbidden          Kind = "FORBIDDEN"
	KindEmptyCart          Kind = "EMPTY_CART"
	KindProductUnavailable Kind = "PRODUCT_UNAVAILABLE"
	KindInsufficientStock  Kind = "INSUFFICIENT_STOCK"
	KindInvalidStatus      Kind = "INVALID_STATUS"
	KindAlreadyPaid        Kind = "ALREADY_PAID"
	KindNoPayableAmount    Kind = "NO_PAYABLE_AMOUNT"
	KindSignatureInvalid   Kind = "SIGNATURE_INVALID"
	KindConflict           Kind = "CONFLICT"
	KindInvalidInput       Kind = "INVALID_INPUT"
	KindInternal           Kind = "INTERNAL"
)

// Error carries a kind plus a human-readable message. Err, when set, is the
// underlying cause and is reachable through errors.Unwrap.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so the package sentinels below work
// with errors.Is regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound           = &Error{Kind: KindNotFound, Msg: "not found"}
	ErrForbidden          = &Error{Kind: KindForbidden, Msg: "forbidden"}
	ErrEmptyCart          = &Error{Kind: KindEmptyCart, Msg: "cart is empty"}
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable, Msg: "product not available"}
	ErrInsufficientStock  = &Error{Kind: KindInsufficientStock, Msg: "insufficient stock"}
	ErrInvalidStatus      = &Error{Kind: KindInvalidStatus, Msg: "invalid status"}
	ErrAlreadyPaid        = &Error{Kind: KindAlreadyPaid, Msg: "order already paid"}
	ErrNoPayableAmount    = &Error{Kind: KindNoPayableAmount, Msg: "order has no payable amount"}
	ErrSignatureInvalid   = &Error{Kind: KindSignatureInvalid, Msg: "signature verification failed"}
	ErrConflict           = &Error{Kind: KindConflict, Msg: "conflict"}
	ErrInvalidInput       = &Error{Kind: KindInvalidInput, Msg: "invalid input"}
)

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func NotFound(format string, args ...any) *Error { return New(KindNotFound, format, args...) }
func Forbidden(format string, args ...any) *Error { return New(KindForbidden, format, args...) }
func Conflict(format string, args ...any) *Error { return New(KindConflict, format, args...) }
func InvalidInput(format string, args ...any) *Error {
	return New(KindInvalidInput, format, args...)
}

// KindOf reports the kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Message returns the user-facing message for err. Errors without a kind are
// reported generically so storage details never leak to callers.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Msg
	}
	return "internal error"
}
