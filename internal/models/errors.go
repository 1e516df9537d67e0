package models

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExhausted         = errors.New("number pool exhausted")
	ErrTransient         = errors.New("transient failure")
)

// ErrorKind is the stable name of an error class reported to callers.
type ErrorKind string

const (
	KindNotFound          ErrorKind = "not_found"
	KindConflict          ErrorKind = "conflict"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindExhausted         ErrorKind = "exhausted"
	KindTransient         ErrorKind = "transient"
	KindInternal          ErrorKind = "internal"
)

func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrExhausted):
		return KindExhausted
	case errors.Is(err, ErrTransient):
		return KindTransient
	default:
		return KindInternal
	}
}
