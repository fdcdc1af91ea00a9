package reinfer

import (
	"errors"
	"fmt"
)

// Kind classifies the failure modes of the sync API.
//
// Every error returned by this package is a [*Error] carrying exactly one
// kind. Callers inspect the kind via [IsKind] rather than defining one Go
// type per condition.
type Kind int

const (
	// KindConnection indicates a transport-level failure: the request never
	// produced an HTTP response.
	KindConnection Kind = iota + 1

	// KindValidation indicates malformed input, rejected either client-side
	// (reserved property names, before any network call) or by the backend
	// with HTTP 400.
	KindValidation

	// KindNoSuchDataset indicates the requested dataset does not exist
	// (HTTP 404).
	KindNoSuchDataset

	// KindEmptyDataset indicates a query against a dataset that holds no
	// comments for the requested source.
	KindEmptyDataset

	// KindRateLimited indicates comments are being uploaded too fast
	// (HTTP 429, after retries are exhausted).
	KindRateLimited

	// KindBackend covers every other backend failure: unexpected status
	// codes and unparseable response bodies.
	KindBackend
)

// String returns a short name for the kind, used in error messages.
func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindValidation:
		return "validation"
	case KindNoSuchDataset:
		return "no such dataset"
	case KindEmptyDataset:
		return "empty dataset"
	case KindRateLimited:
		return "rate limited"
	case KindBackend:
		return "backend"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every operation in this package.
//
// The Message field holds the human-readable description, extracted from the
// response body's "message" field when the backend provided one.
type Error struct {
	// Kind classifies the failure; see the Kind constants.
	Kind Kind

	// Message is a human-readable description of the failure.
	Message string

	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("reinfer: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any, for use with [errors.Is]
// and [errors.As] chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// IsKind reports whether err is (or wraps) a [*Error] of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// newError builds a [*Error] with a formatted message.
func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// wrapError builds a [*Error] that wraps cause, preserving it for
// [errors.Is] chains while presenting a kind-classified message.
func wrapError(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}
