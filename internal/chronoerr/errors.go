// Package chronoerr defines the typed error kinds that cross component
// boundaries in Chronofact, so the HTTP surface can map failures to status
// codes without string-matching. Every kind here corresponds to one row of
// the error table: which component raises it, and whether it is recoverable.
package chronoerr

import "fmt"

// Kind identifies the category of a ChronoError for status-code mapping and
// recovery-policy dispatch.
type Kind string

const (
	KindInvalidRequest       Kind = "invalid_request"
	KindPayloadTooLarge      Kind = "payload_too_large"
	KindEmbeddingUnavailable Kind = "embedding_unavailable"
	KindRetrievalUnavailable Kind = "retrieval_unavailable"
	KindBackendBusy          Kind = "backend_busy"
	KindSchemaViolation      Kind = "schema_violation"
	KindRateLimited          Kind = "rate_limited"
	KindDeadlineExceeded     Kind = "deadline_exceeded"
	KindInternal             Kind = "internal"
)

// Error is the single typed-error carrier for Chronofact. It wraps an
// optional underlying cause while preserving a stable Kind for dispatch.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap constructs an *Error of the given kind, carrying cause as the
// unwrap target.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err itself is a *Error of the given kind; an error that
// wraps a *Error is not unwrapped.
func Is(err error, kind Kind) bool {
	var ce *Error
	if e, ok := err.(*Error); ok {
		ce = e
	} else {
		return false
	}
	return ce.Kind == kind
}

// KindOf extracts the Kind from err, defaulting to KindInternal when err is
// not a *Error.
func KindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return KindInternal
}
