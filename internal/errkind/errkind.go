// Package errkind defines the exhaustive set of error kinds corpusvault's
// public API surfaces, and the conversion of low-level failures into them.
package errkind

import (
	"errors"
	"fmt"
)

// Kind is one of the six error kinds the core contract exposes.
type Kind string

const (
	// Usage indicates a caller error: reserved vault name, empty input where
	// forbidden, or a dimension mismatch found while loading configuration.
	Usage Kind = "USAGE"

	// StoreIO indicates a transient I/O failure in the persistence layer.
	StoreIO Kind = "STORE_IO"

	// StoreSchema indicates an invariant violation in the persisted schema
	// (name collision, dimension mismatch against an existing vault).
	StoreSchema Kind = "STORE_SCHEMA"

	// BackendUnavailable indicates an optional backend is not usable in this
	// build or environment (e.g. CGO disabled, extension failed to load).
	BackendUnavailable Kind = "BACKEND_UNAVAILABLE"

	// Timeout indicates a per-call deadline expired before the Store
	// operation completed.
	Timeout Kind = "TIMEOUT"

	// ExternalModule indicates the segmenter, embedder, reranker, or
	// splitter collaborator failed.
	ExternalModule Kind = "EXTERNAL_MODULE"
)

// Error is the structured error type returned across the public API.
// Its Kind is stable and suitable for errors.Is/errors.As based dispatch.
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

// Is matches another *Error with the same Kind, so callers can write
// errors.Is(err, errkind.New(errkind.Usage, "", nil)).
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

// New creates an Error of the given kind.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrap creates an Error of the given kind from an existing error, reusing
// its message. Returns nil if err is nil.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Cause: err}
}

// Of returns the Kind of err if it is (or wraps) an *Error, and ok=true.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) an *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
