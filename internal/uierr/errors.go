// Package uierr defines the closed set of failure kinds raised by the
// matching and state-tracking engine. Callers branch on the kind instead
// of inspecting message strings.
package uierr

import (
	"errors"
	"fmt"
)

// Kind classifies an engine failure
type Kind int

const (
	// Unknown covers errors that did not originate in the engine
	Unknown Kind = iota
	// NotFound means a template or element was absent within the search budget
	NotFound
	// Timeout means a wait loop's deadline passed
	Timeout
	// Ambiguous means competing observations could not be resolved: equal
	// scores for opposite states, or multiple templates resolving to
	// different regions when a single element was expected
	Ambiguous
	// Duplicate means two declared names resolved to the same physical region
	Duplicate
	// InvalidState means an engine invariant was violated or an operation
	// was requested on an undiscovered or incompatible element set
	InvalidState
	// Canceled means the caller's context was canceled mid-wait
	Canceled
)

// String returns the kind's name
func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Timeout:
		return "timeout"
	case Ambiguous:
		return "ambiguous"
	case Duplicate:
		return "duplicate"
	case InvalidState:
		return "invalid_state"
	case Canceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is a classified engine failure
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping a cause
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf creates an error of the given kind wrapping a cause with a
// formatted message
func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf returns the kind of err, or Unknown if err is not an engine error
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind anywhere in its chain
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
