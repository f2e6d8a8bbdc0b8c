package errors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the handler boundary.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindUnauthorized Kind = "unauthorized"
	KindInvalidInput Kind = "invalid_input"
	KindInternal     Kind = "internal"
)

// Error is a typed domain error. Message is safe to show to the originating
// client; Err carries the underlying cause for server-side logs.
type Error struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors of the same kind and message so that errors.Is works
// against the predefined values below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New creates a new Error instance.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches a client-safe message to an existing error.
func Wrap(err error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Predefined errors for the collaboration core.
var (
	ErrAssignmentNotFound = New(KindNotFound, "Assignment not found")
	ErrUnauthorized       = New(KindUnauthorized, "Unauthorized to access this assignment")
	ErrNotJoined          = New(KindUnauthorized, "Not joined to this assignment")
	ErrInvalidInput       = New(KindInvalidInput, "Invalid input")
	ErrInvalidPayload     = New(KindInvalidInput, "Invalid event payload")
	ErrEmptyMessage       = New(KindInvalidInput, "Message body cannot be empty")
	ErrMessageTooLong     = New(KindInvalidInput, "Message body is too long")
	ErrRateLimited        = New(KindInvalidInput, "Rate limit exceeded")
	ErrInternal           = New(KindInternal, "Internal server error")
)

// FromError normalises any error into an *Error. Unknown errors become
// Internal so their details never reach a client.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, KindInternal, ErrInternal.Message)
}

// Invalid builds an InvalidInput error with a specific message.
func Invalid(message string) *Error {
	return New(KindInvalidInput, message)
}

// Internal wraps a persistence or infrastructure failure.
func Internal(err error) *Error {
	return Wrap(err, KindInternal, ErrInternal.Message)
}

// KindOf returns the kind of err after normalisation.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return FromError(err).Kind
}
