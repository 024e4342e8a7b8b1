// Package errors provides error types and classification for transfer operations.
package errors

import (
	"errors"
	"fmt"
)

// Error represents a transfer operation error with context about the
// operation that failed. It wraps the underlying error with the request,
// source, and destination involved.
type Error struct {
	// Op is the operation that failed (e.g., "authenticate", "stream", "verify")
	Op string

	// Kind is the machine-readable classification of the failure
	Kind Kind

	// RequestID is the external request/ticket identifier (if applicable)
	RequestID string

	// Source is the source object reference (if applicable)
	Source string

	// Dest is the destination address or path (if applicable)
	Dest string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	msg := fmt.Sprintf("ferry.%s [%s]", e.Op, e.Kind)
	if e.RequestID != "" {
		msg += fmt.Sprintf(" request %s", e.RequestID)
	}
	if e.Source != "" && e.Dest != "" {
		msg += fmt.Sprintf(" %s -> %s", e.Source, e.Dest)
	} else if e.Source != "" {
		msg += fmt.Sprintf(" source %s", e.Source)
	} else if e.Dest != "" {
		msg += fmt.Sprintf(" dest %s", e.Dest)
	}
	return fmt.Sprintf("%s: %v", msg, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithRequestID adds the external request identifier to an existing error.
func (e *Error) WithRequestID(id string) *Error {
	e.RequestID = id
	return e
}

// WithSource adds source object context to an existing error.
func (e *Error) WithSource(source string) *Error {
	e.Source = source
	return e
}

// WithDest adds destination context to an existing error.
func (e *Error) WithDest(dest string) *Error {
	e.Dest = dest
	return e
}

// WithMessage wraps the underlying error with a custom message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError creates a new Error with the given operation, kind, and
// underlying error.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// KindOf returns the Kind of the outermost *Error in err's chain,
// or KindInternal when the chain carries no classified error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Sentinel errors for expected conditions.
// These can be used with errors.Is() for error checking.
var (
	// ErrGrantNotFound indicates that no grant exists for the given id
	ErrGrantNotFound = errors.New("ferry: grant not found")

	// ErrGrantExpired indicates that the grant's validity window has passed
	ErrGrantExpired = errors.New("ferry: grant expired")

	// ErrDuplicateRequest indicates that the request id already consumed a grant
	ErrDuplicateRequest = errors.New("ferry: request id already used")

	// ErrInvalidRequest indicates an unknown or malformed request/ticket id
	ErrInvalidRequest = errors.New("ferry: invalid request id")

	// ErrChecksumMismatch indicates that the accumulated checksum does not
	// match the source's reported checksum
	ErrChecksumMismatch = errors.New("ferry: checksum mismatch")

	// ErrCancelled indicates that the job was cancelled before completion
	ErrCancelled = errors.New("ferry: transfer cancelled")

	// ErrSourceNotFound indicates that the source object does not exist
	ErrSourceNotFound = errors.New("ferry: source object not found")

	// ErrSourceAccessDenied indicates that the source denied the read
	ErrSourceAccessDenied = errors.New("ferry: source access denied")

	// ErrInvalidInput indicates that a request field is invalid
	ErrInvalidInput = errors.New("ferry: invalid input")

	// ErrNotConnected indicates a sink operation before Connect
	ErrNotConnected = errors.New("ferry: sink not connected")
)

// IsDuplicateRequest checks if an error indicates a reused request id.
// This is a convenience function that handles both sentinel errors and wrapped errors.
func IsDuplicateRequest(err error) bool {
	return errors.Is(err, ErrDuplicateRequest) || KindOf(err) == KindDuplicateRequest
}

// IsAuthorization checks if an error indicates an authorization failure,
// including duplicate and invalid request ids.
func IsAuthorization(err error) bool {
	switch KindOf(err) {
	case KindAuthorization, KindDuplicateRequest, KindInvalidRequest:
		return true
	}
	return errors.Is(err, ErrGrantNotFound) || errors.Is(err, ErrGrantExpired)
}

// IsTransient checks if an error is classified as a momentary transport
// failure that is safe to retry.
func IsTransient(err error) bool {
	return KindOf(err) == KindTransientTransport
}

// IsIntegrity checks if an error indicates a checksum mismatch.
func IsIntegrity(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) || KindOf(err) == KindIntegrity
}

// IsCancelled checks if an error indicates job cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled) || KindOf(err) == KindCancelled
}

// IsSourceNotFound checks if an error indicates a missing source object.
func IsSourceNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound) || KindOf(err) == KindSourceNotFound
}
