// Package errors provides error handling for autoboat.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints and details for operators
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := store.Save(ctx, states); err != nil {
//	    return errors.Wrap(err, "failed to persist command state")
//	}
//
//	// Classify into the dispatcher taxonomy
//	return errors.Mark(err, errors.ErrTransport)
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
	Mark         = crdb.Mark
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails

	GetReportableStackTrace = crdb.GetReportableStackTrace
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors for the automation loop.
// Use these with errors.Is() and attach them with errors.Mark() so the original
// message and stack survive classification.
var (
	// ErrTransport indicates a send or receive failure at the chat transport.
	// Retried through backoff, never fatal to the process.
	ErrTransport = New("transport error")

	// ErrCorrelationTimeout indicates no matching reply arrived before the deadline.
	// A soft failure: the cooldown still advances.
	ErrCorrelationTimeout = New("correlation timeout")

	// ErrPersistence indicates the state store could not be read or written.
	// Fatal at startup load, recoverable mid-run.
	ErrPersistence = New("persistence error")

	// ErrPendingBusy indicates a pending action is already armed in the correlator.
	ErrPendingBusy = New("pending action already outstanding")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrInvalidConfig indicates the configuration failed validation
	ErrInvalidConfig = New("invalid configuration")

	// ErrClosed indicates an operation on a component that has been shut down
	ErrClosed = New("closed")
)

// IsTransportError checks if an error is or wraps ErrTransport
func IsTransportError(err error) bool {
	return err != nil && Is(err, ErrTransport)
}

// IsPersistenceError checks if an error is or wraps ErrPersistence
func IsPersistenceError(err error) bool {
	return err != nil && Is(err, ErrPersistence)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// NewTransportError creates a transport error with a formatted message
func NewTransportError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrTransport)
}

// WrapTransport marks err as a transport failure, keeping its message
func WrapTransport(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrTransport)
}

// WrapPersistence marks err as a persistence failure, keeping its message
func WrapPersistence(err error, context string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, context), ErrPersistence)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrNotFound)
}

// NewInvalidConfigError creates a configuration error with a formatted message
func NewInvalidConfigError(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrInvalidConfig)
}
