package llm

import (
	"errors"
	"fmt"
)

// Error types for classifying LLM errors.

// TransientError represents a temporary error that may succeed on retry.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient (retryable).
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// FatalError represents a permanent error that should not be retried.
type FatalError struct {
	err error
}

func (e *FatalError) Error() string {
	return e.err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.err
}

// NewFatalError wraps an error as fatal (non-retryable).
func NewFatalError(err error) error {
	return &FatalError{err: err}
}

// IsTransient returns true if the error is transient and should be retried.
func IsTransient(err error) bool {
	var transient *TransientError
	return errors.As(err, &transient)
}

// IsFatal returns true if the error is fatal and should not be retried.
func IsFatal(err error) bool {
	var fatal *FatalError
	return errors.As(err, &fatal)
}

// UnavailableError is raised when retries are exhausted. It carries enough
// context for the controller's fallback path and the support logs.
type UnavailableError struct {
	// RetryCount is the number of retries performed (attempts minus one).
	RetryCount int
	// LastStatus is the last HTTP status received, 0 for connection errors.
	LastStatus int
	// TimedOut reports whether the final failure was a deadline expiry.
	TimedOut bool

	err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("llm unavailable after %d retries (last status %d, timed out %t): %v",
		e.RetryCount, e.LastStatus, e.TimedOut, e.err)
}

func (e *UnavailableError) Unwrap() error {
	return e.err
}

// IsUnavailable reports whether err is an exhausted-retries LLM failure.
func IsUnavailable(err error) bool {
	var ue *UnavailableError
	return errors.As(err, &ue)
}
