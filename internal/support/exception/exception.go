// Package exception provides the error type shared by all pipeline stages.
// Errors carry the originating module plus skip/retry classification, so the
// job runner can decide between skipping a bad input batch and failing the run.
package exception

import (
	"fmt"
	"runtime"
	"strings"
)

// BatchError is the error type raised by pipeline components.
// It holds the module where the error occurred, a message, the wrapped
// original error, and flags indicating whether it is retryable or skippable.
type BatchError struct {
	// Module indicates the component where the error occurred
	// (e.g., "sanitize", "aggregate", "trip_csv_reader", "config").
	Module string
	// Message is a concise description of the error.
	Message string
	// OriginalErr is the wrapped original error.
	OriginalErr error
	// isRetryable indicates whether this error is retryable.
	isRetryable bool
	// isSkippable indicates whether this error is skippable.
	isSkippable bool
	// StackTrace is the stack trace at the time of the error (for debugging).
	StackTrace string
}

// NewBatchError creates a new BatchError instance.
func NewBatchError(module, message string, originalErr error, isSkippable, isRetryable bool) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		isRetryable: isRetryable,
		isSkippable: isSkippable,
		StackTrace:  string(buf[:n]),
	}
}

// NewBatchErrorf creates a new BatchError using a format string.
// Optional flags and an error are extracted from the end of the variadic
// arguments, in the order: [isSkippable bool], [isRetryable bool],
// [originalErr error]. The remaining arguments feed fmt.Sprintf.
func NewBatchErrorf(module, format string, a ...interface{}) *BatchError {
	var originalErr error
	isRetryable := false
	isSkippable := false
	args := a

	if len(args) > 0 {
		if err, ok := args[len(args)-1].(error); ok {
			originalErr = err
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isRetryable = b
			args = args[:len(args)-1]
		}
	}
	if len(args) > 0 {
		if b, ok := args[len(args)-1].(bool); ok {
			isSkippable = b
			args = args[:len(args)-1]
		}
	}

	return NewBatchError(module, fmt.Sprintf(format, args...), originalErr, isSkippable, isRetryable)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Unwrap.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns whether this error is retryable.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// IsSkippable returns whether this error is skippable.
func (e *BatchError) IsSkippable() bool {
	return e.isSkippable
}

// IsBatchError reports whether the given error is a *BatchError.
func IsBatchError(err error) bool {
	if err == nil {
		return false
	}
	_, ok := err.(*BatchError)
	return ok
}

// IsSkippable reports whether an error may be skipped by the caller.
// Non-BatchError values are never skippable.
func IsSkippable(err error) bool {
	if be, ok := err.(*BatchError); ok {
		return be.IsSkippable()
	}
	return false
}

// IsTemporary reports whether an error looks transient (used by retry logic).
// The IsRetryable flag of a BatchError takes precedence.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	if be, ok := err.(*BatchError); ok {
		return be.IsRetryable()
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}

// ExtractErrorMessage extracts the message string from an error.
// For BatchError it returns the cleaner Message field.
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	if be, ok := err.(*BatchError); ok {
		return be.Message
	}
	return err.Error()
}
