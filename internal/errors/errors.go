// Package errors provides error code definitions shared across the sync core.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a unique, stable error code surfaced to callers.
type ErrorCode string

const (
	// Failure taxonomy
	ErrNetwork    ErrorCode = "NETWORK_FAILURE"
	ErrServer     ErrorCode = "SERVER_FAILURE"
	ErrCache      ErrorCode = "CACHE_FAILURE"
	ErrAuth       ErrorCode = "AUTH_FAILURE"
	ErrValidation ErrorCode = "VALIDATION_FAILURE"

	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrNotFound ErrorCode = "NOT_FOUND"

	// Recording errors
	ErrRecordingTooShort ErrorCode = "RECORDING_TOO_SHORT"
	ErrRecordingTooLong  ErrorCode = "RECORDING_TOO_LONG"

	// Story errors
	ErrStoryTitleInvalid   ErrorCode = "STORY_TITLE_INVALID"
	ErrStoryContentInvalid ErrorCode = "STORY_CONTENT_INVALID"

	// Q&A errors
	ErrSessionLimitReached ErrorCode = "SESSION_LIMIT_REACHED"
	ErrSessionClosed       ErrorCode = "SESSION_CLOSED"

	// Sync errors
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrNoSyncHandler  ErrorCode = "NO_SYNC_HANDLER"
	ErrSyncFailed     ErrorCode = "SYNC_FAILED"

	// Crypto errors
	ErrCryptoFailed ErrorCode = "CRYPTO_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether err carries the given code, unwrapping as needed.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or ErrInternal for plain errors.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// IsRetryable reports whether a failed remote operation may succeed on a
// later sync pass. Validation and auth failures never are.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case ErrNetwork, ErrServer, ErrSyncFailed:
		return true
	default:
		return false
	}
}

// IsValidation reports whether err belongs to the validation failure
// family: caller-supplied data violated a documented bound and must be
// fixed by the caller, never retried.
func IsValidation(err error) bool {
	switch CodeOf(err) {
	case ErrValidation, ErrRecordingTooShort, ErrRecordingTooLong,
		ErrStoryTitleInvalid, ErrStoryContentInvalid,
		ErrSessionLimitReached, ErrSessionClosed:
		return true
	default:
		return false
	}
}
