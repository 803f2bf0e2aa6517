// Package errors provides error code definitions for the liverelay core.
package errors

import "fmt"

// ErrorCode represents a unique error code carried across component boundaries.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Delivery errors
	ErrDeliveryFailed ErrorCode = "DELIVERY_FAILED" // connection failure or timeout
	ErrBackendStatus  ErrorCode = "BACKEND_STATUS"  // non-2xx response
	ErrUnknownKind    ErrorCode = "UNKNOWN_KIND"

	// Outbox errors
	ErrQueueUnavailable ErrorCode = "QUEUE_UNAVAILABLE"

	// State store errors
	ErrStorageLocked      ErrorCode = "STORAGE_LOCKED"
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"

	// Source connector errors
	ErrSourceNotLive      ErrorCode = "SOURCE_NOT_LIVE"
	ErrSourceDisconnected ErrorCode = "SOURCE_DISCONNECTED"
)

// retryable codes: failures worth another attempt without operator action.
var retryable = map[ErrorCode]bool{
	ErrDeliveryFailed:     true,
	ErrBackendStatus:      true,
	ErrStorageLocked:      true,
	ErrSourceDisconnected: true,
}

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

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of an AppError, or ErrInternal for any other error.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}

// Retryable reports whether the error represents a transient failure.
// Errors without a code are treated as permanent.
func Retryable(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return retryable[appErr.Code]
	}
	return false
}
