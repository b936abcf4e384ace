// Package errors provides the error taxonomy shared by the timeline client.
package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode identifies an error class that callers can branch on.
type ErrorCode string

const (
	// General errors
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	ErrNotFound ErrorCode = "NOT_FOUND"
	ErrStorage  ErrorCode = "STORAGE_ERROR"
	ErrConfig   ErrorCode = "CONFIG_ERROR"

	// Input rejected before any network call
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Session errors
	ErrAuthRequired       ErrorCode = "AUTH_REQUIRED"
	ErrCredentialsMissing ErrorCode = "CREDENTIALS_MISSING"

	// Remote service errors (network, HTTP status, malformed payload, timeout)
	ErrRemote ErrorCode = "REMOTE_ERROR"
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

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Remote creates a REMOTE_ERROR carrying the server-provided message.
func Remote(message string, err error) *AppError {
	return Wrap(ErrRemote, message, err)
}

// Is checks if an error, or any error it wraps, carries the given code.
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost AppError in err's chain,
// or ErrInternal when err carries none.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// MessageOf returns the user-facing message of err: the AppError message
// when present, otherwise err.Error().
func MessageOf(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
