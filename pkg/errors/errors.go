package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeValidation         ErrorCode = "VALIDATION_FAILED"
	ErrCodeInvalidHandle      ErrorCode = "INVALID_HANDLE"
	ErrCodeNativeCall         ErrorCode = "NATIVE_CALL_FAILED"
	ErrCodeAlreadyInitialized ErrorCode = "ALREADY_INITIALIZED"
	ErrCodeNotInitialized     ErrorCode = "NOT_INITIALIZED"
	ErrCodeNotFound           ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit          ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// Sentinels usable with errors.Is against any AppError carrying the same code.
var (
	ErrInvalidHandle      = &AppError{Code: ErrCodeInvalidHandle, Message: "sender handle is no longer valid"}
	ErrAlreadyInitialized = &AppError{Code: ErrCodeAlreadyInitialized, Message: "engine already initialized"}
	ErrNotInitialized     = &AppError{Code: ErrCodeNotInitialized, Message: "engine not initialized"}
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}

	// NativeStatus is the engine status code for ErrCodeNativeCall errors.
	NativeStatus int32
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so callers can compare against the sentinels.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Context:    make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with application error
func WrapError(err error, code ErrorCode, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Cause:      err,
		Context:    make(map[string]interface{}),
	}
}

// NewValidationError reports a locally detected precondition violation.
// No engine call has been made when this is returned.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message, http.StatusBadRequest)
}

func NewInvalidHandleError(op string) *AppError {
	return NewAppError(ErrCodeInvalidHandle, "sender handle is no longer valid", http.StatusGone).
		WithContext("operation", op)
}

// NewNativeCallError carries a non-success engine status. message is the
// engine's own description and may be empty.
func NewNativeCallError(op string, status int32, message string) *AppError {
	msg := fmt.Sprintf("%s failed with status %d", op, status)
	if message != "" {
		msg = fmt.Sprintf("%s: %s", msg, message)
	}
	err := NewAppError(ErrCodeNativeCall, msg, http.StatusBadGateway).WithContext("operation", op)
	err.NativeStatus = status
	return err
}

func NewAlreadyInitializedError() *AppError {
	return NewAppError(ErrCodeAlreadyInitialized, "engine already initialized", http.StatusConflict)
}

func NewNotInitializedError() *AppError {
	return NewAppError(ErrCodeNotInitialized, "engine not initialized", http.StatusServiceUnavailable)
}

func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NewUnauthorizedError(message string) *AppError {
	return NewAppError(ErrCodeUnauthorized, message, http.StatusUnauthorized)
}

func NewRateLimitError() *AppError {
	return NewAppError(ErrCodeRateLimit, "rate limit exceeded", http.StatusTooManyRequests)
}

func NewInternalError(message string) *AppError {
	return NewAppError(ErrCodeInternal, message, http.StatusInternalServerError)
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	_, ok := err.(*AppError)
	return ok
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Code == code
}
