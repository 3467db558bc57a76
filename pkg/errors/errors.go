package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"rtmpscout/internal/core/domain"
)

// ErrorCode represents application error codes
type ErrorCode string

const (
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrCodeCaptureInit    ErrorCode = "CAPTURE_INIT_FAILED"
	ErrCodeCaptureRunning ErrorCode = "CAPTURE_RUNNING"
	ErrCodeCaptureStopped ErrorCode = "CAPTURE_STOPPED"
	ErrCodeNotConnected   ErrorCode = "NOT_CONNECTED"
	ErrCodeApplyFailed    ErrorCode = "APPLY_FAILED"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
)

// AppError represents an application error with code and context
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
	Context    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

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

func NewInvalidInputError(message string) *AppError {
	return NewAppError(ErrCodeInvalidInput, message, http.StatusBadRequest)
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

// FromDomain maps the domain sentinel errors onto API error codes. Unknown
// errors become INTERNAL_ERROR.
func FromDomain(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		return appErr
	}

	switch {
	case stderrors.Is(err, domain.ErrCaptureInit):
		return WrapError(err, ErrCodeCaptureInit, "capture backend could not be opened", http.StatusServiceUnavailable)
	case stderrors.Is(err, domain.ErrCaptureRunning):
		return WrapError(err, ErrCodeCaptureRunning, "capture already running", http.StatusConflict)
	case stderrors.Is(err, domain.ErrCaptureStopped):
		return WrapError(err, ErrCodeCaptureStopped, "capture not running", http.StatusConflict)
	case stderrors.Is(err, domain.ErrNotConnected), stderrors.Is(err, domain.ErrConnectionLost):
		return WrapError(err, ErrCodeNotConnected, "broadcasting application not connected", http.StatusServiceUnavailable)
	case stderrors.Is(err, domain.ErrNoStreamSettings):
		return WrapError(err, ErrCodeNotFound, "no server and stream key discovered yet", http.StatusNotFound)
	case stderrors.Is(err, domain.ErrApplyFailed), stderrors.Is(err, domain.ErrApplyInFlight):
		return WrapError(err, ErrCodeApplyFailed, "stream settings were not applied", http.StatusBadGateway)
	default:
		return WrapError(err, ErrCodeInternal, "internal error", http.StatusInternalServerError)
	}
}

// IsAppError checks if error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError extracts AppError from error chain
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return nil
}
