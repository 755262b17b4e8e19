package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across skillflow.
type ErrorCode string

// Input validation error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrMissingPrompt  ErrorCode = "MISSING_PROMPT"
	ErrMissingAPIKey  ErrorCode = "MISSING_API_KEY"
	ErrSkillNotFound  ErrorCode = "SKILL_NOT_FOUND"
	ErrToolNotFound   ErrorCode = "TOOL_NOT_FOUND"
)

// Upstream error codes
const (
	ErrUpstreamError    ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamStatus   ErrorCode = "UPSTREAM_STATUS"
	ErrUpstreamTimeout  ErrorCode = "UPSTREAM_TIMEOUT"
	ErrStreamReadFailed ErrorCode = "STREAM_READ_FAILED"
	ErrResultNotFound   ErrorCode = "RESULT_NOT_FOUND"
	ErrRateLimited      ErrorCode = "RATE_LIMITED"
	ErrAuthentication   ErrorCode = "AUTHENTICATION"
)

// Budget / limit error codes
const (
	ErrRecursionLimit  ErrorCode = "RECURSION_LIMIT"
	ErrBufferOverflow  ErrorCode = "BUFFER_OVERFLOW"
	ErrContextOverflow ErrorCode = "CONTEXT_OVERFLOW"
)

// Internal error codes
const (
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCanceled      ErrorCode = "CANCELED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError finds the first *Error in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsErrorCode reports whether err's chain contains an *Error with code.
func IsErrorCode(err error, code ErrorCode) bool {
	e, ok := AsError(err)
	return ok && e.Code == code
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}
