package spawn

import (
	"errors"
	"fmt"
)

// ErrorCode represents a categorized error type.
type ErrorCode int

const (
	ErrorUnknown ErrorCode = iota
	ErrorInvalidConfig

	// Connection lifecycle
	ErrorConnection
	ErrorDisconnected
	ErrorPongTimeout
	ErrorReconnectExhausted

	// Frames and queueing
	ErrorMalformedFrame
	ErrorSerialization
	ErrorQueueOverflow
)

// String returns the string representation of an ErrorCode.
func (e ErrorCode) String() string {
	switch e {
	case ErrorUnknown:
		return "unknown"
	case ErrorInvalidConfig:
		return "invalid_config"
	case ErrorConnection:
		return "connection_error"
	case ErrorDisconnected:
		return "disconnected"
	case ErrorPongTimeout:
		return "pong_timeout"
	case ErrorReconnectExhausted:
		return "reconnect_exhausted"
	case ErrorMalformedFrame:
		return "malformed_frame"
	case ErrorSerialization:
		return "serialization_error"
	case ErrorQueueOverflow:
		return "queue_overflow"
	default:
		return fmt.Sprintf("unknown_code_%d", e)
	}
}

// SpawnError is a structured error with code and context.
type SpawnError struct {
	Code    ErrorCode
	Message string
	Wrapped error
}

// Error implements the error interface.
func (e *SpawnError) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s (wrapped: %v)", e.Code, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error for errors.Unwrap support.
func (e *SpawnError) Unwrap() error {
	return e.Wrapped
}

// Is matches any *SpawnError with the same code.
func (e *SpawnError) Is(target error) bool {
	t, ok := target.(*SpawnError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new SpawnError with the given code and message.
func NewError(code ErrorCode, message string) *SpawnError {
	return &SpawnError{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with a SpawnError.
func WrapError(code ErrorCode, message string, err error) *SpawnError {
	return &SpawnError{
		Code:    code,
		Message: message,
		Wrapped: err,
	}
}

// CodeOf returns the code of the first SpawnError in err's chain.
func CodeOf(err error) ErrorCode {
	var se *SpawnError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrorUnknown
}

// IsConnectionError checks if an error is a connection-related error.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	switch CodeOf(err) {
	case ErrorConnection, ErrorDisconnected, ErrorPongTimeout, ErrorReconnectExhausted:
		return true
	}
	return false
}
