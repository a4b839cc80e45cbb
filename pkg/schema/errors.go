package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeForbidden        = "FORBIDDEN"
	ErrCodeBackend          = "BACKEND_ERROR"
	ErrCodeTransport        = "TRANSPORT_UNAVAILABLE"
	ErrCodeSnapshot         = "SNAPSHOT_FAILED"
	ErrCodeMalformedPayload = "MALFORMED_PAYLOAD"
	ErrCodeCrossInstance    = "CROSS_INSTANCE"
	ErrCodeClosed           = "CLOSED"
	ErrCodeExpression       = "EXPRESSION_ERROR"
)

// ConsoleError is the structured error type for all console operations.
type ConsoleError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	InstanceID string         `json:"instance_id,omitempty"`
	Cause      error          `json:"-"`
}

func (e *ConsoleError) Error() string {
	if e.InstanceID != "" {
		return fmt.Sprintf("[%s] instance %s: %s", e.Code, e.InstanceID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ConsoleError) Unwrap() error {
	return e.Cause
}

// Is matches another *ConsoleError by code, so errors.Is(err, &ConsoleError{Code: X}) works.
func (e *ConsoleError) Is(target error) bool {
	t, ok := target.(*ConsoleError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// NewError creates a new ConsoleError.
func NewError(code, message string) *ConsoleError {
	return &ConsoleError{Code: code, Message: message}
}

// NewErrorf creates a new ConsoleError with a formatted message.
func NewErrorf(code, format string, args ...any) *ConsoleError {
	return &ConsoleError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithInstance attaches a workflow instance ID to the error.
func (e *ConsoleError) WithInstance(instanceID string) *ConsoleError {
	e.InstanceID = instanceID
	return e
}

// WithCause attaches an underlying cause.
func (e *ConsoleError) WithCause(err error) *ConsoleError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *ConsoleError) WithDetails(details map[string]any) *ConsoleError {
	e.Details = details
	return e
}

// IsRetryable reports whether the failure may succeed on a later attempt.
// Only transport and backend failures qualify; data and caller errors never do.
func (e *ConsoleError) IsRetryable() bool {
	switch e.Code {
	case ErrCodeTransport, ErrCodeBackend:
		return true
	default:
		return false
	}
}

// Code extracts the error code of the first *ConsoleError in the chain, or "".
func Code(err error) string {
	var ce *ConsoleError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}
