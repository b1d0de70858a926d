package core

import (
	"fmt"
)

// Error is the shared error value for expected failures across components.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest covers setup-time misconfiguration (missing callbacks,
	// nil dependencies). These are the only errors that may escape a
	// constructor as a hard failure.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrTransport covers socket failure, dial timeout and auth rejection on
	// the realtime connection.
	ErrTransport ErrorType = "transport_error"
	// ErrParse covers malformed command tokens and unresolvable symbols.
	// Parse errors are contained to the offending token and never abort a
	// multi-command parse.
	ErrParse ErrorType = "parse_error"
	// ErrExecution covers a missing chart capability or callback at command
	// execution time.
	ErrExecution ErrorType = "execution_error"
	// ErrPlayback covers audio decode/play failures; the playback queue skips
	// the frame and advances.
	ErrPlayback ErrorType = "playback_error"
	// ErrSideChannel covers non-critical side effects (transcript persistence,
	// render-job enqueue) that must never block the voice loop.
	ErrSideChannel ErrorType = "side_channel_error"
	// ErrNotFound covers lookups that legitimately miss (unknown job id,
	// unknown drawing id).
	ErrNotFound ErrorType = "not_found_error"
	// ErrAPI covers upstream HTTP failures (agent endpoint, symbol search,
	// market data).
	ErrAPI ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewTransportError creates a transport error wrapping the underlying cause.
func NewTransportError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrTransport,
		Message:    message,
		Underlying: underlying,
	}
}

// NewParseError creates a parse error for a single token or pattern.
func NewParseError(message, param string) *Error {
	return &Error{
		Type:    ErrParse,
		Message: message,
		Param:   param,
	}
}

// NewExecutionError creates an execution error.
func NewExecutionError(message string) *Error {
	return &Error{
		Type:    ErrExecution,
		Message: message,
	}
}

// NewPlaybackError creates a playback error wrapping the decode/play cause.
func NewPlaybackError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrPlayback,
		Message:    message,
		Underlying: underlying,
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewAPIError creates a generic upstream API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewSideChannelError creates a side channel error. Callers log these and
// continue; they are never propagated into the voice loop.
func NewSideChannelError(message string, underlying error) *Error {
	return &Error{
		Type:       ErrSideChannel,
		Message:    message,
		Underlying: underlying,
	}
}

// IsRetryable returns true if the error is retryable. Transport errors are
// always retryable because the connection manager clears in-flight state
// before surfacing them.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrTransport, ErrAPI, ErrSideChannel:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}
