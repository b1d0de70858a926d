package core

import (
	"errors"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrInvalidRequest,
		Message: "symbol change callback is required",
	}

	expected := "invalid_request_error: symbol change callback is required"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := &Error{
		Type:    ErrTransport,
		Message: "websocket dial failed",
		Code:    "dial_timeout",
	}

	expected := "transport_error: websocket dial failed (code: dial_timeout)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewParseError(t *testing.T) {
	err := NewParseError("price is not numeric", "SUPPORT:abc")
	if err.Type != ErrParse {
		t.Errorf("Type = %v, want %v", err.Type, ErrParse)
	}
	if err.Param != "SUPPORT:abc" {
		t.Errorf("Param = %q, want %q", err.Param, "SUPPORT:abc")
	}
}

func TestNewTransportError_Unwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	err := NewTransportError("session closed", underlying)
	if !errors.Is(err, underlying) {
		t.Errorf("expected errors.Is to find the underlying cause")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		typ  ErrorType
		want bool
	}{
		{ErrTransport, true},
		{ErrAPI, true},
		{ErrSideChannel, true},
		{ErrParse, false},
		{ErrExecution, false},
		{ErrInvalidRequest, false},
	}

	for _, tt := range tests {
		err := &Error{Type: tt.typ, Message: "x"}
		if got := err.IsRetryable(); got != tt.want {
			t.Errorf("IsRetryable(%s) = %v, want %v", tt.typ, got, tt.want)
		}
	}
}
