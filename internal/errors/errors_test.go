package errors

import (
	stderrors "errors"
	"strings"
	"testing"
)

// TestErrorFormatting verifies the code and cause appear in the message.
func TestErrorFormatting(t *testing.T) {
	plain := New(ErrSessionNotFound, "no active session")
	if !strings.Contains(plain.Error(), "SESSION_NOT_FOUND") {
		t.Errorf("Expected code in message, got %q", plain.Error())
	}

	cause := stderrors.New("connection refused")
	wrapped := Wrap(ErrDeliveryFailed, "POST /events", cause)
	msg := wrapped.Error()
	if !strings.Contains(msg, "DELIVERY_FAILED") || !strings.Contains(msg, "connection refused") {
		t.Errorf("Expected code and cause in message, got %q", msg)
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("Expected wrapped error to unwrap to its cause")
	}
}

// TestIsAndCodeOf verifies code matching and the internal fallback.
func TestIsAndCodeOf(t *testing.T) {
	err := New(ErrStorageLocked, "partition stayed locked")

	if !Is(err, ErrStorageLocked) {
		t.Error("Expected Is to match the code")
	}
	if Is(err, ErrStorageUnavailable) {
		t.Error("Expected Is to reject other codes")
	}
	if CodeOf(err) != ErrStorageLocked {
		t.Errorf("Expected STORAGE_LOCKED, got %s", CodeOf(err))
	}
	if CodeOf(stderrors.New("plain")) != ErrInternal {
		t.Error("Expected plain errors to map to INTERNAL_ERROR")
	}
}

// TestRetryable verifies the transient/permanent split.
func TestRetryable(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want bool
	}{
		{ErrDeliveryFailed, true},
		{ErrBackendStatus, true},
		{ErrStorageLocked, true},
		{ErrSourceDisconnected, true},
		{ErrInvalid, false},
		{ErrValidation, false},
		{ErrSessionNotFound, false},
		{ErrSourceNotLive, false},
	}

	for _, tt := range tests {
		if got := Retryable(New(tt.code, "x")); got != tt.want {
			t.Errorf("Retryable(%s) = %v, want %v", tt.code, got, tt.want)
		}
	}

	if Retryable(stderrors.New("plain")) {
		t.Error("Expected plain errors to be permanent")
	}
}
