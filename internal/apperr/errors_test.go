package apperr

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(KindInvalidState, "test error")

	if err.Kind != KindInvalidState {
		t.Errorf("expected kind InvalidState, got %v", err.Kind)
	}
	if err.Message != "test error" {
		t.Errorf("expected message 'test error', got %q", err.Message)
	}
	if err.Err != nil {
		t.Error("expected Err to be nil")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without wrapped error",
			err:      New(KindNotFound, "room not found"),
			expected: "[NotFound] room not found",
		},
		{
			name:     "with wrapped error",
			err:      Wrap(KindDatabaseUnavailable, "query failed", errors.New("timeout")),
			expected: "[DatabaseUnavailable] query failed: timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindStorageUnavailable, "write failed", cause)

	if unwrapped := errors.Unwrap(err); unwrapped != cause {
		t.Error("expected unwrapped error to be the original cause")
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		kind     Kind
		expected bool
	}{
		{"matching kind", New(KindNotAuthorized, "nope"), KindNotAuthorized, true},
		{"wrapped matching kind", Wrap(KindNotAuthorized, "nope", errors.New("x")), KindNotAuthorized, true},
		{"different kind", New(KindNotFound, "nope"), KindNotAuthorized, false},
		{"non-app error", errors.New("plain"), KindNotAuthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.kind); got != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestWireCode(t *testing.T) {
	for kind := range kindNames {
		if New(kind, "x").WireCode() == 0 {
			t.Errorf("kind %v has no wire code assigned", kind)
		}
	}
}
