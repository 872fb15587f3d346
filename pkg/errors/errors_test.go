package errors

import (
	"strings"
	"testing"
)

func TestChatErrorMessage(t *testing.T) {
	err := NewThrottledError("us-west-2", "too many tokens, slow down")
	msg := err.Error()

	if msg == "" {
		t.Error("error message should not be empty")
	}

	// Should contain key information
	contains := []string{"throttling_error", "us-west-2", "429"}
	for _, s := range contains {
		if !strings.Contains(msg, s) {
			t.Errorf("error message should contain %q, got %q", s, msg)
		}
	}
}

func TestChatErrorStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		err      *ChatError
		wantCode int
	}{
		{"throttled", NewThrottledError("r", "msg"), 429},
		{"access denied", NewAccessDeniedError("r", "msg"), 403},
		{"invalid request", NewInvalidRequestError("r", "msg"), 400},
		{"backend", NewBackendError("r", "msg"), 500},
		{"regions exhausted", NewRegionsExhaustedError([]string{"a", "b"}), 429},
		{"storage", NewStorageError("s3", "save", "msg"), 500},
		{"internal", NewInternalError("msg"), 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.HTTPStatusCode(); got != tt.wantCode {
				t.Errorf("HTTPStatusCode() = %d, want %d", got, tt.wantCode)
			}
		})
	}
}

func TestChatErrorRetryable(t *testing.T) {
	retryable := []*ChatError{
		NewThrottledError("r", "msg"),
		NewAccessDeniedError("r", "msg"),
	}
	for _, err := range retryable {
		if !err.Retryable {
			t.Errorf("%s should be retryable", err.Type)
		}
	}

	notRetryable := []*ChatError{
		NewInvalidRequestError("r", "msg"),
		NewBackendError("r", "msg"),
		NewRegionsExhaustedError([]string{"r"}),
		NewStorageError("fs", "load", "msg"),
		NewInternalError("msg"),
	}
	for _, err := range notRetryable {
		if err.Retryable {
			t.Errorf("%s should not be retryable", err.Type)
		}
	}
}

func TestRegionsExhaustedMessage(t *testing.T) {
	regions := []string{"us-west-2", "us-east-1", "us-east-2"}
	err := NewRegionsExhaustedError(regions)

	for _, r := range regions {
		if !strings.Contains(err.Message, r) {
			t.Errorf("exhausted message should name region %q, got %q", r, err.Message)
		}
	}
	if !strings.Contains(err.Message, "3") {
		t.Errorf("exhausted message should state the region count, got %q", err.Message)
	}
	if len(err.Regions) != 3 {
		t.Errorf("Regions = %v, want all 3 tried regions", err.Regions)
	}
}
