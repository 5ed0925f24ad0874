package model

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// TestClassifyError verifies SDK errors map to codes and retryability.
func TestClassifyError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		code      string
		retryable bool
	}{
		{"auth", errors.New(`POST "/v1/messages": 401 Unauthorized`), CodeInvalidAPIKey, false},
		{"rate limit", errors.New("429 Too Many Requests"), CodeRateLimited, true},
		{"quota", errors.New("insufficient_quota: check your plan"), CodeQuotaExceeded, false},
		{"timeout", errors.New("request timeout after 30s"), CodeTimeout, true},
		{"overloaded", errors.New("529 overloaded_error"), CodeUnavailable, true},
		{"context", fmt.Errorf("call: %w", context.DeadlineExceeded), CodeTimeout, true},
		{"empty", ErrEmptyResponse, CodeEmpty, true},
		{"other", errors.New("invalid_request_error: bad model"), CodeAPI, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ClassifyError("openai", tt.err)
			var pe *ProviderError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ProviderError, got %T", err)
			}
			if pe.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, pe.Code)
			}
			if pe.Retryable != tt.retryable || IsRetryable(err) != tt.retryable {
				t.Errorf("expected retryable=%v", tt.retryable)
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("classified error should wrap the original")
			}
			if pe.Provider != "openai" {
				t.Errorf("expected provider openai, got %q", pe.Provider)
			}
		})
	}
}

// TestClassifyError_Passthrough verifies nil and already classified errors.
func TestClassifyError_Passthrough(t *testing.T) {
	if ClassifyError("x", nil) != nil {
		t.Error("expected nil for nil error")
	}
	pe := &ProviderError{Provider: "google", Code: CodeSafetyFilter, Message: "blocked"}
	if got := ClassifyError("anthropic", pe); got != error(pe) {
		t.Errorf("expected same error, got %v", got)
	}
	if IsRetryable(nil) {
		t.Error("nil error is not retryable")
	}
	if !IsRetryable(errors.New("plain")) {
		t.Error("unclassified errors are retryable")
	}
}
