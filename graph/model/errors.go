package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error codes used by ProviderError.
const (
	CodeInvalidAPIKey = "invalid_api_key"
	CodeRateLimited   = "rate_limited"
	CodeQuotaExceeded = "quota_exceeded"
	CodeTimeout       = "timeout"
	CodeUnavailable   = "unavailable"
	CodeSafetyFilter  = "safety_filter"
	CodeEmpty         = "empty_response"
	CodeAPI           = "api_error"
)

// ProviderError is a classified vendor failure.
type ProviderError struct {
	Provider  string
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a transient provider failure.
// Errors that are not a *ProviderError are treated as retryable.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return err != nil
}

// ClassifyError wraps a raw SDK error in a *ProviderError. The vendor SDKs
// expose HTTP failures only through their messages, so classification
// matches on status codes and error type names.
func ClassifyError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}

	classify := func(code, msg string, retryable bool) error {
		return &ProviderError{Provider: provider, Code: code, Message: msg, Retryable: retryable, Err: err}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return classify(CodeTimeout, "request cancelled or timed out", true)
	}
	if errors.Is(err, ErrEmptyResponse) {
		return classify(CodeEmpty, "no content returned", true)
	}

	msg := strings.ToLower(err.Error())
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("401", "403", "authentication", "api_key", "api key", "permission"):
		return classify(CodeInvalidAPIKey, "API key is invalid or expired", false)
	case has("429", "rate_limit", "rate limit", "too many requests"):
		return classify(CodeRateLimited, "API rate limit exceeded", true)
	case has("insufficient_quota", "quota", "billing"):
		return classify(CodeQuotaExceeded, "API quota exceeded", false)
	case has("timeout", "deadline"):
		return classify(CodeTimeout, "request timed out", true)
	case has("500", "502", "503", "529", "overloaded", "unavailable", "connection", "network"):
		return classify(CodeUnavailable, "service temporarily unavailable", true)
	default:
		return classify(CodeAPI, "request failed", false)
	}
}
