package ai

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aiassist/core/internal/pkg/apperr"
)

// ValidationError is returned for unusable input before any provider call.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

var (
	ErrEmptyMessage   = &ValidationError{Reason: "Message cannot be empty"}
	ErrMessageTooLong = &ValidationError{Reason: fmt.Sprintf("Message exceeds maximum length of %d characters", MaxMessageLength)}
)

type FailureKind string

const (
	KindRateLimited FailureKind = "RATE_LIMITED"
	KindAuthFailure FailureKind = "AUTH_FAILURE"
	KindUnavailable FailureKind = "PROVIDER_UNAVAILABLE"
	KindFailed      FailureKind = "PROVIDER_ERROR"
)

// ProviderError classifies a failed completion call.
type ProviderError struct {
	Kind       FailureKind
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s provider error (%s)", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" status %d", e.StatusCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether a client may retry with backoff.
func (e *ProviderError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindUnavailable
}

// UserMessage is safe to show to end users.
func (e *ProviderError) UserMessage() string {
	switch e.Kind {
	case KindRateLimited:
		return "AI service is currently busy. Please try again in a moment."
	case KindAuthFailure:
		return "AI service authentication failed. Please contact support."
	case KindUnavailable:
		return "AI service is temporarily unavailable. Please try again later."
	default:
		return "Failed to generate AI response. Please try again."
	}
}

func kindForStatus(status int) FailureKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuthFailure
	case status == http.StatusRequestTimeout || status >= http.StatusInternalServerError:
		return KindUnavailable
	default:
		return KindFailed
	}
}

// AppError converts pipeline errors into boundary errors. Retryable provider
// failures become 503 AI_UNAVAILABLE, fatal ones 500 AI_ERROR.
func AppError(err error) error {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return apperr.Validation(apperr.CodeInvalidInput, verr.Reason)
	}
	var perr *ProviderError
	if errors.As(err, &perr) {
		if perr.Retryable() {
			e := apperr.New(http.StatusServiceUnavailable, apperr.CodeAIUnavailable, perr.UserMessage()).Wrap(err)
			e.Retryable = true
			return e
		}
		return apperr.New(http.StatusInternalServerError, apperr.CodeAIError, perr.UserMessage()).Wrap(err)
	}
	return err
}
