// Package apperr defines the error taxonomy surfaced at the HTTP boundary.
package apperr

import (
	"errors"
	"net/http"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeAccountDeactivated   = "ACCOUNT_DEACTIVATED"
	CodeInvalidPassword      = "INVALID_PASSWORD"
	CodeEmailExists          = "EMAIL_EXISTS"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeUserNotFound         = "USER_NOT_FOUND"
	CodeConversationNotFound = "CONVERSATION_NOT_FOUND"
	CodeUsageLimitExceeded   = "USAGE_LIMIT_EXCEEDED"
	CodeRateLimited          = "RATE_LIMITED"
	CodeDuplicateRequest     = "DUPLICATE_REQUEST"
	CodeAIError              = "AI_ERROR"
	CodeAIUnavailable        = "AI_UNAVAILABLE"
	CodeInternal             = "INTERNAL_ERROR"
)

// Error carries an HTTP status, a stable machine code and optional payload
// for the client.
type Error struct {
	Status    int
	Code      string
	Message   string
	Retryable bool
	Details   map[string]interface{}
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// WithDetails returns a copy with details attached.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	c := *e
	c.Details = details
	return &c
}

// Wrap returns a copy that records cause.
func (e *Error) Wrap(cause error) *Error {
	c := *e
	c.Err = cause
	return &c
}

func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func Validation(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

func Auth(code, message string) *Error {
	return New(http.StatusUnauthorized, code, message)
}

func Forbidden(message string) *Error {
	return New(http.StatusForbidden, CodeForbidden, message)
}

func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

func Internal(cause error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal server error", Err: cause}
}
