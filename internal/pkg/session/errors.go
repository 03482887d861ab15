package session

import (
	"errors"

	"github.com/aiassist/core/internal/pkg/apperr"
	"github.com/aiassist/core/internal/pkg/jwt"
	"github.com/aiassist/core/internal/store"
)

// Error is a token or session verification failure. Every kind surfaces as
// 401 at the HTTP boundary.
type Error struct {
	Kind    string
	Message string
}

func (e *Error) Error() string { return "session: " + e.Message }

var (
	ErrMalformed          = &Error{Kind: "MALFORMED", Message: "Invalid token"}
	ErrExpired            = &Error{Kind: "EXPIRED", Message: "Token expired"}
	ErrWrongType          = &Error{Kind: "WRONG_TYPE", Message: "Invalid token type"}
	ErrUserNotFound       = &Error{Kind: "USER_NOT_FOUND", Message: "User not found"}
	ErrAccountDeactivated = &Error{Kind: "ACCOUNT_DEACTIVATED", Message: "Account is deactivated"}
	ErrStaleToken         = &Error{Kind: "STALE_TOKEN", Message: "Token issued before password change"}
	ErrRevoked            = &Error{Kind: "REVOKED", Message: "Refresh token revoked"}
)

var ErrInvalidPlatform = errors.New("session: invalid device platform")

func fromJWT(err error) error {
	switch {
	case errors.Is(err, jwt.ErrExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrWrongType):
		return ErrWrongType
	default:
		return ErrMalformed
	}
}

func fromStore(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Kind returns the verification kind of err, or "" when err is not a
// session error.
func Kind(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// AppError converts a session error into the boundary error. Other errors
// are returned unchanged.
func AppError(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	return apperr.Auth(e.Kind, e.Message).Wrap(err)
}
