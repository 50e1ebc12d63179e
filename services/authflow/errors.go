package authflow

import (
	"errors"
	"net/http"
)

// User-visible error taxonomy. These are the only errors the route layer
// should surface; everything else is an opaque internal failure.
var (
	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password. The two cases are never distinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrAccountInactive    = errors.New("account is not active")
	ErrRateLimited        = errors.New("too many attempts, slow down")
	ErrTokenExpired       = errors.New("token has expired")
	// ErrTokenInvalid is also returned on reuse detection; the caller sees
	// the same generic error either way.
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTwoFactorRequired  = errors.New("two-factor code required")
	ErrTwoFactorInvalid   = errors.New("invalid two-factor code")
	ErrPasswordPolicy     = errors.New("password does not meet policy requirements")
	ErrInternal           = errors.New("internal error")
)

// StatusFor maps the taxonomy onto HTTP status codes for the route layer.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, ErrTwoFactorRequired),
		errors.Is(err, ErrTwoFactorInvalid),
		errors.Is(err, ErrAccountInactive):
		return http.StatusForbidden
	case errors.Is(err, ErrAccountLocked):
		return http.StatusLocked
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrPasswordPolicy):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
