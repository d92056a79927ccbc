package result

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationExpired means the session ended: no refresh token, or the backend rejected it.
	ErrAuthenticationExpired = errors.New("authentication expired")
	// ErrNotAuthenticated is returned when an operation needs a signed-in user and none is stored.
	ErrNotAuthenticated = errors.New("user not authenticated")
	// ErrNotFound signals that an expected cached entity is missing.
	ErrNotFound = errors.New("not found")
	// ErrNetworkFailure wraps transport level failures.
	ErrNetworkFailure = errors.New("network failure")
	// ErrMalformedResponse is returned when a backend payload cannot be used.
	ErrMalformedResponse = errors.New("malformed response")
	// ErrValidation is the parent of every ValidationError.
	ErrValidation = errors.New("validation failed")
)

// ValidationError rejects client input before anything is dispatched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// IsAuthError reports whether err means the user has to sign in again.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthenticationExpired) || errors.Is(err, ErrNotAuthenticated)
}
