package auth

import "errors"

var (
	// ErrCodeNotSent is returned when the backend answers send-auth-code without success.
	ErrCodeNotSent = errors.New("auth code was not sent")
)
