package credentials

import "errors"

var (
	// ErrEmptyToken is returned when a mutation would store a blank access or refresh token.
	ErrEmptyToken = errors.New("token must not be empty")
	// ErrStoreClosed is returned by mutations after Close.
	ErrStoreClosed = errors.New("credential store closed")
)
