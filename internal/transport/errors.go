package transport

import (
	"errors"
	"fmt"

	"github.com/abduss/messenger/internal/result"
)

var (
	// ErrMalformedRefreshResponse is returned when the refresh payload lacks a token.
	ErrMalformedRefreshResponse = fmt.Errorf("refresh token response: %w", result.ErrMalformedResponse)
	// ErrBodyNotReplayable means the original request cannot be retried.
	ErrBodyNotReplayable = errors.New("request body cannot be replayed")
)
