package profile

import (
	"fmt"

	"github.com/abduss/messenger/internal/result"
)

var (
	// ErrUserNotCached is returned when the profile cache has no row for the user.
	ErrUserNotCached = fmt.Errorf("user not found in cache: %w", result.ErrNotFound)
)
