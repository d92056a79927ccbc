package api

import (
	"errors"
	"fmt"

	"github.com/abduss/messenger/internal/result"
)

// ErrServerRejected matches every non-2xx response.
var ErrServerRejected = errors.New("server rejected request")

// ServerError describes a non-2xx response.
type ServerError struct {
	Method string
	Path   string
	Status int
	// Detail is the backend's "detail" or "error" message when the body carries one.
	Detail string
	Body   string
}

func (e *ServerError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Is matches ErrServerRejected, and result.ErrAuthenticationExpired for 401.
func (e *ServerError) Is(target error) bool {
	switch target {
	case ErrServerRejected:
		return true
	case result.ErrAuthenticationExpired:
		return e.Status == 401
	}
	return false
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}
