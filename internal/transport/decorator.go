package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/abduss/messenger/internal/credentials"
)

const (
	// NoAuthHeader marks a request as exempt from bearer decoration. It never reaches the wire.
	NoAuthHeader = "No-Authentication"
	// AuthorizationHeader carries the bearer token.
	AuthorizationHeader = "Authorization"
)

type contextKey string

const unauthenticatedKey contextKey = "messengerUnauthenticated"

// TokenReader exposes the current credential snapshot.
type TokenReader interface {
	Snapshot() credentials.Snapshot
}

// WithoutAuth marks req so the pipeline sends it without an Authorization header.
func WithoutAuth(req *http.Request) *http.Request {
	req.Header.Set(NoAuthHeader, "true")
	return req
}

// IsUnauthenticated reports whether the request was dispatched without credentials on purpose.
func IsUnauthenticated(ctx context.Context) bool {
	v, _ := ctx.Value(unauthenticatedKey).(bool)
	return v
}

// Authenticate attaches "Authorization: Bearer <access token>" read from tokens at
// dispatch time. Requests carrying NoAuthHeader have the marker stripped and are sent
// without credentials.
func Authenticate(tokens TokenReader) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if _, marked := req.Header[http.CanonicalHeaderKey(NoAuthHeader)]; marked {
				ctx := context.WithValue(req.Context(), unauthenticatedKey, true)
				out := req.Clone(ctx)
				out.Header.Del(NoAuthHeader)
				out.Header.Del(AuthorizationHeader)
				return next.RoundTrip(out)
			}

			token := tokens.Snapshot().AccessToken
			if token == "" {
				return next.RoundTrip(req)
			}

			out := req.Clone(req.Context())
			out.Header.Set(AuthorizationHeader, "Bearer "+token)
			return next.RoundTrip(out)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if !strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
