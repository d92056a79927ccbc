package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/abduss/messenger/internal/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seenHeaders struct {
	authorization []string
	marker        []string
	requestID     string
}

func headerEchoServer(t *testing.T, seen *seenHeaders) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen.authorization = r.Header.Values(AuthorizationHeader)
		seen.marker = r.Header.Values(NoAuthHeader)
		seen.requestID = r.Header.Get(RequestIDHeader)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestMarkedRequestIsSentWithoutCredentials(t *testing.T) {
	var seen seenHeaders
	srv := headerEchoServer(t, &seen)
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	client := NewClient(srv.Client().Transport, 0, Authenticate(store))

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/users/send-auth-code/", nil)
	require.NoError(t, err)
	req.Header.Set(AuthorizationHeader, "Bearer leaked")
	WithoutAuth(req)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, seen.authorization)
	assert.Empty(t, seen.marker)
}

func TestStoredTokenIsAttachedExactlyOnce(t *testing.T) {
	var seen seenHeaders
	srv := headerEchoServer(t, &seen)
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	client := NewClient(srv.Client().Transport, 0, RequestID(), Authenticate(store))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/users/me/", nil)
	require.NoError(t, err)
	req.Header.Set(AuthorizationHeader, "Bearer stale")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"Bearer a1"}, seen.authorization)
	assert.NotEmpty(t, seen.requestID)
	// the caller's request is not mutated
	assert.Equal(t, "Bearer stale", req.Header.Get(AuthorizationHeader))
}

func TestMissingTokenForwardsRequestUnchanged(t *testing.T) {
	var seen seenHeaders
	srv := headerEchoServer(t, &seen)
	store := credentials.NewMemoryStore(credentials.Snapshot{}, nil)
	client := NewClient(srv.Client().Transport, 0, Authenticate(store))

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, seen.authorization)
}

func TestDecorationReadsLatestStoredValue(t *testing.T) {
	var seen seenHeaders
	srv := headerEchoServer(t, &seen)
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	client := NewClient(srv.Client().Transport, 0, Authenticate(store))

	require.NoError(t, store.Save(testContext(t), "a9", "r9", 1))

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, []string{"Bearer a9"}, seen.authorization)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("bearer  abc "))
	assert.Empty(t, BearerToken("Basic abc"))
	assert.Empty(t, BearerToken(""))
}

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.RoundTripper) http.RoundTripper {
			return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
				order = append(order, name)
				return next.RoundTrip(req)
			})
		}
	}
	base := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		order = append(order, "base")
		return &http.Response{StatusCode: http.StatusNoContent, Body: http.NoBody, Request: req}, nil
	})

	rt := Chain(base, tag("first"), nil, tag("second"))
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid/", nil)
	_, err := rt.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second", "base"}, order)
}
