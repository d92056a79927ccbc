package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abduss/messenger/internal/credentials"
	"github.com/abduss/messenger/internal/result"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRefreshPath = "/api/v1/users/refresh-token/"

// tokenServer answers 200 for requests carrying "Bearer <valid>" and 401 otherwise.
type tokenServer struct {
	valid    atomic.Value
	hits     atomic.Int32
	lastAuth atomic.Value
	// holdUnauthorized, when set, delays every 401 until the channel is closed.
	holdUnauthorized chan struct{}
}

func newTokenServer(t *testing.T, valid string) (*tokenServer, *httptest.Server) {
	t.Helper()
	ts := &tokenServer{}
	ts.valid.Store(valid)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.hits.Add(1)
		auth := r.Header.Get(AuthorizationHeader)
		ts.lastAuth.Store(auth)
		if auth != "Bearer "+ts.valid.Load().(string) {
			if ts.holdUnauthorized != nil {
				<-ts.holdUnauthorized
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"detail":"token expired"}`)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return ts, srv
}

type fakeRefresher struct {
	calls  atomic.Int32
	delay  time.Duration
	tokens Tokens
	err    error
	seen   atomic.Value
	block  bool
}

func (f *fakeRefresher) RefreshToken(ctx context.Context, refreshToken string) (Tokens, error) {
	f.calls.Add(1)
	f.seen.Store(refreshToken)
	if f.block {
		<-ctx.Done()
		return Tokens{}, ctx.Err()
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return Tokens{}, f.err
	}
	return f.tokens, nil
}

func newPipeline(srv *httptest.Server, store *credentials.Store, refresher TokenRefresher, timeout time.Duration) *http.Client {
	r := NewRefresher(store, refresher, RefresherOptions{RefreshPath: testRefreshPath, Timeout: timeout})
	return NewClient(srv.Client().Transport, 5*time.Second, RequestID(), Logging(nil), Authenticate(store), r.Middleware())
}

func TestRefreshRotatesTokensAndRetriesOnce(t *testing.T) {
	ts, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 11}, nil)
	refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, "r1", refresher.seen.Load())
	assert.Equal(t, int32(2), ts.hits.Load())
	assert.Equal(t, "Bearer a2", ts.lastAuth.Load())

	snap := store.Snapshot()
	assert.Equal(t, "a2", snap.AccessToken)
	assert.Equal(t, "r2", snap.RefreshToken)
	assert.Equal(t, int64(11), snap.UserID, "user id kept when refresh does not send one")
}

func TestRejectedRetryClearsStore(t *testing.T) {
	ts, srv := newTokenServer(t, "never")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1, Phone: "+1"}, nil)
	refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(2), ts.hits.Load())
	assert.Equal(t, "Bearer a2", ts.lastAuth.Load())
	assert.Equal(t, credentials.Snapshot{Phone: "+1"}, store.Snapshot())
}

func TestRejectedRetryKeepsTokensStoredMeanwhile(t *testing.T) {
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	r := NewRefresher(store, &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}, RefresherOptions{})

	require.NoError(t, store.Save(context.Background(), "a3", "r3", 1))
	r.expire(context.Background(), "a2")

	assert.Equal(t, "a3", store.Snapshot().AccessToken)
}

func TestPersistFailureClearsStoreAndNeverResendsRefreshToken(t *testing.T) {
	for _, clearFails := range []bool{false, true} {
		t.Run(fmt.Sprintf("clearFails=%v", clearFails), func(t *testing.T) {
			ts, srv := newTokenServer(t, "a2")
			store := &brokenStore{
				Store:      credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil),
				clearFails: clearFails,
			}
			refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
			r := NewRefresher(store, refresher, RefresherOptions{RefreshPath: testRefreshPath, Timeout: time.Second})
			client := NewClient(srv.Client().Transport, 5*time.Second, Authenticate(store.Store), r.Middleware())

			for i := 0; i < 2; i++ {
				resp, err := client.Get(srv.URL + "/api/v1/users/me/")
				require.NoError(t, err)
				body, _ := io.ReadAll(resp.Body)
				resp.Body.Close()

				assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "call %d", i)
				assert.JSONEq(t, `{"detail":"token expired"}`, string(body))
			}

			assert.Equal(t, int32(1), refresher.calls.Load(), "r1 is exchanged once")
			assert.Equal(t, int32(2), ts.hits.Load(), "nothing is retried")
			if !clearFails {
				assert.False(t, store.IsAuthenticated())
			}
		})
	}
}

func TestRefreshWithUserIDSavesTriple(t *testing.T) {
	_, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 11}, nil)
	refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2", UserID: 12}}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, credentials.Snapshot{AccessToken: "a2", RefreshToken: "r2", UserID: 12}, store.Snapshot())
}

func TestRetryReplaysRequestBody(t *testing.T) {
	_, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	client := newPipeline(srv, store, &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}, time.Second)

	resp, err := client.Post(srv.URL+"/api/v1/users/me/", "application/json", strings.NewReader(`{"name":"Ann"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"name":"Ann"}`, string(body))
}

func TestRefreshFailureClearsStoreAndReturnsOriginal401(t *testing.T) {
	ts, srv := newTokenServer(t, "never")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1, Phone: "+1"}, nil)
	refresher := &fakeRefresher{err: errors.New("refresh rejected with status 500")}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"detail":"token expired"}`, string(body))
	assert.Equal(t, int32(1), ts.hits.Load(), "no retry after failed refresh")
	assert.False(t, store.IsAuthenticated())
	assert.Equal(t, credentials.Snapshot{Phone: "+1"}, store.Snapshot())
}

func TestMalformedRefreshResponseIsFailure(t *testing.T) {
	_, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2"}}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.False(t, store.IsAuthenticated())
}

func TestHungRefreshTimesOut(t *testing.T) {
	_, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	refresher := &fakeRefresher{block: true}
	client := newPipeline(srv, store, refresher, 50*time.Millisecond)

	start := time.Now()
	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, store.IsAuthenticated())
}

func TestMissingRefreshTokenReturnsOriginal401WithoutRefreshing(t *testing.T) {
	_, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{}, nil)
	refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Get(srv.URL + "/api/v1/users/me/")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, refresher.calls.Load())
}

func TestRefreshEndpointAndMarkedRequestsAreNotIntercepted(t *testing.T) {
	ts, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	refresher := &fakeRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
	client := newPipeline(srv, store, refresher, time.Second)

	resp, err := client.Post(srv.URL+testRefreshPath, "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/users/check-auth-code/", strings.NewReader(`{}`))
	require.NoError(t, err)
	resp, err = client.Do(WithoutAuth(req))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	assert.Zero(t, refresher.calls.Load())
	assert.Equal(t, int32(2), ts.hits.Load())
	assert.True(t, store.IsAuthenticated())
}

func TestConcurrent401sTriggerSingleRefresh(t *testing.T) {
	const n = 16

	ts, srv := newTokenServer(t, "a2")
	ts.holdUnauthorized = make(chan struct{})
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	refresher := &fakeRefresher{delay: 20 * time.Millisecond, tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
	client := newPipeline(srv, store, refresher, time.Second)

	statuses := runConcurrently(t, n, client, srv.URL, func() {
		require.Eventually(t, func() bool { return ts.hits.Load() == n }, 2*time.Second, 5*time.Millisecond)
		close(ts.holdUnauthorized)
	})

	for i, status := range statuses {
		assert.Equal(t, http.StatusOK, status, "request %d", i)
	}
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, "a2", store.Snapshot().AccessToken)
}

func TestConcurrent401sAllSeeOriginalWhenRefreshFails(t *testing.T) {
	const n = 8

	ts, srv := newTokenServer(t, "never")
	ts.holdUnauthorized = make(chan struct{})
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	refresher := &fakeRefresher{delay: 10 * time.Millisecond, err: fmt.Errorf("dial: %w", result.ErrNetworkFailure)}
	client := newPipeline(srv, store, refresher, time.Second)

	statuses := runConcurrently(t, n, client, srv.URL, func() {
		require.Eventually(t, func() bool { return ts.hits.Load() == n }, 2*time.Second, 5*time.Millisecond)
		close(ts.holdUnauthorized)
	})

	for i, status := range statuses {
		assert.Equal(t, http.StatusUnauthorized, status, "request %d", i)
	}
	assert.Equal(t, int32(1), refresher.calls.Load())
	assert.Equal(t, int32(n), ts.hits.Load(), "no request is retried")
	assert.False(t, store.IsAuthenticated())
}

func TestWaiterGivesUpWhenContextEnds(t *testing.T) {
	_, srv := newTokenServer(t, "a2")
	store := credentials.NewMemoryStore(credentials.Snapshot{AccessToken: "a1", RefreshToken: "r1", UserID: 1}, nil)
	r := NewRefresher(store, &fakeRefresher{}, RefresherOptions{RefreshPath: testRefreshPath})
	client := NewClient(srv.Client().Transport, 5*time.Second, Authenticate(store), r.Middleware())

	require.NoError(t, r.lock.Acquire(context.Background(), 1))
	defer r.lock.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/users/me/", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.True(t, store.IsAuthenticated(), "abandoned waiters do not clear credentials")
}

func TestClassify(t *testing.T) {
	assert.Equal(t, outcomeNetworkFailure, classify(fmt.Errorf("x: %w", result.ErrNetworkFailure)))
	assert.Equal(t, outcomeNetworkFailure, classify(context.DeadlineExceeded))
	assert.Equal(t, outcomeMalformed, classify(ErrMalformedRefreshResponse))
	assert.Equal(t, outcomeRejected, classify(errors.New("401")))
}

func runConcurrently(t *testing.T, n int, client *http.Client, baseURL string, release func()) []int {
	t.Helper()
	statuses := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := client.Get(baseURL + "/api/v1/users/me/")
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}(i)
	}
	release()
	wg.Wait()
	return statuses
}

// brokenStore cannot persist refreshed tokens.
type brokenStore struct {
	*credentials.Store
	clearFails bool
}

func (b *brokenStore) Save(context.Context, string, string, int64) error {
	return errors.New("disk full")
}

func (b *brokenStore) UpdateTokens(context.Context, string, string) error {
	return errors.New("disk full")
}

func (b *brokenStore) Clear(ctx context.Context) error {
	if b.clearFails {
		return errors.New("disk full")
	}
	return b.Store.Clear(ctx)
}
