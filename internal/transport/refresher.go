package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abduss/messenger/internal/credentials"
	"github.com/abduss/messenger/internal/metrics"
	"github.com/abduss/messenger/internal/result"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultRefreshTimeout bounds a single refresh call.
	DefaultRefreshTimeout = 30 * time.Second
	// maxBufferedBody caps how much of a 401 body is kept for the caller.
	maxBufferedBody = 1 << 20
)

// Refresh outcomes, also used as metric labels.
const (
	outcomeRefreshed      = "refreshed"
	outcomeReused         = "reused"
	outcomeNoRefreshToken = "no_refresh_token"
	outcomeRejected       = "rejected"
	outcomeNetworkFailure = "network_failure"
	outcomeMalformed      = "malformed"
	outcomeAbandoned      = "abandoned"
	outcomePersistFailed  = "persist_failed"
	outcomeRetryRejected  = "retry_rejected"
)

// Tokens is what a refresh call yields. UserID is zero when the backend does not send one.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	UserID       int64
}

// TokenRefresher exchanges a refresh token for a new pair. Implementations must not
// dispatch through the pipeline the Refresher is part of.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (Tokens, error)
}

// CredentialStore is the subset of the credential store the Refresher mutates.
type CredentialStore interface {
	Snapshot() credentials.Snapshot
	Save(ctx context.Context, accessToken, refreshToken string, userID int64) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken string) error
	Clear(ctx context.Context) error
}

// RefresherOptions tunes a Refresher.
type RefresherOptions struct {
	// RefreshPath is the URL path of the refresh endpoint; responses for it are never intercepted.
	RefreshPath string
	// Timeout bounds each refresh call. Zero means DefaultRefreshTimeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Refresher turns 401 responses into one coordinated token refresh followed by a
// single retry. One Refresher owns one lock; share the instance across every
// pipeline that uses the same credentials.
type Refresher struct {
	store       CredentialStore
	client      TokenRefresher
	lock        *semaphore.Weighted
	refreshPath string
	timeout     time.Duration
	logger      *zap.Logger
	// spent is the last refresh token sent to the backend. Guarded by lock.
	spent string
}

// NewRefresher constructs a Refresher.
func NewRefresher(store CredentialStore, client TokenRefresher, opts RefresherOptions) *Refresher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRefreshTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Refresher{
		store:       store,
		client:      client,
		lock:        semaphore.NewWeighted(1),
		refreshPath: opts.RefreshPath,
		timeout:     opts.Timeout,
		logger:      opts.Logger,
	}
}

// Middleware returns the pipeline stage. Place it after Authenticate.
func (r *Refresher) Middleware() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return r.roundTrip(next, req)
		})
	}
}

func (r *Refresher) roundTrip(next http.RoundTripper, req *http.Request) (*http.Response, error) {
	resp, err := next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	if IsUnauthenticated(req.Context()) || (r.refreshPath != "" && req.URL.Path == r.refreshPath) {
		return resp, nil
	}

	original, err := bufferResponse(resp)
	if err != nil {
		return nil, fmt.Errorf("read unauthorized response: %w: %w", result.ErrNetworkFailure, err)
	}
	sent := BearerToken(req.Header.Get(AuthorizationHeader))

	if err := r.lock.Acquire(req.Context(), 1); err != nil {
		r.record(outcomeAbandoned, err)
		return original, nil
	}

	current := r.store.Snapshot()
	if current.AccessToken != "" && current.AccessToken != sent {
		// Someone refreshed while this request was in flight or waiting.
		r.lock.Release(1)
		r.record(outcomeReused, nil)
		retried, err := r.retry(next, req, current.AccessToken, original)
		if rejected(retried, err, original) {
			_ = r.lock.Acquire(context.WithoutCancel(req.Context()), 1)
			r.expire(req.Context(), current.AccessToken)
			r.lock.Release(1)
		}
		return retried, err
	}
	defer r.lock.Release(1)

	// A refresh token is exchanged at most once, even when it could not be cleared.
	if current.RefreshToken == "" || current.RefreshToken == r.spent {
		r.record(outcomeNoRefreshToken, result.ErrAuthenticationExpired)
		return original, nil
	}

	r.spent = current.RefreshToken
	tokens, err := r.refresh(req.Context(), current.RefreshToken)
	if err != nil {
		r.record(classify(err), err)
		r.clear(req.Context())
		return original, nil
	}

	if err := r.persist(req.Context(), tokens); err != nil {
		// The rotated refresh token is lost, so the session cannot be continued.
		r.record(outcomePersistFailed, err)
		r.clear(req.Context())
		return original, nil
	}
	r.record(outcomeRefreshed, nil)

	retried, err := r.retry(next, req, tokens.AccessToken, original)
	if rejected(retried, err, original) {
		r.expire(req.Context(), tokens.AccessToken)
	}
	return retried, err
}

// expire clears the store after a retry with accessToken was still rejected, unless
// the stored token has changed since. Call with r.lock held.
func (r *Refresher) expire(ctx context.Context, accessToken string) {
	if r.store.Snapshot().AccessToken != accessToken {
		return
	}
	r.record(outcomeRetryRejected, result.ErrAuthenticationExpired)
	r.clear(ctx)
}

func (r *Refresher) clear(ctx context.Context) {
	if err := r.store.Clear(context.WithoutCancel(ctx)); err != nil {
		r.logger.Error("clear credentials", zap.Error(err))
	}
}

// rejected reports whether a retried request came back 401. The original response
// means no retry was sent.
func rejected(resp *http.Response, err error, original *http.Response) bool {
	return err == nil && resp != original && resp.StatusCode == http.StatusUnauthorized
}

// refresh runs detached from the caller's cancellation so a refresh that has started
// always finishes, bounded by r.timeout.
func (r *Refresher) refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	tokens, err := r.client.RefreshToken(ctx, refreshToken)
	if err != nil {
		return Tokens{}, err
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return Tokens{}, ErrMalformedRefreshResponse
	}
	return tokens, nil
}

func (r *Refresher) persist(ctx context.Context, tokens Tokens) error {
	ctx = context.WithoutCancel(ctx)
	if tokens.UserID != 0 {
		return r.store.Save(ctx, tokens.AccessToken, tokens.RefreshToken, tokens.UserID)
	}
	return r.store.UpdateTokens(ctx, tokens.AccessToken, tokens.RefreshToken)
}

func (r *Refresher) retry(next http.RoundTripper, req *http.Request, accessToken string, original *http.Response) (*http.Response, error) {
	clone, err := rewind(req)
	if err != nil {
		r.logger.Warn("cannot retry request", zap.String("path", req.URL.Path), zap.Error(err))
		return original, nil
	}
	clone.Header.Set(AuthorizationHeader, "Bearer "+accessToken)
	return next.RoundTrip(clone)
}

func (r *Refresher) record(outcome string, err error) {
	metrics.ObserveTokenRefresh(outcome)
	switch outcome {
	case outcomeRefreshed, outcomeReused:
		r.logger.Info("token refresh", zap.String("outcome", outcome))
	default:
		r.logger.Warn("token refresh", zap.String("outcome", outcome), zap.Error(err))
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, result.ErrNetworkFailure), errors.Is(err, context.DeadlineExceeded):
		return outcomeNetworkFailure
	case errors.Is(err, result.ErrMalformedResponse):
		return outcomeMalformed
	default:
		return outcomeRejected
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.Body == nil || req.Body == http.NoBody {
		return clone, nil
	}
	if req.GetBody == nil {
		return nil, ErrBodyNotReplayable
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBodyNotReplayable, err)
	}
	clone.Body = body
	return clone, nil
}

func bufferResponse(resp *http.Response) (*http.Response, error) {
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedBody))
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	resp.ContentLength = int64(len(data))
	return resp, nil
}
