// Package api is the typed client of the messenger backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abduss/messenger/internal/result"
	"github.com/abduss/messenger/internal/transport"
	"go.uber.org/zap"
)

// Backend endpoints.
const (
	SendAuthCodePath  = "/api/v1/users/send-auth-code/"
	CheckAuthCodePath = "/api/v1/users/check-auth-code/"
	RegisterPath      = "/api/v1/users/register/"
	RefreshTokenPath  = "/api/v1/users/refresh-token/"
	MePath            = "/api/v1/users/me/"
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrorBody   = 4 << 10
)

// Client calls the backend. Authenticated calls go through the pipeline client;
// the refresh call goes through a separate client that carries no credentials.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	refresh *http.Client
}

// NewClient wraps prebuilt HTTP clients. A nil refresh client gets a plain one.
func NewClient(baseURL string, pipeline, refresh *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}
	if pipeline == nil {
		pipeline = &http.Client{Timeout: DefaultTimeout}
	}
	if refresh == nil {
		refresh = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: u, http: pipeline, refresh: refresh}, nil
}

// Options configures New.
type Options struct {
	BaseURL string
	Store   transport.CredentialStore
	// Base is the RoundTripper both clients dispatch through. Nil means http.DefaultTransport.
	Base           http.RoundTripper
	Timeout        time.Duration
	RefreshTimeout time.Duration
	Logger         *zap.Logger
}

// New builds a Client whose pipeline authenticates every request from opts.Store and
// refreshes expired tokens through the client's own refresh call.
func New(opts Options) (*Client, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = transport.DefaultRefreshTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	refreshClient := transport.NewClient(opts.Base, opts.RefreshTimeout,
		transport.RequestID(),
		transport.Logging(opts.Logger),
	)
	c, err := NewClient(opts.BaseURL, nil, refreshClient)
	if err != nil {
		return nil, err
	}

	refresher := transport.NewRefresher(opts.Store, c, transport.RefresherOptions{
		RefreshPath: c.baseURL.Path + RefreshTokenPath,
		Timeout:     opts.RefreshTimeout,
		Logger:      opts.Logger,
	})
	c.http = transport.NewClient(opts.Base, opts.Timeout,
		transport.RequestID(),
		transport.Logging(opts.Logger),
		transport.Authenticate(opts.Store),
		refresher.Middleware(),
	)
	return c, nil
}

// SendAuthCode asks the backend to send a verification code to phone.
func (c *Client) SendAuthCode(ctx context.Context, phone string) (SendAuthCodeResponse, error) {
	var out SendAuthCodeResponse
	err := c.do(ctx, c.http, http.MethodPost, SendAuthCodePath, SendAuthCodeRequest{Phone: phone}, &out, false)
	return out, err
}

func (c *Client) CheckAuthCode(ctx context.Context, phone, code string) (CheckAuthCodeResponse, error) {
	var out CheckAuthCodeResponse
	err := c.do(ctx, c.http, http.MethodPost, CheckAuthCodePath, CheckAuthCodeRequest{Phone: phone, Code: code}, &out, false)
	return out, err
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResponse, error) {
	var out RegisterResponse
	err := c.do(ctx, c.http, http.MethodPost, RegisterPath, req, &out, false)
	return out, err
}

// RefreshToken exchanges refreshToken for a new pair on the credential-free client.
// Any non-2xx answer is reported as result.ErrAuthenticationExpired.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (transport.Tokens, error) {
	var out RefreshTokenResponse
	err := c.do(ctx, c.refresh, http.MethodPost, RefreshTokenPath, RefreshTokenRequest{RefreshToken: refreshToken}, &out, false)
	if err != nil {
		if StatusCode(err) != 0 {
			return transport.Tokens{}, fmt.Errorf("%w: %w", result.ErrAuthenticationExpired, err)
		}
		return transport.Tokens{}, err
	}
	return transport.Tokens{
		AccessToken:  out.AccessToken,
		RefreshToken: out.RefreshToken,
		UserID:       out.UserID,
	}, nil
}

// GetCurrentUser fetches the signed-in user's profile.
func (c *Client) GetCurrentUser(ctx context.Context) (UserDTO, error) {
	var out ProfileData
	if err := c.do(ctx, c.http, http.MethodGet, MePath, nil, &out, true); err != nil {
		return UserDTO{}, err
	}
	return out.ProfileData, nil
}

func (c *Client) UpdateUser(ctx context.Context, req UpdateUserRequest) (UpdateUserResponse, error) {
	var out UpdateUserResponse
	err := c.do(ctx, c.http, http.MethodPut, MePath, req, &out, true)
	return out, err
}

func (c *Client) do(ctx context.Context, client *http.Client, method, path string, in, out any, authenticated bool) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if !authenticated {
		transport.WithoutAuth(req)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w: %w", method, path, result.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newServerError(method, path, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w: %w", path, result.ErrMalformedResponse, err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path
	return u.String()
}

func newServerError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	se := &ServerError{Method: method, Path: path, Status: resp.StatusCode, Body: string(raw)}

	var payload struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil {
		se.Detail = payload.Detail
		if se.Detail == "" {
			se.Detail = payload.Error
		}
	}
	return se
}
