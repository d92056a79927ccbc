// Package transport implements the outgoing request pipeline as a chain of
// http.RoundTripper middlewares.
package transport

import (
	"net/http"
	"time"
)

// Middleware wraps a RoundTripper.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain builds a pipeline over base. Requests pass the middlewares in the order given,
// responses come back in reverse order.
func Chain(base http.RoundTripper, middlewares ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		if middlewares[i] == nil {
			continue
		}
		rt = middlewares[i](rt)
	}
	return rt
}

// NewClient returns an http.Client dispatching through the pipeline.
func NewClient(base http.RoundTripper, timeout time.Duration, middlewares ...Middleware) *http.Client {
	return &http.Client{
		Transport: Chain(base, middlewares...),
		Timeout:   timeout,
	}
}
