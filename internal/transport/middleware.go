package transport

import (
	"net/http"
	"time"

	"github.com/abduss/messenger/internal/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RequestIDHeader identifies a request across client and server logs.
const RequestIDHeader = "X-Request-ID"

// RequestID sets a fresh X-Request-ID on requests that have none.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.Header.Get(RequestIDHeader) != "" {
				return next.RoundTrip(req)
			}
			out := req.Clone(req.Context())
			out.Header.Set(RequestIDHeader, uuid.NewString())
			return next.RoundTrip(out)
		})
	}
}

// Logging records every exchange at debug level and counts it.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", req.Header.Get(RequestIDHeader)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				metrics.ObserveClientRequest(req.Method, 0)
				logger.Debug("request failed", append(fields, zap.Error(err))...)
				return resp, err
			}
			metrics.ObserveClientRequest(req.Method, resp.StatusCode)
			logger.Debug("request completed", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}
