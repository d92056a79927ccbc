package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abduss/messenger/internal/api"
	"github.com/abduss/messenger/internal/backend"
	"github.com/abduss/messenger/internal/config"
	"github.com/abduss/messenger/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestDependencies(checks ...ReadinessCheck) Dependencies {
	media := backend.NewMemoryAvatarStore(MediaPrefix)
	service := backend.NewService(backend.NewMemoryRepository(), media, backend.LogCodeSender{Logger: zap.NewNop()}, config.AuthConfig{
		AccessTokenSecret:  "access",
		RefreshTokenSecret: "refresh",
		AccessTokenTTL:     time.Minute,
		RefreshTokenTTL:    time.Hour,
		BcryptCost:         4,
		DevCode:            "133337",
		CodeTTL:            time.Minute,
	})
	return Dependencies{
		Config:  config.Config{Metrics: config.MetricsConfig{PrometheusPath: "/metrics"}},
		Service: service,
		Media:   media,
		Checks:  checks,
	}
}

func serve(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestHealthRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()

	healthy := NewRouter(newTestDependencies(ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }}))
	assert.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/health/live", "").Code)
	assert.Equal(t, http.StatusOK, serve(healthy, http.MethodGet, "/health/ready", "").Code)

	degraded := NewRouter(newTestDependencies(
		ReadinessCheck{Name: "postgres", Check: func(context.Context) error { return nil }},
		ReadinessCheck{Name: "minio", Check: func(context.Context) error { return errors.New("connection refused") }},
	))
	rr := serve(degraded, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"component":"minio"`)
}

func TestRouterMountsUserRoutesAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics.InitMetrics()
	router := NewRouter(newTestDependencies())

	rr := serve(router, http.MethodPost, api.SendAuthCodePath, `{"phone":"+79990001122"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"))

	rr = serve(router, http.MethodPost, api.CheckAuthCodePath, `{"phone":"+79990001122","code":"133337"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"is_user_exists":false`)

	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, api.MePath, "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, MediaPrefix+"/missing.png", "").Code)

	rr = serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "messenger_devapi_http_requests_total")
}
