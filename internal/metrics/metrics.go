package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TokenRefreshTotal counts refresh-coordinator outcomes on the client.
	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Subsystem: "client",
		Name:      "token_refresh_total",
		Help:      "Token refresh attempts by outcome.",
	}, []string{"outcome"})

	// ClientRequestsTotal counts outgoing API requests by method and status ("error" for transport failures).
	ClientRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Outgoing API requests.",
	}, []string{"method", "status"})

	// HTTPRequestsTotal counts requests served by the development backend.
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "messenger",
		Subsystem: "devapi",
		Name:      "http_requests_total",
		Help:      "Requests handled by the development backend.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks backend latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "messenger",
		Subsystem: "devapi",
		Name:      "http_request_duration_seconds",
		Help:      "Latency of requests handled by the development backend.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	registerOnce sync.Once
)

// InitMetrics registers all collectors with the default registry. Safe to call repeatedly.
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(TokenRefreshTotal, ClientRequestsTotal, HTTPRequestsTotal, HTTPRequestDuration)
	})
}

// ObserveTokenRefresh increments the refresh counter for outcome.
func ObserveTokenRefresh(outcome string) {
	TokenRefreshTotal.WithLabelValues(outcome).Inc()
}

// ObserveClientRequest counts an outgoing request. status 0 means the request never got a response.
func ObserveClientRequest(method string, status int) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	ClientRequestsTotal.WithLabelValues(method, label).Inc()
}

// Middleware records request count and latency for every gin route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Register attaches the Prometheus metrics endpoint to the router.
func Register(router *gin.Engine, path string) {
	router.GET(path, gin.WrapH(promhttp.Handler()))
}
