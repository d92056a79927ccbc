package server

import (
	"github.com/abduss/messenger/internal/backend"
	"github.com/abduss/messenger/internal/config"
	"github.com/abduss/messenger/internal/logger"
	"github.com/abduss/messenger/internal/metrics"
	"github.com/gin-gonic/gin"
)

// MediaPrefix is where in-memory avatars are served.
const MediaPrefix = "/media"

// Dependencies groups the services required by the HTTP router.
type Dependencies struct {
	Config  config.Config
	Service *backend.Service
	// Media is set when avatars are kept in memory and served by this process.
	Media  *backend.MemoryAvatarStore
	Checks []ReadinessCheck
}

// NewRouter builds a Gin engine with foundational middleware and routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.Middleware())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps.Checks)
	if deps.Config.Metrics.PrometheusPath != "" {
		metrics.Register(router, deps.Config.Metrics.PrometheusPath)
	}

	if deps.Service != nil {
		backend.RegisterRoutes(router, deps.Service)
	}
	if deps.Media != nil {
		backend.RegisterMediaRoutes(router, MediaPrefix, deps.Media)
	}

	return router
}
