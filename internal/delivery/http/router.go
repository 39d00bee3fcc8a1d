package http

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ehtisham-id/proj7-ai-platform-api/internal/config"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/delivery/http/middleware"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/notify"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/repository"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/tasks"
	"github.com/ehtisham-id/proj7-ai-platform-api/internal/usecase"
)

// RouterDeps holds the dependencies of the HTTP router.
type RouterDeps struct {
	SubmitUC     *usecase.SubmitJobUsecase
	GetJobUC     *usecase.GetJobUsecase
	Registry     *tasks.Registry
	Hub          *notify.Hub
	RateCounter  repository.RateCounter
	HealthChecks map[string]HealthCheck
	Server       config.ServerConfig
	Auth         config.AuthConfig
	Keepalive    time.Duration
	Logger       *zap.Logger
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS(deps.Server.CORSOrigins))
	router.Use(middleware.Logger(deps.Logger))
	router.Use(errorResponder(deps.Logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.HealthChecks, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		typeHandler := NewTaskTypeHandler(deps.Registry)
		v1.GET("/task-types", typeHandler.List)

		authed := v1.Group("")
		authed.Use(middleware.Owner([]byte(deps.Auth.JWTSecret), deps.Auth.OwnerHeader))

		// Submissions (with rate limiting)
		jobHandler := NewJobHandler(deps.SubmitUC, deps.GetJobUC, deps.Logger)
		submit := authed.Group("")
		submit.Use(
			middleware.RateLimiter(deps.RateCounter, deps.Server.RateLimit, deps.Logger),
			middleware.BodySizeLimit(deps.Server.MaxBodyBytes),
		)
		submit.POST("/jobs", jobHandler.Submit)
		submit.POST("/summarize", jobHandler.Summarize)
		authed.GET("/jobs/:id", jobHandler.GetByID)

		// WebSocket for real-time updates
		wsHandler := NewWebSocketHandler(deps.Hub, deps.GetJobUC, deps.Server.CORSOrigins, deps.Keepalive, deps.Logger)
		authed.GET("/jobs/:id/stream", wsHandler.Stream)
		authed.GET("/ws/notifications", wsHandler.Notifications)
	}

	return router
}
