package http

import (
	"net/http"

	"workhub/internal/core/ports"
	"workhub/internal/infrastructure/middleware"
	"workhub/internal/infrastructure/monitoring"
	"workhub/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Config     *config.Config
	Logger     *zap.SugaredLogger
	Tokens     ports.TokenService
	Auth       ports.AuthService
	Workspaces ports.WorkspaceService
	Health     *monitoring.HealthChecker
	Metrics    *monitoring.PrometheusCollector
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	// Realtime is mounted at Config.Realtime.Path when set, for single
	// process deployments with an in-memory event queue.
	Realtime http.Handler
}

// NewRouter builds the REST gateway. Middleware order matters: errors are
// rendered by ErrorHandlerMiddleware after auth or rate limiting aborts.
func NewRouter(d RouterDeps) *gin.Engine {
	useJSONFieldNames()
	router := gin.New()
	// "/api/auth/sign_up/" must reach the auth middleware instead of being
	// redirected to its public twin.
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false

	router.Use(middleware.RecoveryMiddleware(d.Logger))
	if d.Config.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(
		middleware.RequestIDMiddleware(d.Logger),
		middleware.RequestLoggerMiddleware(d.Logger, d.Metrics),
		middleware.ErrorHandlerMiddleware(d.Logger),
		middleware.NewHTTPRateLimitMiddleware(d.Config),
		middleware.AuthMiddleware(d.Tokens, d.Logger),
	)
	router.NoRoute(middleware.NoRouteHandler)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/readyz", func(c *gin.Context) {
		if d.Health == nil {
			c.JSON(http.StatusOK, gin.H{"status": monitoring.StatusHealthy})
			return
		}
		report := d.Health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if report.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
	if d.Gatherer != nil && d.Config.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	if d.Realtime != nil {
		router.GET(d.Config.Realtime.Path, gin.WrapH(d.Realtime))
	}

	NewAuthHandler(d.Auth).SetupRoutes(router)
	NewWorkspaceHandler(d.Workspaces).SetupRoutes(router)

	return router
}
