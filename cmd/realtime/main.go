package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"workhub/internal/core/services"
	"workhub/internal/infrastructure/events"
	"workhub/internal/infrastructure/middleware"
	"workhub/internal/infrastructure/monitoring"
	"workhub/internal/infrastructure/realtime"
	"workhub/internal/infrastructure/repositories"
	"workhub/pkg/config"
	"workhub/pkg/logger"
	"workhub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, cfgPath, err := config.LoadFirst(
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/workhub/config.yaml",
		"config.yaml",
	)
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()
	if err != nil {
		log.Warnw("config could not be loaded, using defaults", "error", err)
	} else {
		log.Infow("config loaded", "path", cfgPath)
	}

	if cfg.Events.Backend != "redis" {
		log.Warnw("realtime gateway runs without a shared event queue; only events published in this process are relayed",
			"backend", cfg.Events.Backend)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.ConfigFrom(cfg, "workhub-realtime"))
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	store, err := repositories.NewCredentialStore(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open credential store", "error", err)
	}

	queue, err := events.NewQueue(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create event queue", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewPrometheusCollector(reg)

	var opts []realtime.Option
	if limiter := middleware.NewConnectionLimiter(cfg); limiter != nil {
		defer limiter.Stop()
		opts = append(opts, realtime.WithLimiter(limiter))
	}
	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	gateway := realtime.NewGateway(realtime.ConfigFrom(cfg), tokens, store.Memberships(), metrics, log, opts...)

	relayErr := make(chan error, 1)
	go func() {
		if err := gateway.Run(ctx, queue); err != nil && !errors.Is(err, context.Canceled) {
			relayErr <- err
		}
	}()

	health := monitoring.NewHealthChecker(monitoring.WithHealthMetrics(metrics))
	health.AddPingCheck("database", store, 15*time.Second, 2*time.Second)
	if p, ok := queue.(monitoring.Pinger); ok {
		health.AddPingCheck("events", p, 15*time.Second, 2*time.Second)
	}
	health.StartBackgroundChecks(ctx, func(name string, err error) {
		log.Warnw("health check failed", "check", name, "error", err)
	})

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"connections": gateway.Hub().Connections(),
		})
	})
	router.GET("/readyz", func(c *gin.Context) {
		report := health.CheckAll(c.Request.Context())
		code := http.StatusOK
		if report.Status != monitoring.StatusHealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, report)
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}
	router.GET(cfg.Realtime.Path, gin.WrapH(gateway))

	// No write timeout: connections are long lived and the gateway sets
	// per-frame deadlines.
	srv := &http.Server{
		Addr:              cfg.Realtime.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting workhub realtime gateway on %s%s", cfg.Realtime.Address, cfg.Realtime.Path)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	failed := false
	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
		failed = true
	case err := <-relayErr:
		log.Errorw("event relay failed", "error", err)
		failed = true
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Realtime.ShutdownTimeout)
	defer cancel()

	if err := gateway.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error closing realtime connections", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		_ = srv.Close()
	}
	if err := queue.Close(); err != nil {
		log.Errorw("error closing event queue", "error", err)
	}
	if err := store.Close(); err != nil {
		log.Errorw("error closing credential store", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down tracer", "error", err)
	}

	log.Info("workhub realtime gateway stopped")
	if failed {
		os.Exit(1)
	}
}
