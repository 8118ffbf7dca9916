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
	httphandlers "workhub/internal/handlers/http"
	"workhub/internal/infrastructure/events"
	"workhub/internal/infrastructure/mail"
	"workhub/internal/infrastructure/middleware"
	"workhub/internal/infrastructure/monitoring"
	"workhub/internal/infrastructure/realtime"
	"workhub/internal/infrastructure/repositories"
	"workhub/internal/infrastructure/security"
	"workhub/pkg/config"
	"workhub/pkg/logger"
	"workhub/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	cfg, cfgPath, err := config.LoadFirst(
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/workhub/config.yaml",
		"config.yaml",
	)
	if err != nil {
		// Fallback to defaults if config cannot be loaded
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := tracing.Init(tracing.ConfigFrom(cfg, "workhub-api"))
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	store, err := repositories.NewCredentialStore(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to open credential store", "error", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := monitoring.NewPrometheusCollector(reg)

	mailer, err := mail.New(cfg, log)
	if err != nil {
		log.Fatalw("failed to create mailer", "error", err)
	}

	queue, err := events.NewQueue(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create event queue", "error", err)
	}
	publisher := events.NewInstrumentedPublisher(queue, metrics)

	tokens := services.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authService := services.NewAuthService(store, tokens, security.NewHasher(cfg.Auth.BcryptCost), mailer, log,
		services.WithOneTimeTokenTTL(cfg.Auth.OneTimeTokenTTL))
	workspaceService := services.NewWorkspaceService(store, mailer, publisher, log)

	health := monitoring.NewHealthChecker(monitoring.WithHealthMetrics(metrics))
	health.AddPingCheck("database", store, 15*time.Second, 2*time.Second)
	if p, ok := queue.(monitoring.Pinger); ok {
		health.AddPingCheck("events", p, 15*time.Second, 2*time.Second)
	}
	if !health.Ready(ctx) {
		log.Warnw("dependencies not ready at startup; serving anyway")
	}
	health.StartBackgroundChecks(ctx, func(name string, err error) {
		log.Warnw("health check failed", "check", name, "error", err)
	})

	// An in-memory queue only reaches subscribers in this process, so the
	// gateway is served next to the REST routes.
	var gateway *realtime.Gateway
	var wsHandler http.Handler
	if cfg.Events.Backend == "" || cfg.Events.Backend == "memory" {
		var opts []realtime.Option
		if limiter := middleware.NewConnectionLimiter(cfg); limiter != nil {
			defer limiter.Stop()
			opts = append(opts, realtime.WithLimiter(limiter))
		}
		gateway = realtime.NewGateway(realtime.ConfigFrom(cfg), tokens, store.Memberships(), metrics, log, opts...)
		wsHandler = gateway
		go func() {
			if err := gateway.Run(ctx, queue); err != nil && !errors.Is(err, context.Canceled) {
				log.Errorw("realtime relay stopped", "error", err)
			}
		}()
		log.Infow("realtime gateway mounted", "path", cfg.Realtime.Path)
	}

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httphandlers.NewRouter(httphandlers.RouterDeps{
		Config:     cfg,
		Logger:     log,
		Tokens:     tokens,
		Auth:       authService,
		Workspaces: workspaceService,
		Health:     health,
		Metrics:    metrics,
		Gatherer:   reg,
		Realtime:   wsHandler,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting workhub API on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	failed := false
	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
		failed = true
	case <-ctx.Done():
		log.Info("received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if gateway != nil {
		if err := gateway.Shutdown(shutdownCtx); err != nil {
			log.Errorw("error closing realtime connections", "error", err)
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
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

	log.Info("workhub API stopped")
	if failed {
		os.Exit(1)
	}
}
