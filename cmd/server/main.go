package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forgo/hiretrack/api/internal/bootstrap"
	"github.com/forgo/hiretrack/api/internal/config"
	"github.com/forgo/hiretrack/api/internal/handler"
	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/service"
)

func main() {
	// Initialize structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	// Storage
	store, err := bootstrap.OpenStore(ctx, cfg.Database, logger)
	if err != nil {
		slog.Error("failed to open storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	// Initialize JWT service
	jwtService, err := bootstrap.NewJWTService(cfg.JWT)
	if err != nil {
		slog.Error("failed to initialize JWT service", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Notification pipeline
	queue, err := bootstrap.OpenQueue(ctx, cfg)
	if err != nil {
		slog.Error("failed to open notification queue", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = queue.Close() }()

	dispatcher, err := bootstrap.NewDispatcher(cfg, queue, logger)
	if err != nil {
		slog.Error("failed to load notification templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	var consumer *bootstrap.Consumer
	if cfg.Worker.Embedded {
		consumer, err = bootstrap.NewConsumer(cfg, queue, logger)
		if err != nil {
			slog.Error("failed to initialize notification worker", slog.String("error", err.Error()))
			os.Exit(1)
		}
		consumer.Start()
	}

	// Initialize services
	tokenService := service.NewTokenService(service.TokenServiceConfig{
		JWTService: jwtService,
	})

	authService := service.NewAuthService(service.AuthServiceConfig{
		UserRepo:     store.Users,
		TokenService: tokenService,
	})

	jobService := service.NewJobService(service.JobServiceConfig{
		JobRepo: store.Jobs,
	})

	applicationService := service.NewApplicationService(service.ApplicationServiceConfig{
		ApplicationRepo: store.Applications,
		JobRepo:         store.Jobs,
		UserRepo:        store.Users,
	})

	auditService := service.NewAuditService(service.AuditServiceConfig{
		ApplicationRepo: store.Applications,
		HistoryRepo:     store.History,
	})

	lifecycle := service.NewLifecycleManager(service.LifecycleManagerConfig{
		ApplicationRepo: store.Applications,
		JobRepo:         store.Jobs,
		UserRepo:        store.Users,
		Dispatcher:      dispatcher,
		Policy:          bootstrap.TransitionPolicy(cfg.Lifecycle),
		MaxAttempts:     cfg.Lifecycle.TransitionAttempts,
		Logger:          logger,
	})

	slog.Info("application lifecycle ready",
		slog.String("policy", string(lifecycle.Policy())),
		slog.String("queue", cfg.Queue.Backend),
		slog.Bool("embedded_worker", cfg.Worker.Embedded),
	)

	// Rate limiter
	rateLimiter, stopLimiter, err := bootstrap.NewRateLimiter(cfg)
	if err != nil {
		slog.Error("failed to initialize rate limiter", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer stopLimiter()

	// Readiness checks
	checks := map[string]handler.Pinger{"queue": queue}
	if store.DB != nil {
		checks["database"] = store.DB
	}

	// Replay cache for retried applies and stage moves
	idempotencyStore := middleware.NewIdempotencyStore(middleware.IdempotencyConfig{
		TTL: cfg.Server.IdempotencyTTL,
	})
	defer idempotencyStore.Stop()

	mux := handler.NewRouter(handler.RouterConfig{
		Health:       handler.NewHealthHandler(checks),
		Auth:         handler.NewAuthHandler(authService),
		Jobs:         handler.NewJobHandler(jobService, applicationService),
		Applications: handler.NewApplicationHandler(lifecycle, applicationService),
		History:      handler.NewHistoryHandler(auditService),
		AuthService:  authService,
		JobOwners:    jobService,
		Idempotency:  idempotencyStore,
	})

	// Apply global middleware
	wrapped := middleware.Chain(
		mux,
		middleware.RequestID,
		middleware.Logger,
		middleware.Recovery,
		middleware.CORS(cfg.Server.AllowedOrigins),
		middleware.RateLimit(rateLimiter),
		middleware.Compress,
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      wrapped,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("starting server",
			slog.String("port", cfg.Server.Port),
			slog.String("env", cfg.Server.Env),
			slog.String("storage", cfg.Database.Driver),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	// Drain in-flight deliveries after the last request has dispatched
	if consumer != nil {
		consumer.Stop()
		stats := consumer.Worker.Stats()
		slog.Info("notification worker drained",
			slog.Int64("sent", stats.Sent),
			slog.Int64("retried", stats.Retried),
			slog.Int64("dead_lettered", stats.DeadLettered),
		)
	}

	slog.Info("server exited")
}
