// Command worker consumes the shared notification queue outside the API
// process. It requires the redis queue backend.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgo/hiretrack/api/internal/bootstrap"
	"github.com/forgo/hiretrack/api/internal/config"
	"github.com/forgo/hiretrack/api/internal/notify"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// A memory queue lives inside one process; nothing would ever feed it
	if cfg.Queue.Backend != notify.BackendRedis {
		slog.Error("standalone worker needs QUEUE_BACKEND=redis",
			slog.String("backend", cfg.Queue.Backend),
		)
		os.Exit(1)
	}

	ctx := context.Background()
	queue, err := bootstrap.OpenQueue(ctx, cfg)
	if err != nil {
		slog.Error("failed to open notification queue", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _ = queue.Close() }()

	consumer, err := bootstrap.NewConsumer(cfg, queue, logger)
	if err != nil {
		slog.Error("failed to initialize notification worker", slog.String("error", err.Error()))
		os.Exit(1)
	}
	consumer.Start()

	if stats, err := queue.Stats(ctx); err == nil {
		slog.Info("worker attached to queue",
			slog.Int64("ready", stats.Ready),
			slog.Int64("pending", stats.Pending),
			slog.Int64("delayed", stats.Delayed),
			slog.Int64("dead", stats.Dead),
		)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	consumer.Stop()

	stats := consumer.Worker.Stats()
	slog.Info("worker exited",
		slog.Int64("sent", stats.Sent),
		slog.Int64("retried", stats.Retried),
		slog.Int64("dead_lettered", stats.DeadLettered),
	)
}
