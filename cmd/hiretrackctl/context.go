package main

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/bootstrap"
	"github.com/forgo/hiretrack/api/internal/config"
	"github.com/forgo/hiretrack/api/internal/notify"
)

// commandContext lazily loads configuration and opens backends on demand.
// The open funcs are swapped out in tests.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error

	loadConfig func() (*config.Config, error)
	openQueue  func(ctx context.Context, cfg *config.Config) (notify.Queue, error)
	openStore  func(ctx context.Context, cfg *config.Config) (*bootstrap.Store, error)
}

func newCommandContext() *commandContext {
	return &commandContext{
		loadConfig: config.Load,
		openQueue:  bootstrap.OpenQueue,
		openStore: func(ctx context.Context, cfg *config.Config) (*bootstrap.Store, error) {
			if cfg.Database.Driver != "surreal" {
				return nil, errors.Newf("history needs DB_DRIVER=surreal, have %q", cfg.Database.Driver)
			}
			return bootstrap.OpenStore(ctx, cfg.Database, slog.New(slog.NewTextHandler(io.Discard, nil)))
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = c.loadConfig()
	})
	return c.config, c.configErr
}

// withQueue opens the configured queue for the duration of fn
func (c *commandContext) withQueue(ctx context.Context, fn func(notify.Queue) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if cfg.Queue.Backend != notify.BackendRedis {
		return errors.Newf("queue commands need QUEUE_BACKEND=redis, have %q", cfg.Queue.Backend)
	}
	queue, err := c.openQueue(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "open queue")
	}
	defer func() { _ = queue.Close() }()
	return fn(queue)
}
