// Package bootstrap turns a validated config into the storage, queue and
// notification components shared by the server, the worker and the CLI.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"github.com/forgo/hiretrack/api/internal/config"
	"github.com/forgo/hiretrack/api/internal/database"
	"github.com/forgo/hiretrack/api/internal/jobs"
	"github.com/forgo/hiretrack/api/internal/middleware"
	"github.com/forgo/hiretrack/api/internal/model"
	"github.com/forgo/hiretrack/api/internal/notify"
	"github.com/forgo/hiretrack/api/internal/repository"
	"github.com/forgo/hiretrack/api/internal/repository/memory"
	"github.com/forgo/hiretrack/api/internal/service"
	"github.com/forgo/hiretrack/api/pkg/jwt"
)

// UserStore is the full user repository surface the services need
type UserStore interface {
	service.UserRepository
	service.UserBatchLookup
}

// Store is one repository set. DB is nil for the memory driver.
type Store struct {
	DB           database.Database
	Users        UserStore
	Jobs         service.JobRepository
	Applications service.ApplicationRepository
	History      service.HistoryRepository
}

// Close releases the database connection, if any
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// OpenStore connects the configured driver. For SurrealDB it applies the
// embedded migrations before returning.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if cfg.Driver == "memory" {
		mem := memory.NewStore()
		logger.Warn("using in-memory storage; data will not survive a restart")
		return &Store{
			Users:        mem.Users(),
			Jobs:         mem.Jobs(),
			Applications: mem.Applications(),
			History:      mem.History(),
		}, nil
	}

	db := database.NewSurrealDB(database.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		User:      cfg.User,
		Password:  cfg.Password,
		Namespace: cfg.Namespace,
		Database:  cfg.Database,
	})
	if err := db.Connect(ctx); err != nil {
		return nil, err
	}
	logger.Info("connected to database",
		slog.String("host", cfg.Host),
		slog.String("database", cfg.Database),
	)

	if err := database.Migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}

	return &Store{
		DB:           db,
		Users:        repository.NewUserRepository(db),
		Jobs:         repository.NewJobRepository(db),
		Applications: repository.NewApplicationRepository(db),
		History:      repository.NewHistoryRepository(db),
	}, nil
}

// NewJWTService builds the signer from key paths, or the shared secret when set
func NewJWTService(cfg config.JWTConfig) (*jwt.Service, error) {
	jc := jwt.Config{
		Issuer:         cfg.Issuer,
		ExpirationMins: cfg.ExpirationMins,
	}
	if cfg.Secret != "" {
		jc.Secret = cfg.Secret
	} else {
		jc.PrivateKeyPath = cfg.PrivateKeyPath
		jc.PublicKeyPath = cfg.PublicKeyPath
	}
	return jwt.NewService(jc)
}

// OpenQueue builds the configured notification queue
func OpenQueue(ctx context.Context, cfg *config.Config) (notify.Queue, error) {
	return notify.Open(ctx, notify.QueueConfig{
		Backend:       cfg.Queue.Backend,
		Capacity:      cfg.Queue.Capacity,
		RedisAddr:     cfg.Redis.Addr,
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
		KeyPrefix:     cfg.Queue.KeyPrefix,
	})
}

// NewDispatcher loads the template overrides, if configured, and returns a
// dispatcher feeding queue
func NewDispatcher(cfg *config.Config, queue notify.Queue, logger *slog.Logger) (*notify.Dispatcher, error) {
	templates := notify.DefaultTemplates()
	if cfg.Notify.TemplatesPath != "" {
		loaded, err := notify.LoadTemplates(cfg.Notify.TemplatesPath)
		if err != nil {
			return nil, err
		}
		templates = loaded
	}
	return notify.NewDispatcher(notify.DispatcherConfig{
		Queue:          queue,
		Templates:      templates,
		EnqueueTimeout: cfg.Queue.EnqueueTimeout,
		Logger:         logger,
	}), nil
}

// Consumer is a worker plus the maintenance job that keeps its queue moving
type Consumer struct {
	Worker     *notify.Worker
	Maintainer *jobs.QueueMaintainer
}

// NewConsumer builds the transport, worker and queue maintainer
func NewConsumer(cfg *config.Config, queue notify.Queue, logger *slog.Logger) (*Consumer, error) {
	transport, err := notify.NewTransport(notify.TransportConfig{
		Kind:           cfg.Notify.Transport,
		SMTPAddr:       cfg.Notify.SMTPAddr,
		SMTPUsername:   cfg.Notify.SMTPUsername,
		SMTPPassword:   cfg.Notify.SMTPPassword,
		SMTPFrom:       cfg.Notify.SMTPFrom,
		WebhookURL:     cfg.Notify.WebhookURL,
		WebhookTimeout: cfg.Notify.WebhookTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	worker := notify.NewWorker(notify.WorkerConfig{
		Queue:       queue,
		Transport:   transport,
		Concurrency: cfg.Worker.Concurrency,
		PopTimeout:  cfg.Worker.PopTimeout,
		SendTimeout: cfg.Worker.SendTimeout,
		MaxAttempts: cfg.Worker.MaxAttempts,
		BackoffBase: cfg.Worker.BackoffBase,
		BackoffMax:  cfg.Worker.BackoffMax,
		SendRate:    cfg.Worker.SendRate,
		SendBurst:   cfg.Worker.SendBurst,
		Logger:      logger,
	})
	maintainer := jobs.NewQueueMaintainer(jobs.QueueMaintainerConfig{
		Queue:      queue,
		Interval:   cfg.Worker.MaintenanceInterval,
		Visibility: cfg.Worker.VisibilityTimeout,
		Logger:     logger,
	})
	return &Consumer{Worker: worker, Maintainer: maintainer}, nil
}

// Start launches the maintainer and the worker loops
func (c *Consumer) Start() {
	c.Maintainer.Start()
	c.Worker.Start()
}

// Stop waits for in-flight deliveries, then stops maintenance
func (c *Consumer) Stop() {
	c.Worker.Stop()
	c.Maintainer.Stop()
}

// NewRateLimiter returns the configured limiter, or nil when rate limiting
// is disabled. The returned stop func releases background resources.
func NewRateLimiter(cfg *config.Config) (middleware.Limiter, func(), error) {
	if !cfg.RateLimit.Enabled {
		return nil, func() {}, nil
	}

	rlc := middleware.RateLimitConfig{
		Rate:   cfg.RateLimit.Rate,
		Window: cfg.RateLimit.Window,
		Burst:  cfg.RateLimit.Burst,
	}
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return middleware.NewRedisLimiter(client, "", rlc), func() { _ = client.Close() }, nil
	}

	limiter := middleware.NewRateLimiter(rlc)
	return limiter, limiter.Stop, nil
}

// TransitionPolicy maps the configured policy name
func TransitionPolicy(cfg config.LifecycleConfig) model.TransitionPolicy {
	policy := model.TransitionPolicy(cfg.Policy)
	if !policy.IsValid() {
		return model.TransitionPolicyStrict
	}
	return policy
}
