package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Notify    NotifyConfig
	Lifecycle LifecycleConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port           string
	Env            string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	AllowedOrigins []string
	IdempotencyTTL time.Duration
}

// DatabaseConfig holds storage settings. Driver "memory" ignores the rest.
type DatabaseConfig struct {
	Driver    string
	Host      string
	Port      string
	Namespace string
	Database  string
	User      string
	Password  string
}

// JWTConfig holds JWT signing settings. Secret is an HS256 fallback for
// development when no key pair is configured.
type JWTConfig struct {
	PrivateKeyPath string
	PublicKeyPath  string
	Secret         string
	ExpirationMins int
	Issuer         string
}

// RedisConfig is shared by the redis queue and the redis rate limiter
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// QueueConfig selects the notification queue
type QueueConfig struct {
	Backend        string
	Capacity       int
	KeyPrefix      string
	EnqueueTimeout time.Duration
}

// WorkerConfig holds notification worker settings
type WorkerConfig struct {
	Embedded            bool
	Concurrency         int
	PopTimeout          time.Duration
	SendTimeout         time.Duration
	MaxAttempts         int
	BackoffBase         time.Duration
	BackoffMax          time.Duration
	SendRate            float64
	SendBurst           int
	MaintenanceInterval time.Duration
	VisibilityTimeout   time.Duration
}

// NotifyConfig selects how notifications leave the system
type NotifyConfig struct {
	Transport      string
	TemplatesPath  string
	SMTPAddr       string
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	WebhookURL     string
	WebhookTimeout time.Duration
}

// LifecycleConfig holds application lifecycle settings
type LifecycleConfig struct {
	Policy             string
	TransitionAttempts int
}

// RateLimitConfig holds API rate limiting settings
type RateLimitConfig struct {
	Enabled bool
	Backend string
	Rate    int
	Window  time.Duration
	Burst   int
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("SERVER_PORT", "8080"),
			Env:            getEnv("SERVER_ENV", "development"),
			ReadTimeout:    getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:   getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			AllowedOrigins: getSliceEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			IdempotencyTTL: getDurationEnv("SERVER_IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Database: DatabaseConfig{
			Driver:    getEnv("DB_DRIVER", "surreal"),
			Host:      getEnv("DB_HOST", "localhost"),
			Port:      getEnv("DB_PORT", "8000"),
			Namespace: getEnv("DB_NAMESPACE", "hiretrack"),
			Database:  getEnv("DB_DATABASE", "main"),
			User:      getEnv("DB_USER", "root"),
			Password:  getEnv("DB_PASSWORD", "root"),
		},
		JWT: JWTConfig{
			PrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./keys/private.pem"),
			PublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./keys/public.pem"),
			Secret:         getEnv("JWT_SECRET", ""),
			ExpirationMins: getIntEnv("JWT_EXPIRATION_MINS", 60),
			Issuer:         getEnv("JWT_ISSUER", "hiretrack"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Backend:        getEnv("QUEUE_BACKEND", "memory"),
			Capacity:       getIntEnv("QUEUE_CAPACITY", 10000),
			KeyPrefix:      getEnv("QUEUE_KEY_PREFIX", "hiretrack:notify"),
			EnqueueTimeout: getDurationEnv("QUEUE_ENQUEUE_TIMEOUT", 500*time.Millisecond),
		},
		Worker: WorkerConfig{
			Embedded:            getBoolEnv("WORKER_EMBEDDED", true),
			Concurrency:         getIntEnv("WORKER_CONCURRENCY", 1),
			PopTimeout:          getDurationEnv("WORKER_POP_TIMEOUT", 5*time.Second),
			SendTimeout:         getDurationEnv("WORKER_SEND_TIMEOUT", 10*time.Second),
			MaxAttempts:         getIntEnv("WORKER_MAX_ATTEMPTS", 5),
			BackoffBase:         getDurationEnv("WORKER_BACKOFF_BASE", 2*time.Second),
			BackoffMax:          getDurationEnv("WORKER_BACKOFF_MAX", 5*time.Minute),
			SendRate:            getFloatEnv("WORKER_SEND_RATE", 0),
			SendBurst:           getIntEnv("WORKER_SEND_BURST", 1),
			MaintenanceInterval: getDurationEnv("WORKER_MAINTENANCE_INTERVAL", 5*time.Second),
			VisibilityTimeout:   getDurationEnv("WORKER_VISIBILITY_TIMEOUT", 2*time.Minute),
		},
		Notify: NotifyConfig{
			Transport:      getEnv("NOTIFY_TRANSPORT", "log"),
			TemplatesPath:  getEnv("NOTIFY_TEMPLATES_PATH", ""),
			SMTPAddr:       getEnv("SMTP_ADDR", ""),
			SMTPUsername:   getEnv("SMTP_USERNAME", ""),
			SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
			SMTPFrom:       getEnv("SMTP_FROM", ""),
			WebhookURL:     getEnv("NOTIFY_WEBHOOK_URL", ""),
			WebhookTimeout: getDurationEnv("NOTIFY_WEBHOOK_TIMEOUT", 5*time.Second),
		},
		Lifecycle: LifecycleConfig{
			Policy:             getEnv("LIFECYCLE_POLICY", "strict"),
			TransitionAttempts: getIntEnv("LIFECYCLE_TRANSITION_ATTEMPTS", 3),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("RATE_LIMIT_ENABLED", true),
			Backend: getEnv("RATE_LIMIT_BACKEND", "memory"),
			Rate:    getIntEnv("RATE_LIMIT_RATE", 100),
			Window:  getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
			Burst:   getIntEnv("RATE_LIMIT_BURST", 20),
		},
	}, nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// UsesRedis reports whether any component needs the redis connection
func (c *Config) UsesRedis() bool {
	return c.Queue.Backend == "redis" || (c.RateLimit.Enabled && c.RateLimit.Backend == "redis")
}

// Validate checks that all required configuration values are present and valid.
// It returns an error describing all validation failures, or nil if valid.
func (c *Config) Validate() error {
	var errs []error

	// Server validation
	if c.Server.Port == "" {
		errs = append(errs, errors.New("SERVER_PORT is required"))
	}
	if c.Server.Env != "development" && c.Server.Env != "production" && c.Server.Env != "test" {
		errs = append(errs, fmt.Errorf("SERVER_ENV must be 'development', 'production', or 'test', got '%s'", c.Server.Env))
	}
	if len(c.Server.AllowedOrigins) == 0 {
		errs = append(errs, errors.New("CORS_ALLOWED_ORIGINS must have at least one origin"))
	}

	// Database validation
	switch c.Database.Driver {
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_DRIVER=memory is not allowed in production"))
		}
	case "surreal":
		if c.Database.Host == "" {
			errs = append(errs, errors.New("DB_HOST is required"))
		}
		if c.Database.Port == "" {
			errs = append(errs, errors.New("DB_PORT is required"))
		}
		if c.Database.Namespace == "" {
			errs = append(errs, errors.New("DB_NAMESPACE is required"))
		}
		if c.Database.Database == "" {
			errs = append(errs, errors.New("DB_DATABASE is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be 'memory' or 'surreal', got '%s'", c.Database.Driver))
	}

	// JWT validation - critical for production
	if c.IsProduction() {
		if c.JWT.PrivateKeyPath == "" {
			errs = append(errs, errors.New("JWT_PRIVATE_KEY_PATH is required in production"))
		}
		if c.JWT.PublicKeyPath == "" {
			errs = append(errs, errors.New("JWT_PUBLIC_KEY_PATH is required in production"))
		}
		if c.JWT.Secret != "" {
			errs = append(errs, errors.New("JWT_SECRET must not be set in production"))
		}
	}
	if c.JWT.ExpirationMins <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRATION_MINS must be positive"))
	}

	// Queue and worker validation
	switch c.Queue.Backend {
	case "memory":
		if !c.Worker.Embedded {
			errs = append(errs, errors.New("WORKER_EMBEDDED must be true when QUEUE_BACKEND is 'memory'"))
		}
		if c.Queue.Capacity <= 0 {
			errs = append(errs, errors.New("QUEUE_CAPACITY must be positive"))
		}
	case "redis":
	default:
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND must be 'memory' or 'redis', got '%s'", c.Queue.Backend))
	}
	if c.UsesRedis() && c.Redis.Addr == "" {
		errs = append(errs, errors.New("REDIS_ADDR is required when a redis backend is selected"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	if c.Worker.MaxAttempts <= 0 {
		errs = append(errs, errors.New("WORKER_MAX_ATTEMPTS must be positive"))
	}
	if c.Worker.BackoffBase <= 0 || c.Worker.BackoffMax < c.Worker.BackoffBase {
		errs = append(errs, errors.New("WORKER_BACKOFF_BASE must be positive and not above WORKER_BACKOFF_MAX"))
	}
	if c.Worker.SendRate < 0 {
		errs = append(errs, errors.New("WORKER_SEND_RATE must not be negative"))
	}

	// Notification transport validation
	switch c.Notify.Transport {
	case "log":
	case "smtp":
		if c.Notify.SMTPAddr == "" || c.Notify.SMTPFrom == "" {
			errs = append(errs, errors.New("SMTP_ADDR and SMTP_FROM are required when NOTIFY_TRANSPORT is 'smtp'"))
		}
	case "webhook":
		if c.Notify.WebhookURL == "" {
			errs = append(errs, errors.New("NOTIFY_WEBHOOK_URL is required when NOTIFY_TRANSPORT is 'webhook'"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_TRANSPORT must be 'log', 'smtp', or 'webhook', got '%s'", c.Notify.Transport))
	}

	// Lifecycle validation
	if !slices.Contains([]string{"strict", "permissive"}, c.Lifecycle.Policy) {
		errs = append(errs, fmt.Errorf("LIFECYCLE_POLICY must be 'strict' or 'permissive', got '%s'", c.Lifecycle.Policy))
	}
	if c.Lifecycle.TransitionAttempts <= 0 {
		errs = append(errs, errors.New("LIFECYCLE_TRANSITION_ATTEMPTS must be positive"))
	}

	// Rate limit validation
	if c.RateLimit.Enabled {
		if c.RateLimit.Backend != "memory" && c.RateLimit.Backend != "redis" {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be 'memory' or 'redis', got '%s'", c.RateLimit.Backend))
		}
		if c.RateLimit.Rate <= 0 || c.RateLimit.Window <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_RATE and RATE_LIMIT_WINDOW must be positive"))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Helper functions for reading environment variables

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
