package notify

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO of notification tasks with at-least-once delivery.
//
// A popped task moves to a pending set and stays there until it is acked,
// scheduled for retry, or dead-lettered. Pending tasks whose consumer died
// are returned to the queue by ReclaimStale.
type Queue interface {
	// Push appends a task at the tail
	Push(ctx context.Context, task *Task) error

	// BlockingPop waits for the next task. A zero timeout waits until ctx is
	// done; a positive timeout returns (nil, nil) when it elapses.
	BlockingPop(ctx context.Context, timeout time.Duration) (*Delivery, error)

	Ack(ctx context.Context, d *Delivery) error
	Retry(ctx context.Context, d *Delivery, next *Task, readyAt time.Time) error
	DeadLetter(ctx context.Context, d *Delivery, letter *DeadLetter) error

	// PromoteDue moves delayed tasks whose time has come onto the queue
	PromoteDue(ctx context.Context, now time.Time) (int, error)
	// ReclaimStale returns pending tasks older than visibility to the head of the queue
	ReclaimStale(ctx context.Context, visibility time.Duration) (int, error)
	Stats(ctx context.Context) (Stats, error)

	ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error)
	RequeueDeadLetters(ctx context.Context, count int) (int, error)
	PurgeDeadLetters(ctx context.Context) (int, error)

	Ping(ctx context.Context) error
	Close() error
}

// Stats is a point-in-time view of queue depth
type Stats struct {
	Ready   int64 `json:"ready"`
	Pending int64 `json:"pending"`
	Delayed int64 `json:"delayed"`
	Dead    int64 `json:"dead"`
}

// Backend names
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// QueueConfig selects and configures a queue backing
type QueueConfig struct {
	Backend  string
	Capacity int // memory only

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// Open builds the configured queue. For redis it pings once so a bad address
// fails at startup rather than on the first apply.
func Open(ctx context.Context, cfg QueueConfig) (Queue, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", BackendMemory:
		return NewMemoryQueue(cfg.Capacity), nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		q := NewRedisQueue(client, cfg.KeyPrefix)
		q.ownsClient = true
		if err := q.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
		return q, nil
	default:
		return nil, errors.Newf("unknown queue backend %q", cfg.Backend)
	}
}
