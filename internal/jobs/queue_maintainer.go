package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/forgo/hiretrack/api/internal/notify"
)

// Maintenance defaults
const (
	DefaultMaintenanceInterval = 5 * time.Second
	DefaultVisibilityTimeout   = 2 * time.Minute
)

// QueueMaintainer keeps the notification queue moving
// - Promotes delayed retries whose backoff has elapsed
// - Returns tasks whose consumer died without settling them
type QueueMaintainer struct {
	queue      notify.Queue
	interval   time.Duration
	visibility time.Duration
	logger     *slog.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	running    bool
	mu         sync.Mutex
}

// QueueMaintainerConfig holds configuration for the maintainer
type QueueMaintainerConfig struct {
	Queue      notify.Queue
	Interval   time.Duration
	Visibility time.Duration
	Logger     *slog.Logger
}

// NewQueueMaintainer creates a new queue maintenance job
func NewQueueMaintainer(cfg QueueMaintainerConfig) *QueueMaintainer {
	m := &QueueMaintainer{
		queue:      cfg.Queue,
		interval:   cfg.Interval,
		visibility: cfg.Visibility,
		logger:     cfg.Logger,
		stopCh:     make(chan struct{}),
	}
	if m.interval <= 0 {
		m.interval = DefaultMaintenanceInterval
	}
	if m.visibility <= 0 {
		m.visibility = DefaultVisibilityTimeout
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// Start begins the maintenance loop
func (m *QueueMaintainer) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()
	m.logger.Info("queue maintainer started",
		slog.Duration("interval", m.interval),
		slog.Duration("visibility", m.visibility),
	)
}

// Stop gracefully stops the maintenance loop
func (m *QueueMaintainer) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("queue maintainer stopped")
}

func (m *QueueMaintainer) run() {
	defer m.wg.Done()

	m.tick()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.tick()
		case <-m.stopCh:
			return
		}
	}
}

func (m *QueueMaintainer) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), m.interval)
	defer cancel()

	if err := m.RunOnce(ctx); err != nil {
		m.logger.Error("queue maintenance failed", slog.String("error", err.Error()))
	}
}

// RunOnce runs one promote and reclaim pass (for testing or manual trigger)
func (m *QueueMaintainer) RunOnce(ctx context.Context) error {
	promoted, promoteErr := m.queue.PromoteDue(ctx, time.Now())
	reclaimed, reclaimErr := m.queue.ReclaimStale(ctx, m.visibility)

	if promoted > 0 || reclaimed > 0 {
		m.logger.Info("queue maintenance",
			slog.Int("promoted", promoted),
			slog.Int("reclaimed", reclaimed),
		)
	}
	return errors.CombineErrors(promoteErr, reclaimErr)
}

// IsRunning returns whether the maintainer is running
func (m *QueueMaintainer) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
