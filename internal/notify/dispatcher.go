package notify

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/forgo/hiretrack/api/internal/model"
)

// DefaultEnqueueTimeout bounds how long a request waits on the queue
const DefaultEnqueueTimeout = 500 * time.Millisecond

// Dispatcher turns committed stage events into queued email tasks. It never
// reports failure to its caller: an event that cannot be queued is logged and
// counted as dropped.
type Dispatcher struct {
	queue          Queue
	templates      *Templates
	enqueueTimeout time.Duration
	logger         *slog.Logger

	dispatched atomic.Int64
	dropped    atomic.Int64
}

// DispatcherConfig holds configuration for the dispatcher
type DispatcherConfig struct {
	Queue          Queue
	Templates      *Templates // defaults to DefaultTemplates()
	EnqueueTimeout time.Duration
	Logger         *slog.Logger
}

// DispatchStats counts dispatcher outcomes since start
type DispatchStats struct {
	Dispatched int64 `json:"dispatched"`
	Dropped    int64 `json:"dropped"`
}

// NewDispatcher creates a new dispatcher
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	templates := cfg.Templates
	if templates == nil {
		templates = DefaultTemplates()
	}
	timeout := cfg.EnqueueTimeout
	if timeout <= 0 {
		timeout = DefaultEnqueueTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		queue:          cfg.Queue,
		templates:      templates,
		enqueueTimeout: timeout,
		logger:         logger,
	}
}

// Dispatch renders and enqueues a notification for event
func (d *Dispatcher) Dispatch(ctx context.Context, event model.StageEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.drop(event, "dispatch panicked", slog.Any("panic", r))
		}
	}()

	email := strings.TrimSpace(event.RecipientEmail)
	if email == "" {
		d.drop(event, "no recipient")
		return
	}

	subject, message, err := d.templates.Render(event)
	if err != nil {
		d.drop(event, "render failed", slog.String("error", err.Error()))
		return
	}

	task := NewTask(email, subject, message)
	task.ApplicationID = event.ApplicationID
	task.Stage = string(event.NewStage)

	// the caller's request may end before the push completes
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.enqueueTimeout)
	defer cancel()

	if err := d.queue.Push(pushCtx, task); err != nil {
		d.drop(event, "enqueue failed",
			slog.String("error", err.Error()),
			slog.Bool("queue_unavailable", IsUnavailable(err)),
		)
		return
	}

	d.dispatched.Add(1)
	d.logger.Debug("notification queued",
		slog.String("task_id", task.ID),
		slog.String("application_id", event.ApplicationID),
		slog.String("stage", task.Stage),
	)
}

func (d *Dispatcher) drop(event model.StageEvent, reason string, attrs ...any) {
	d.dropped.Add(1)
	args := append([]any{
		slog.String("reason", reason),
		slog.String("application_id", event.ApplicationID),
		slog.String("stage", string(event.NewStage)),
	}, attrs...)
	d.logger.Warn("notification dropped", args...)
}

// Stats returns the dispatch counters
func (d *Dispatcher) Stats() DispatchStats {
	return DispatchStats{
		Dispatched: d.dispatched.Load(),
		Dropped:    d.dropped.Load(),
	}
}
