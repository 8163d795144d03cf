package notify

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Worker defaults
const (
	DefaultConcurrency = 1
	DefaultPopTimeout  = 5 * time.Second
	DefaultErrorPause  = 2 * time.Second
	DefaultSendTimeout = 10 * time.Second
	DefaultMaxAttempts = 5
	DefaultBackoffBase = 2 * time.Second
	DefaultBackoffMax  = 5 * time.Minute
	queueOpTimeout     = 5 * time.Second
	maxJitterFraction  = 0.1
)

// WorkerConfig holds configuration for the notification worker
type WorkerConfig struct {
	Queue     Queue
	Transport Transport

	Concurrency int
	PopTimeout  time.Duration
	ErrorPause  time.Duration
	SendTimeout time.Duration
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// SendRate limits sends per second across all loops; zero is unlimited
	SendRate  float64
	SendBurst int

	Logger *slog.Logger
}

// WorkerStats counts worker outcomes since start
type WorkerStats struct {
	Sent         int64 `json:"sent"`
	Retried      int64 `json:"retried"`
	DeadLettered int64 `json:"dead_lettered"`
}

// Worker consumes the notification queue and sends through a Transport
type Worker struct {
	queue       Queue
	transport   Transport
	limiter     *rate.Limiter
	concurrency int
	popTimeout  time.Duration
	errorPause  time.Duration
	sendTimeout time.Duration
	maxAttempts int
	backoffBase time.Duration
	backoffMax  time.Duration
	logger      *slog.Logger

	sent         atomic.Int64
	retried      atomic.Int64
	deadLettered atomic.Int64

	cancel  context.CancelFunc
	done    chan struct{}
	running bool
	mu      sync.Mutex
}

// NewWorker creates a new worker
func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		queue:       cfg.Queue,
		transport:   cfg.Transport,
		concurrency: orDefault(cfg.Concurrency, DefaultConcurrency),
		popTimeout:  orDefault(cfg.PopTimeout, DefaultPopTimeout),
		errorPause:  orDefault(cfg.ErrorPause, DefaultErrorPause),
		sendTimeout: orDefault(cfg.SendTimeout, DefaultSendTimeout),
		maxAttempts: orDefault(cfg.MaxAttempts, DefaultMaxAttempts),
		backoffBase: orDefault(cfg.BackoffBase, DefaultBackoffBase),
		backoffMax:  orDefault(cfg.BackoffMax, DefaultBackoffMax),
		logger:      cfg.Logger,
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	if w.transport == nil {
		w.transport = NewLogTransport(w.logger)
	}

	w.limiter = rate.NewLimiter(rate.Inf, 1)
	if cfg.SendRate > 0 {
		w.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), max(cfg.SendBurst, 1))
	}
	return w
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Run processes the queue until ctx is cancelled, then waits for in-flight
// deliveries to finish
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
}

// Start runs the worker in the background
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	go func(done chan struct{}) {
		defer close(done)
		w.Run(ctx)
	}(w.done)

	w.logger.Info("notification worker started",
		slog.String("transport", w.transport.Name()),
		slog.Int("concurrency", w.concurrency),
	)
}

// Stop signals the loops and waits for in-flight deliveries to drain
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("notification worker stopped")
}

// IsRunning returns whether the worker was started and not stopped
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns the worker counters
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Sent:         w.sent.Load(),
		Retried:      w.retried.Load(),
		DeadLettered: w.deadLettered.Load(),
	}
}

func (w *Worker) loop(ctx context.Context, id int) {
	for ctx.Err() == nil {
		_, err := w.ProcessOne(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}

		w.logger.Error("notification queue error",
			slog.Int("worker_id", id),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
		case <-time.After(w.errorPause):
		}
	}
}

// ProcessOne waits up to the pop timeout for one task and handles it. It
// reports whether a task was handled; a queue error is returned as is.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	d, err := w.queue.BlockingPop(ctx, w.popTimeout)
	if err != nil {
		return false, err
	}
	if d == nil {
		return false, nil
	}
	w.handle(ctx, d)
	return true, nil
}

func (w *Worker) handle(ctx context.Context, d *Delivery) {
	// in-flight work completes even when the worker is told to stop
	detached := context.WithoutCancel(ctx)

	if d.DecodeErr != nil {
		w.logger.Warn("dead-lettering malformed task",
			slog.String("error", d.DecodeErr.Error()),
		)
		w.deadLetter(detached, d, nil, "malformed payload: "+d.DecodeErr.Error())
		return
	}
	task := d.Task

	sendCtx, cancel := context.WithTimeout(detached, w.sendTimeout)
	defer cancel()

	err := w.limiter.Wait(sendCtx)
	if err == nil {
		err = w.transport.Send(sendCtx, messageFor(task))
	}
	if err == nil {
		w.sent.Add(1)
		w.queueOp(detached, "ack", task, func(opCtx context.Context) error {
			return w.queue.Ack(opCtx, d)
		})
		return
	}

	next := *task
	next.Attempts++
	next.LastError = err.Error()

	if IsPermanent(err) || next.Attempts >= w.maxAttempts {
		w.logger.Warn("notification failed, dead-lettering",
			slog.String("task_id", task.ID),
			slog.Int("attempt", next.Attempts),
			slog.Bool("permanent", IsPermanent(err)),
			slog.String("error", err.Error()),
		)
		w.deadLetter(detached, d, &next, err.Error())
		return
	}

	delay := w.backoff(next.Attempts)
	w.logger.Info("notification failed, retry scheduled",
		slog.String("task_id", task.ID),
		slog.Int("attempt", next.Attempts),
		slog.Int("max_attempts", w.maxAttempts),
		slog.Duration("backoff", delay),
		slog.String("error", err.Error()),
	)
	w.retried.Add(1)
	w.queueOp(detached, "retry", task, func(opCtx context.Context) error {
		return w.queue.Retry(opCtx, d, &next, time.Now().Add(delay))
	})
}

func (w *Worker) deadLetter(ctx context.Context, d *Delivery, task *Task, reason string) {
	w.deadLettered.Add(1)
	w.queueOp(ctx, "dead letter", task, func(opCtx context.Context) error {
		return w.queue.DeadLetter(opCtx, d, NewDeadLetter(d, task, reason))
	})
}

// queueOp runs a settle operation. A failure leaves the task pending, where
// ReclaimStale will find it.
func (w *Worker) queueOp(ctx context.Context, op string, task *Task, fn func(context.Context) error) {
	opCtx, cancel := context.WithTimeout(ctx, queueOpTimeout)
	defer cancel()
	if err := fn(opCtx); err != nil {
		attrs := []any{slog.String("op", op), slog.String("error", err.Error())}
		if task != nil {
			attrs = append(attrs, slog.String("task_id", task.ID))
		}
		w.logger.Error("notification queue settle failed", attrs...)
	}
}

func (w *Worker) backoff(attempt int) time.Duration {
	delay := BackoffDelay(attempt, w.backoffBase, w.backoffMax)
	if jitter := int64(float64(delay) * maxJitterFraction); jitter > 0 {
		delay += time.Duration(rand.Int64N(jitter))
	}
	return delay
}

// BackoffDelay returns base * 2^(attempt-1), capped at limit
func BackoffDelay(attempt int, base, limit time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= limit || delay <= 0 {
			return limit
		}
	}
	return min(delay, limit)
}
