package notify

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMemoryCapacity bounds the ready list of a MemoryQueue
const DefaultMemoryCapacity = 10000

type delayedEntry struct {
	raw     string
	readyAt time.Time
}

// MemoryQueue keeps the same ready/pending/delayed/dead layout as the Redis
// queue inside one process. Everything is lost when the process exits.
type MemoryQueue struct {
	mu       sync.Mutex
	ready    []string
	pending  map[string]time.Time
	delayed  []delayedEntry
	dead     []*DeadLetter // oldest first
	capacity int
	closed   bool
	wake     chan struct{}
	now      func() time.Time
}

// NewMemoryQueue creates an empty queue. capacity <= 0 uses DefaultMemoryCapacity.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryQueue{
		pending:  make(map[string]time.Time),
		capacity: capacity,
		wake:     make(chan struct{}),
		now:      time.Now,
	}
}

// broadcast wakes every blocked pop; caller holds q.mu
func (q *MemoryQueue) broadcast() {
	close(q.wake)
	q.wake = make(chan struct{})
}

func (q *MemoryQueue) Push(_ context.Context, task *Task) error {
	raw, err := task.Encode()
	if err != nil {
		return err
	}
	return q.pushRaw(raw)
}

func (q *MemoryQueue) pushRaw(raw string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueUnavailable
	}
	if len(q.ready) >= q.capacity {
		return ErrQueueFull
	}
	q.ready = append(q.ready, raw)
	q.broadcast()
	return nil
}

func (q *MemoryQueue) BlockingPop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueUnavailable
		}
		if len(q.ready) > 0 {
			raw := q.ready[0]
			q.ready = q.ready[1:]
			received := q.now()
			q.pending[raw] = received
			q.mu.Unlock()
			return newDelivery(raw, received), nil
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-expired:
			return nil, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *MemoryQueue) Ack(_ context.Context, d *Delivery) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, d.Raw)
	return nil
}

func (q *MemoryQueue) Retry(_ context.Context, d *Delivery, next *Task, readyAt time.Time) error {
	raw, err := next.Encode()
	if err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, d.Raw)
	q.delayed = append(q.delayed, delayedEntry{raw: raw, readyAt: readyAt})
	return nil
}

func (q *MemoryQueue) DeadLetter(_ context.Context, d *Delivery, letter *DeadLetter) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.pending, d.Raw)
	q.dead = append(q.dead, letter)
	return nil
}

func (q *MemoryQueue) PromoteDue(_ context.Context, now time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sort.SliceStable(q.delayed, func(i, k int) bool {
		return q.delayed[i].readyAt.Before(q.delayed[k].readyAt)
	})

	moved := 0
	for moved < len(q.delayed) && !q.delayed[moved].readyAt.After(now) {
		q.ready = append(q.ready, q.delayed[moved].raw)
		moved++
	}
	q.delayed = q.delayed[moved:]
	if moved > 0 {
		q.broadcast()
	}
	return moved, nil
}

func (q *MemoryQueue) ReclaimStale(_ context.Context, visibility time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-visibility)
	var stale []delayedEntry
	for raw, received := range q.pending {
		if !received.After(cutoff) {
			stale = append(stale, delayedEntry{raw: raw, readyAt: received})
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	// oldest lease is popped first
	sort.Slice(stale, func(i, k int) bool { return stale[i].readyAt.Before(stale[k].readyAt) })
	head := make([]string, 0, len(stale)+len(q.ready))
	for _, s := range stale {
		delete(q.pending, s.raw)
		head = append(head, s.raw)
	}
	q.ready = append(head, q.ready...)
	q.broadcast()
	return len(stale), nil
}

func (q *MemoryQueue) Stats(_ context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{
		Ready:   int64(len(q.ready)),
		Pending: int64(len(q.pending)),
		Delayed: int64(len(q.delayed)),
		Dead:    int64(len(q.dead)),
	}, nil
}

// ListDeadLetters returns up to limit letters, newest first
func (q *MemoryQueue) ListDeadLetters(_ context.Context, limit int) ([]*DeadLetter, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]*DeadLetter, 0)
	for i := len(q.dead) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		letter := *q.dead[i]
		out = append(out, &letter)
	}
	return out, nil
}

// RequeueDeadLetters pushes up to count of the oldest letters back onto the
// queue with their attempt counters reset. Malformed letters stay put.
func (q *MemoryQueue) RequeueDeadLetters(_ context.Context, count int) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	moved := 0
	kept := make([]*DeadLetter, 0, len(q.dead))
	for _, letter := range q.dead {
		if moved < count && letter.Payload != "" && len(q.ready) < q.capacity {
			q.ready = append(q.ready, letter.Payload)
			moved++
			continue
		}
		kept = append(kept, letter)
	}
	q.dead = kept
	if moved > 0 {
		q.broadcast()
	}
	return moved, nil
}

func (q *MemoryQueue) PurgeDeadLetters(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.dead)
	q.dead = nil
	return n, nil
}

func (q *MemoryQueue) Ping(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueUnavailable
	}
	return nil
}

// Close wakes blocked consumers; later calls fail with ErrQueueUnavailable
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.broadcast()
	}
	return nil
}
