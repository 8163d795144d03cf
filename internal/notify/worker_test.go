package notify

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTransport records sends and fails according to fail
type recordingTransport struct {
	mu   sync.Mutex
	sent []Message
	fail func(msg Message) error
}

func (r *recordingTransport) Name() string { return "recording" }

func (r *recordingTransport) Send(_ context.Context, msg Message) error {
	if r.fail != nil {
		if err := r.fail(msg); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingTransport) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.sent...)
}

func newTestWorker(q Queue, tr Transport, maxAttempts int) *Worker {
	return NewWorker(WorkerConfig{
		Queue:       q,
		Transport:   tr,
		PopTimeout:  50 * time.Millisecond,
		ErrorPause:  10 * time.Millisecond,
		SendTimeout: time.Second,
		MaxAttempts: maxAttempts,
		BackoffBase: time.Second,
		BackoffMax:  time.Minute,
	})
}

func TestWorker_FIFOForSingleProducer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)
	tr := &recordingTransport{}
	w := newTestWorker(q, tr, 3)

	want := []string{"1@x.io", "2@x.io", "3@x.io", "4@x.io", "5@x.io"}
	for _, email := range want {
		require.NoError(t, q.Push(ctx, NewTask(email, "s", "m")))
	}

	w.Start()
	require.Eventually(t, func() bool { return len(tr.Sent()) == len(want) }, 2*time.Second, 10*time.Millisecond)
	w.Stop()

	var got []string
	for _, m := range tr.Sent() {
		got = append(got, m.To)
	}
	assert.Equal(t, want, got)

	stats, _ := q.Stats(ctx)
	assert.Equal(t, Stats{}, stats, "every task acked")
	assert.Equal(t, int64(5), w.Stats().Sent)
}

func TestWorker_TransientFailure_RetriesThenDeadLetters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)
	tr := &recordingTransport{fail: func(Message) error {
		return deliveryFailed(errors.New("connection reset"), "send")
	}}
	w := newTestWorker(q, tr, 3)
	require.NoError(t, q.Push(ctx, NewTask("flaky@x.io", "s", "m")))

	for attempt := 1; attempt <= 3; attempt++ {
		handled, err := w.ProcessOne(ctx)
		require.NoError(t, err)
		require.True(t, handled, "attempt %d", attempt)

		if attempt < 3 {
			stats, _ := q.Stats(ctx)
			assert.Equal(t, int64(1), stats.Delayed, "attempt %d scheduled for retry", attempt)
			_, err := q.PromoteDue(ctx, time.Now().Add(time.Hour))
			require.NoError(t, err)
		}
	}

	stats, _ := q.Stats(ctx)
	assert.Equal(t, Stats{Dead: 1}, stats)

	letters, err := q.ListDeadLetters(ctx, 1)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 3, letters[0].Task.Attempts)
	assert.Equal(t, 3, letters[0].Attempts)
	assert.Contains(t, letters[0].Task.LastError, "connection reset")
	assert.Equal(t, WorkerStats{Retried: 2, DeadLettered: 1}, w.Stats())
}

func TestWorker_PermanentFailure_DeadLettersImmediately(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)
	tr := &recordingTransport{fail: func(Message) error {
		return Permanent(deliveryFailed(errors.New("550 mailbox unavailable"), "send"))
	}}
	w := newTestWorker(q, tr, 5)
	require.NoError(t, q.Push(ctx, NewTask("gone@x.io", "s", "m")))

	handled, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, handled)

	stats, _ := q.Stats(ctx)
	assert.Equal(t, Stats{Dead: 1}, stats)
	assert.Equal(t, int64(0), w.Stats().Retried)
}

func TestWorker_MalformedPayload_DeadLettered(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)
	tr := &recordingTransport{}
	w := newTestWorker(q, tr, 5)
	require.NoError(t, q.pushRaw(`{"subject": 42`))

	handled, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, handled)

	assert.Empty(t, tr.Sent())
	letters, err := q.ListDeadLetters(ctx, 0)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Nil(t, letters[0].Task)
	assert.Equal(t, `{"subject": 42`, letters[0].Raw)
	assert.Contains(t, letters[0].Reason, "malformed")
}

func TestWorker_RecipientPayload_IsSent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)
	tr := &recordingTransport{}
	w := newTestWorker(q, tr, 5)
	require.NoError(t, q.pushRaw(`{"recipient":"c1@example.com","subject":"Hi","message":"moved","extra":1}`))

	handled, err := w.ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, handled)

	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "c1@example.com", sent[0].To)
	assert.Equal(t, "Hi", sent[0].Subject)
	assert.Equal(t, "moved", sent[0].Body)

	stats, _ := q.Stats(ctx)
	assert.Equal(t, Stats{}, stats)
}

func TestWorker_EmptyQueue_ProcessOneTimesOut(t *testing.T) {
	t.Parallel()
	w := newTestWorker(NewMemoryQueue(0), &recordingTransport{}, 3)

	handled, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)
}

func TestWorker_Stop_DrainsInFlightDelivery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)

	started := make(chan struct{})
	release := make(chan struct{})
	tr := &recordingTransport{fail: func(Message) error {
		close(started)
		<-release
		return nil
	}}
	w := newTestWorker(q, tr, 3)
	require.NoError(t, q.Push(ctx, NewTask("slow@x.io", "s", "m")))

	w.Start()
	<-started

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a send was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the send finished")
	}

	assert.False(t, w.IsRunning())
	assert.Len(t, tr.Sent(), 1)
	stats, _ := q.Stats(ctx)
	assert.Equal(t, Stats{}, stats, "in-flight task acked before exit")
}

func TestWorker_QueueError_PausesAndContinues(t *testing.T) {
	t.Parallel()
	q := NewMemoryQueue(0)
	require.NoError(t, q.Close())
	w := newTestWorker(q, &recordingTransport{}, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not exit on cancellation")
	}
}

func TestWorker_SendRateLimited(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := NewMemoryQueue(0)
	tr := &recordingTransport{}
	w := NewWorker(WorkerConfig{
		Queue:      q,
		Transport:  tr,
		PopTimeout: 50 * time.Millisecond,
		SendRate:   20,
		SendBurst:  1,
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Push(ctx, NewTask("r@x.io", "s", "m")))
	}

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := w.ProcessOne(ctx)
		require.NoError(t, err)
	}
	// burst 1 at 20/s: the second and third sends wait ~50ms each
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
	assert.Len(t, tr.Sent(), 3)
}

func TestBackoffDelay(t *testing.T) {
	t.Parallel()
	base, limit := 2*time.Second, 30*time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 2 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, BackoffDelay(tt.attempt, base, limit), "attempt %d", tt.attempt)
	}
}

func TestWorker_BackoffAddsBoundedJitter(t *testing.T) {
	t.Parallel()
	w := newTestWorker(NewMemoryQueue(0), &recordingTransport{}, 3)

	for i := 0; i < 50; i++ {
		d := w.backoff(2)
		assert.GreaterOrEqual(t, d, 2*time.Second)
		assert.Less(t, d, 2*time.Second+200*time.Millisecond)
	}
}
