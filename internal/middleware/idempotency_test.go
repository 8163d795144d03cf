package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/forgo/hiretrack/api/internal/model"
)

// countingHandler answers 201 with a body naming the call number
func countingHandler(calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"call":` + strconv.Itoa(int(n)) + `,"echo":"` + string(body) + `"}`))
	})
}

func keyedRequest(method, path, key, body, userID string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyHeader, key)
	}
	if userID != "" {
		req = withTestClaims(req, userID, model.UserRoleRecruiter)
	}
	return req
}

func newTestStore(t *testing.T, ttl time.Duration) *IdempotencyStore {
	t.Helper()
	store := NewIdempotencyStore(IdempotencyConfig{TTL: ttl, Cleanup: time.Hour})
	t.Cleanup(store.Stop)
	return store
}

// ============================================================================
// Store
// ============================================================================

func TestNewIdempotencyStore_Defaults(t *testing.T) {
	t.Parallel()
	store := NewIdempotencyStore(IdempotencyConfig{})
	defer store.Stop()

	if store.ttl != 24*time.Hour {
		t.Errorf("expected TTL 24h, got %v", store.ttl)
	}
	if store.maxBody != DefaultMaxIdempotentBody {
		t.Errorf("expected body cap %d, got %d", DefaultMaxIdempotentBody, store.maxBody)
	}
}

func TestIdempotencyStore_StopTwice(t *testing.T) {
	t.Parallel()
	store := NewIdempotencyStore(IdempotencyConfig{Cleanup: time.Millisecond})
	store.Stop()
	store.Stop()
}

func TestIdempotencyStore_SweepDropsExpired(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Minute)
	h := Idempotency(store)(countingHandler(new(atomic.Int32)))

	h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/v1/jobs/job:1/applications", "k1", "{}", "user:1"))

	store.sweep(time.Now())
	if len(store.entries) != 1 {
		t.Fatalf("live entry swept early")
	}
	store.sweep(time.Now().Add(2 * time.Minute))
	if len(store.entries) != 0 {
		t.Errorf("expected expired entry to be swept, have %d", len(store.entries))
	}
}

// ============================================================================
// fingerprint
// ============================================================================

func TestFingerprint(t *testing.T) {
	t.Parallel()
	base := fingerprint("user:1", "k", http.MethodPost, "/a", []byte("x"))

	if base != fingerprint("user:1", "k", http.MethodPost, "/a", []byte("x")) {
		t.Error("same inputs must give the same fingerprint")
	}
	variants := map[string]string{
		"user":   fingerprint("user:2", "k", http.MethodPost, "/a", []byte("x")),
		"key":    fingerprint("user:1", "k2", http.MethodPost, "/a", []byte("x")),
		"method": fingerprint("user:1", "k", http.MethodPatch, "/a", []byte("x")),
		"path":   fingerprint("user:1", "k", http.MethodPost, "/b", []byte("x")),
		"body":   fingerprint("user:1", "k", http.MethodPost, "/a", []byte("y")),
		"shift":  fingerprint("user:1k", "", http.MethodPost, "/a", []byte("x")),
	}
	for name, fp := range variants {
		if fp == base {
			t.Errorf("%s change did not change the fingerprint", name)
		}
	}
}

// ============================================================================
// Idempotency()
// ============================================================================

func TestIdempotency_PassThrough(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		store  bool
		method string
		key    string
	}{
		{name: "nil store", method: http.MethodPost, key: "k"},
		{name: "GET", store: true, method: http.MethodGet, key: "k"},
		{name: "DELETE", store: true, method: http.MethodDelete, key: "k"},
		{name: "no key", store: true, method: http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var store *IdempotencyStore
			if tt.store {
				store = newTestStore(t, time.Hour)
			}
			calls := new(atomic.Int32)
			h := Idempotency(store)(countingHandler(calls))

			for range 2 {
				rr := httptest.NewRecorder()
				h.ServeHTTP(rr, keyedRequest(tt.method, "/x", tt.key, "{}", "user:1"))
				if rr.Header().Get(ReplayedHeader) != "" {
					t.Error("response must not be replayed")
				}
			}
			if calls.Load() != 2 {
				t.Errorf("expected handler to run twice, ran %d", calls.Load())
			}
		})
	}
}

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	calls := new(atomic.Int32)
	h := Idempotency(store)(countingHandler(calls))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, keyedRequest(http.MethodPatch, "/v1/applications/a1/stage", "move-1", "screening", "user:1"))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, keyedRequest(http.MethodPatch, "/v1/applications/a1/stage", "move-1", "screening", "user:1"))

	if calls.Load() != 1 {
		t.Fatalf("expected one handler run, got %d", calls.Load())
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("replay differs: %d %q vs %q", second.Code, second.Body.String(), first.Body.String())
	}
	if second.Header().Get(ReplayedHeader) != "true" {
		t.Error("expected replay marker")
	}
	if second.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected content type replayed, got %q", second.Header().Get("Content-Type"))
	}
}

func TestIdempotency_ScopedPerUserAndBody(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	calls := new(atomic.Int32)
	h := Idempotency(store)(countingHandler(calls))

	h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/x", "same", "a", "user:1"))
	h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/x", "same", "a", "user:2"))
	h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/x", "same", "b", "user:1"))

	if calls.Load() != 3 {
		t.Errorf("expected three distinct runs, got %d", calls.Load())
	}
}

func TestIdempotency_RestoresBody(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	rr := httptest.NewRecorder()

	Idempotency(store)(countingHandler(new(atomic.Int32))).ServeHTTP(rr, keyedRequest(http.MethodPost, "/x", "k", "payload", ""))

	if !strings.Contains(rr.Body.String(), `"echo":"payload"`) {
		t.Errorf("handler did not see the body: %q", rr.Body.String())
	}
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	calls := new(atomic.Int32)
	rr := httptest.NewRecorder()

	Idempotency(store)(countingHandler(calls)).ServeHTTP(rr, keyedRequest(http.MethodPost, "/x", strings.Repeat("k", 129), "{}", "user:1"))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
	if calls.Load() != 0 {
		t.Error("handler must not run")
	}
}

func TestIdempotency_BodyTooLarge(t *testing.T) {
	t.Parallel()
	store := NewIdempotencyStore(IdempotencyConfig{MaxBody: 16, Cleanup: time.Hour})
	t.Cleanup(store.Stop)
	calls := new(atomic.Int32)
	h := Idempotency(store)(countingHandler(calls))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, keyedRequest(http.MethodPost, "/x", "k", strings.Repeat("a", 17), "user:1"))
	if rr.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rr.Code)
	}
	if calls.Load() != 0 {
		t.Error("handler must not run")
	}
	if len(store.entries) != 0 {
		t.Error("an oversized request must not claim the key")
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, keyedRequest(http.MethodPost, "/x", "k", strings.Repeat("a", 16), "user:1"))
	if rr.Code != http.StatusCreated || calls.Load() != 1 {
		t.Errorf("body at the cap should pass, got %d after %d runs", rr.Code, calls.Load())
	}
}

func TestIdempotency_ServerErrorIsNotCached(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	var calls atomic.Int32
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, keyedRequest(http.MethodPost, "/x", "k", "{}", "user:1"))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, keyedRequest(http.MethodPost, "/x", "k", "{}", "user:1"))

	if first.Code != http.StatusServiceUnavailable || second.Code != http.StatusOK {
		t.Errorf("expected 503 then 200, got %d then %d", first.Code, second.Code)
	}
	if calls.Load() != 2 {
		t.Errorf("expected retry to run the handler, ran %d", calls.Load())
	}
}

func TestIdempotency_ClientErrorIsReplayed(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	var calls atomic.Int32
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		model.NewConflictError("already applied").WriteJSON(w)
	}))

	for range 2 {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, keyedRequest(http.MethodPost, "/x", "k", "{}", "user:1"))
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409, got %d", rr.Code)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected one run, got %d", calls.Load())
	}
}

func TestIdempotency_PanicForgetsEntry(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	func() {
		defer func() { _ = recover() }()
		h.ServeHTTP(httptest.NewRecorder(), keyedRequest(http.MethodPost, "/x", "k", "{}", "user:1"))
	}()

	if len(store.entries) != 0 {
		t.Errorf("expected panicked request to be forgotten, have %d entries", len(store.entries))
	}
}

func TestIdempotency_ConcurrentDuplicateWaits(t *testing.T) {
	t.Parallel()
	store := newTestStore(t, time.Hour)
	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	h := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("created"))
	}))

	var wg sync.WaitGroup
	results := make([]*httptest.ResponseRecorder, 2)
	for i := range results {
		results[i] = httptest.NewRecorder()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(results[0], keyedRequest(http.MethodPost, "/x", "k", "{}", "user:1"))
	}()
	<-started

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.ServeHTTP(results[1], keyedRequest(http.MethodPost, "/x", "k", "{}", "user:1"))
	}()

	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected one handler run, got %d", calls.Load())
	}
	for i, rr := range results {
		if rr.Code != http.StatusCreated || rr.Body.String() != "created" {
			t.Errorf("result %d: %d %q", i, rr.Code, rr.Body.String())
		}
	}
	if results[1].Header().Get(ReplayedHeader) != "true" {
		t.Error("duplicate should be a replay")
	}
}
