package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/forgo/hiretrack/api/internal/model"
)

// ============================================================================
// RateLimiter (memory)
// ============================================================================

func TestNewRateLimiter_Defaults(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{})
	defer rl.Stop()

	if rl.rate != 100 || rl.window != time.Minute || rl.burst != 20 {
		t.Errorf("unexpected defaults rate=%d window=%v burst=%d", rl.rate, rl.window, rl.burst)
	}
}

func TestRateLimiter_AllowsCapacityThenDenies(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{Rate: 3, Window: time.Hour, Burst: 2})
	defer rl.Stop()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d := rl.Allow(ctx, "user:1")
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if d.Remaining != 4-i {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 4-i, d.Remaining)
		}
	}

	d := rl.Allow(ctx, "user:1")
	if d.Allowed {
		t.Fatal("request beyond rate+burst should be denied")
	}
	if !d.ResetAt.After(time.Now()) {
		t.Error("denied decision should reset in the future")
	}
	if d.Limit != 3 {
		t.Errorf("expected limit 3, got %d", d.Limit)
	}
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{Rate: 1, Window: time.Hour, Burst: -1})
	defer rl.Stop()
	ctx := context.Background()

	if !rl.Allow(ctx, "a").Allowed || !rl.Allow(ctx, "b").Allowed {
		t.Fatal("first request per key should be allowed")
	}
	if rl.Allow(ctx, "a").Allowed {
		t.Error("second request for a should be denied")
	}
}

func TestRateLimiter_Refills(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{Rate: 20, Window: time.Second, Burst: -1})
	defer rl.Stop()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		rl.Allow(ctx, "k")
	}
	if rl.Allow(ctx, "k").Allowed {
		t.Fatal("bucket should be empty")
	}
	time.Sleep(120 * time.Millisecond)
	if !rl.Allow(ctx, "k").Allowed {
		t.Error("bucket should refill at rate/window")
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{Rate: 50, Window: time.Hour, Burst: -1})
	defer rl.Stop()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow(context.Background(), "shared").Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("expected exactly 50 allowed, got %d", allowed)
	}
}

func TestRateLimiter_CleanupIdle(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{Rate: 5, Window: time.Minute})
	defer rl.Stop()

	rl.Allow(context.Background(), "stale")
	rl.Allow(context.Background(), "fresh")
	rl.mu.Lock()
	rl.buckets["stale"].lastSeen = time.Now().Add(-time.Hour)
	rl.mu.Unlock()

	rl.cleanupIdle(time.Now())

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.buckets["stale"]; ok {
		t.Error("idle bucket should be removed")
	}
	if _, ok := rl.buckets["fresh"]; !ok {
		t.Error("recent bucket should be kept")
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	t.Parallel()
	rl := NewRateLimiter(RateLimitConfig{})
	rl.Stop()
	rl.Stop()
}

// ============================================================================
// RateLimit middleware
// ============================================================================

type fixedLimiter struct {
	decision Decision
	keys     []string
}

func (f *fixedLimiter) Allow(_ context.Context, key string) Decision {
	f.keys = append(f.keys, key)
	return f.decision
}

func TestRateLimitMiddleware_Allowed_SetsHeaders(t *testing.T) {
	t.Parallel()
	reset := time.Now().Add(30 * time.Second)
	limiter := &fixedLimiter{decision: Decision{Allowed: true, Limit: 10, Remaining: 7, ResetAt: reset}}
	handler := &captureHandler{}

	rr := httptest.NewRecorder()
	RateLimit(limiter)(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if !handler.called {
		t.Fatal("expected request to proceed")
	}
	if rr.Header().Get("X-RateLimit-Limit") != "10" || rr.Header().Get("X-RateLimit-Remaining") != "7" {
		t.Errorf("unexpected headers %v", rr.Header())
	}
	if rr.Header().Get("X-RateLimit-Reset") != strconv.FormatInt(reset.Unix(), 10) {
		t.Errorf("unexpected reset header %q", rr.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimitMiddleware_Denied_Returns429(t *testing.T) {
	t.Parallel()
	limiter := &fixedLimiter{decision: Decision{Allowed: false, Limit: 10, ResetAt: time.Now().Add(-time.Second)}}
	handler := &captureHandler{}

	rr := httptest.NewRecorder()
	RateLimit(limiter)(handler).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rr.Code)
	}
	if handler.called {
		t.Error("denied request must not reach the handler")
	}
	if rr.Header().Get("Retry-After") != "1" {
		t.Errorf("expected minimum Retry-After of 1, got %q", rr.Header().Get("Retry-After"))
	}
}

func TestRateLimitMiddleware_KeySelection(t *testing.T) {
	t.Parallel()
	limiter := &fixedLimiter{decision: Decision{Allowed: true}}
	mw := RateLimit(limiter)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	anon.RemoteAddr = "203.0.113.9:5555"
	mw(&captureHandler{}).ServeHTTP(httptest.NewRecorder(), anon)

	proxied := httptest.NewRequest(http.MethodGet, "/", nil)
	proxied.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.1")
	mw(&captureHandler{}).ServeHTTP(httptest.NewRecorder(), proxied)

	authed := withTestClaims(httptest.NewRequest(http.MethodGet, "/", nil), "user:5", model.UserRoleCandidate)
	mw(&captureHandler{}).ServeHTTP(httptest.NewRecorder(), authed)

	want := []string{"ip:203.0.113.9", "ip:198.51.100.1", "user:5"}
	for i, key := range want {
		if limiter.keys[i] != key {
			t.Errorf("request %d: expected key %q, got %q", i, key, limiter.keys[i])
		}
	}
}

func TestRateLimitMiddleware_NilLimiter_PassesThrough(t *testing.T) {
	t.Parallel()
	handler := &captureHandler{}
	RateLimit(nil)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if !handler.called {
		t.Error("expected pass-through without a limiter")
	}
}

// ============================================================================
// RedisLimiter
// ============================================================================

func TestRedisLimiter_SharedWindow(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}

	prefix := "hiretrack-test:rl:" + uuid.NewString()
	cfg := RateLimitConfig{Rate: 2, Window: time.Minute, Burst: -1}
	replicaA := NewRedisLimiter(client, prefix, cfg)
	replicaB := NewRedisLimiter(client, prefix, cfg)
	ctx := context.Background()

	if !replicaA.Allow(ctx, "user:1").Allowed || !replicaB.Allow(ctx, "user:1").Allowed {
		t.Fatal("first two requests should be allowed across replicas")
	}
	d := replicaA.Allow(ctx, "user:1")
	if d.Allowed {
		t.Fatal("third request should be denied by the shared counter")
	}
	if d.Remaining != 0 || !d.ResetAt.After(time.Now()) {
		t.Errorf("unexpected denied decision %+v", d)
	}
	_ = client.Del(ctx, prefix+":user:1").Err()
}

func TestRedisLimiter_Unreachable_FailsOpen(t *testing.T) {
	t.Parallel()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()

	d := NewRedisLimiter(client, "", RateLimitConfig{Rate: 1}).Allow(context.Background(), "k")
	if !d.Allowed {
		t.Error("expected fail-open when redis is unreachable")
	}
}
