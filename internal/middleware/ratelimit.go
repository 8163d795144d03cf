package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/forgo/hiretrack/api/internal/model"
)

// Decision is a limiter's answer for one request
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether a request identified by key may proceed
type Limiter interface {
	Allow(ctx context.Context, key string) Decision
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	Rate    int           // Requests per window (default 100)
	Window  time.Duration // Time window (default 1 minute)
	Burst   int           // Max burst on top of Rate (default 20)
	Cleanup time.Duration // Cleanup interval for idle keys (default 5 minutes)
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Rate <= 0 {
		c.Rate = 100
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	if c.Burst < 0 {
		c.Burst = 0
	} else if c.Burst == 0 {
		c.Burst = 20
	}
	if c.Cleanup <= 0 {
		c.Cleanup = 5 * time.Minute
	}
	return c
}

// RateLimiter keeps one token bucket per key in process memory
type RateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*keyBucket
	rate     int
	window   time.Duration
	burst    int
	limit    rate.Limit
	stopChan chan struct{}
	stopOnce sync.Once
}

type keyBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg = cfg.withDefaults()

	rl := &RateLimiter{
		buckets:  make(map[string]*keyBucket),
		rate:     cfg.Rate,
		window:   cfg.Window,
		burst:    cfg.Burst,
		limit:    rate.Limit(float64(cfg.Rate) / cfg.Window.Seconds()),
		stopChan: make(chan struct{}),
	}

	go rl.cleanupLoop(cfg.Cleanup)

	return rl
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopChan) })
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupIdle(time.Now())
		case <-rl.stopChan:
			return
		}
	}
}

// cleanupIdle drops buckets unused for two windows; they would be full anyway
func (rl *RateLimiter) cleanupIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := now.Add(-rl.window * 2)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// Allow takes one token from key's bucket
func (rl *RateLimiter) Allow(_ context.Context, key string) Decision {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &keyBucket{limiter: rate.NewLimiter(rl.limit, rl.rate+rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	allowed := b.limiter.AllowN(now, 1)
	tokens := b.limiter.TokensAt(now)

	// allowed: when the bucket is full again; denied: when one token is back
	missing := float64(rl.rate+rl.burst) - tokens
	if !allowed {
		missing = 1 - tokens
	}
	reset := now
	if missing > 0 {
		reset = now.Add(time.Duration(missing / float64(rl.limit) * float64(time.Second)))
	}
	remaining := int(math.Max(0, math.Floor(tokens)))

	return Decision{Allowed: allowed, Limit: rl.rate, Remaining: remaining, ResetAt: reset}
}

// RateLimit returns a middleware that applies rate limiting. Authenticated
// callers are limited per user, everyone else per client IP.
func RateLimit(limiter Limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := GetUserID(r.Context())
			if key == "" {
				key = "ip:" + ClientIP(r)
			}

			d := limiter.Allow(r.Context(), key)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAfter := int(math.Ceil(time.Until(d.ResetAt).Seconds()))
				if retryAfter < 1 {
					retryAfter = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

				model.NewRateLimitError(retryAfter).WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop or the remote host
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
