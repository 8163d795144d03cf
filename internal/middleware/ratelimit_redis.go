package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// KEYS[1]=counter ARGV[1]=window ms ARGV[2]=limit
// Returns {allowed, count, pttl}
const rateLimitScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
if current > tonumber(ARGV[2]) then
  return {0, current, ttl}
end
return {1, current, ttl}
`

const redisLimiterTimeout = 250 * time.Millisecond

// RedisLimiter is a fixed-window counter shared by every API replica
type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
	prefix string
	rate   int
	limit  int
	window time.Duration
}

// NewRedisLimiter creates a limiter over client. Rate and Burst add up to the
// per-window allowance, matching the in-memory limiter's capacity.
func NewRedisLimiter(client redis.UniversalClient, prefix string, cfg RateLimitConfig) *RedisLimiter {
	cfg = cfg.withDefaults()
	if prefix == "" {
		prefix = "hiretrack:ratelimit"
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(rateLimitScript),
		prefix: prefix,
		rate:   cfg.Rate,
		limit:  cfg.Rate + cfg.Burst,
		window: cfg.Window,
	}
}

// Allow counts the request in key's current window. When Redis is
// unreachable the request is let through.
func (l *RedisLimiter) Allow(ctx context.Context, key string) Decision {
	now := time.Now()
	open := Decision{Allowed: true, Limit: l.rate, Remaining: l.limit, ResetAt: now.Add(l.window)}
	if key == "" {
		return open
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), redisLimiterTimeout)
	defer cancel()

	res, err := l.script.Run(ctx, l.client, []string{l.prefix + ":" + key}, l.window.Milliseconds(), l.limit).Int64Slice()
	if err != nil || len(res) != 3 {
		slog.Warn("rate limiter unavailable, allowing request", slog.Any("error", err))
		return open
	}

	remaining := l.limit - int(res[1])
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   res[0] == 1,
		Limit:     l.rate,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(res[2]) * time.Millisecond),
	}
}
