package notify

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces the queue keys
const DefaultKeyPrefix = "hiretrack:notify"

// promoteBatch caps how many delayed tasks one PromoteDue call moves
const promoteBatch = 500

// KEYS[1]=delayed KEYS[2]=ready ARGV[1]=now ms ARGV[2]=limit
const promoteScript = `
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, tonumber(ARGV[2]))
for _, raw in ipairs(due) do
  redis.call("ZREM", KEYS[1], raw)
  redis.call("LPUSH", KEYS[2], raw)
end
return #due
`

// KEYS[1]=processing KEYS[2]=leases KEYS[3]=ready ARGV[1]=cutoff ms ARGV[2]=now ms
// An entry with no lease was moved but never stamped; it gets one now.
const reclaimScript = `
local entries = redis.call("LRANGE", KEYS[1], 0, -1)
local reclaimed = 0
for _, raw in ipairs(entries) do
  local leased = redis.call("ZSCORE", KEYS[2], raw)
  if not leased then
    redis.call("ZADD", KEYS[2], ARGV[2], raw)
  elseif tonumber(leased) <= tonumber(ARGV[1]) then
    redis.call("LREM", KEYS[1], 1, raw)
    redis.call("ZREM", KEYS[2], raw)
    redis.call("RPUSH", KEYS[3], raw)
    reclaimed = reclaimed + 1
  end
end
return reclaimed
`

// KEYS[1]=dead KEYS[2]=ready ARGV[1]=count
const requeueScript = `
local moved = 0
local skipped = {}
for i = 1, tonumber(ARGV[1]) do
  local raw = redis.call("RPOP", KEYS[1])
  if not raw then break end
  local ok, letter = pcall(cjson.decode, raw)
  if ok and type(letter) == "table" and type(letter.payload) == "string" and letter.payload ~= "" then
    redis.call("LPUSH", KEYS[2], letter.payload)
    moved = moved + 1
  else
    table.insert(skipped, raw)
  end
end
for _, raw in ipairs(skipped) do
  redis.call("LPUSH", KEYS[1], raw)
end
return moved
`

// RedisQueue is the durable queue.
//
//	<prefix>:ready       list, LPUSH at the tail, BLMOVE RIGHT from the head
//	<prefix>:processing  list of delivered, unacked payloads
//	<prefix>:leases      zset payload -> receipt time (ms)
//	<prefix>:delayed     zset payload -> ready time (ms)
//	<prefix>:dead        list of dead letters, newest at index 0
type RedisQueue struct {
	client     redis.UniversalClient
	ownsClient bool

	ready, processing, leases, delayed, dead string

	promote *redis.Script
	reclaim *redis.Script
	requeue *redis.Script
}

// NewRedisQueue wraps an existing client. The caller keeps ownership of client.
func NewRedisQueue(client redis.UniversalClient, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisQueue{
		client:     client,
		ready:      prefix + ":ready",
		processing: prefix + ":processing",
		leases:     prefix + ":leases",
		delayed:    prefix + ":delayed",
		dead:       prefix + ":dead",
		promote:    redis.NewScript(promoteScript),
		reclaim:    redis.NewScript(reclaimScript),
		requeue:    redis.NewScript(requeueScript),
	}
}

func (q *RedisQueue) Push(ctx context.Context, task *Task) error {
	raw, err := task.Encode()
	if err != nil {
		return err
	}
	return unavailable(q.client.LPush(ctx, q.ready, raw).Err(), "push")
}

func (q *RedisQueue) BlockingPop(ctx context.Context, timeout time.Duration) (*Delivery, error) {
	raw, err := q.client.BLMove(ctx, q.ready, q.processing, "RIGHT", "LEFT", timeout).Result()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err, "blocking pop")
	}

	received := time.Now()
	// A failed stamp is repaired by the next ReclaimStale pass
	_ = q.client.ZAdd(ctx, q.leases, redis.Z{Score: float64(received.UnixMilli()), Member: raw}).Err()
	return newDelivery(raw, received), nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.Raw)
		pipe.ZRem(ctx, q.leases, d.Raw)
		return nil
	})
	return unavailable(err, "ack")
}

func (q *RedisQueue) Retry(ctx context.Context, d *Delivery, next *Task, readyAt time.Time) error {
	raw, err := next.Encode()
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.Raw)
		pipe.ZRem(ctx, q.leases, d.Raw)
		pipe.ZAdd(ctx, q.delayed, redis.Z{Score: float64(readyAt.UnixMilli()), Member: raw})
		return nil
	})
	return unavailable(err, "retry")
}

func (q *RedisQueue) DeadLetter(ctx context.Context, d *Delivery, letter *DeadLetter) error {
	raw, err := letter.encode()
	if err != nil {
		return err
	}
	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, d.Raw)
		pipe.ZRem(ctx, q.leases, d.Raw)
		pipe.LPush(ctx, q.dead, raw)
		return nil
	})
	return unavailable(err, "dead letter")
}

func (q *RedisQueue) PromoteDue(ctx context.Context, now time.Time) (int, error) {
	n, err := q.promote.Run(ctx, q.client, []string{q.delayed, q.ready},
		strconv.FormatInt(now.UnixMilli(), 10), promoteBatch).Int()
	if err != nil {
		return 0, unavailable(err, "promote delayed")
	}
	return n, nil
}

func (q *RedisQueue) ReclaimStale(ctx context.Context, visibility time.Duration) (int, error) {
	now := time.Now()
	cutoff := now.Add(-visibility)
	n, err := q.reclaim.Run(ctx, q.client, []string{q.processing, q.leases, q.ready},
		cutoff.UnixMilli(), now.UnixMilli()).Int()
	if err != nil {
		return 0, unavailable(err, "reclaim stale")
	}
	return n, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	var ready, processing, delayed, dead *redis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		ready = pipe.LLen(ctx, q.ready)
		processing = pipe.LLen(ctx, q.processing)
		delayed = pipe.ZCard(ctx, q.delayed)
		dead = pipe.LLen(ctx, q.dead)
		return nil
	})
	if err != nil {
		return Stats{}, unavailable(err, "stats")
	}
	return Stats{
		Ready:   ready.Val(),
		Pending: processing.Val(),
		Delayed: delayed.Val(),
		Dead:    dead.Val(),
	}, nil
}

// ListDeadLetters returns up to limit letters, newest first
func (q *RedisQueue) ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	raws, err := q.client.LRange(ctx, q.dead, 0, stop).Result()
	if err != nil {
		return nil, unavailable(err, "list dead letters")
	}

	letters := make([]*DeadLetter, 0, len(raws))
	for _, raw := range raws {
		letter, err := decodeDeadLetter(raw)
		if err != nil {
			letter = &DeadLetter{Raw: raw, Reason: "unreadable dead letter"}
		}
		letters = append(letters, letter)
	}
	return letters, nil
}

// RequeueDeadLetters moves up to count of the oldest letters back onto the queue
func (q *RedisQueue) RequeueDeadLetters(ctx context.Context, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}
	n, err := q.requeue.Run(ctx, q.client, []string{q.dead, q.ready}, count).Int()
	if err != nil {
		return 0, unavailable(err, "requeue dead letters")
	}
	return n, nil
}

func (q *RedisQueue) PurgeDeadLetters(ctx context.Context) (int, error) {
	var length *redis.IntCmd
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		length = pipe.LLen(ctx, q.dead)
		pipe.Del(ctx, q.dead)
		return nil
	})
	if err != nil {
		return 0, unavailable(err, "purge dead letters")
	}
	return int(length.Val()), nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return unavailable(q.client.Ping(ctx).Err(), "ping")
}

// Close releases the client when the queue created it
func (q *RedisQueue) Close() error {
	if !q.ownsClient {
		return nil
	}
	return q.client.Close()
}
