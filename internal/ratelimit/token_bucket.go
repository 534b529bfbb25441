package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Bucket levels are stored in thousandths of a token so the script can
// return integers without losing the fractional refill.
const bucketScript = `
local per_ms = tonumber(ARGV[1])
local cap = tonumber(ARGV[2]) * 1000
local ttl = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = clock[1] * 1000 + math.floor(clock[2] / 1000)

local level = tonumber(redis.call("HGET", KEYS[1], "level"))
local last = tonumber(redis.call("HGET", KEYS[1], "at"))
if level == nil or last == nil then
  level = cap
else
  local elapsed = math.max(0, now - last)
  level = math.min(cap, level + elapsed * per_ms)
end

local granted = 0
if level >= 1000 then
  granted = 1
  level = level - 1000
end

redis.call("HSET", KEYS[1], "level", level, "at", now)
redis.call("PEXPIRE", KEYS[1], ttl)
return {granted, math.floor(level)}
`

var errBucketReply = errors.New("unexpected bucket reply")

// Decision is the outcome of one bucket take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

type bucket struct {
	client *redis.Client
	script *redis.Script
	rate   float64
	burst  int
}

func newBucket(client *redis.Client, rate float64, burst int) *bucket {
	return &bucket{
		client: client,
		script: redis.NewScript(bucketScript),
		rate:   rate,
		burst:  burst,
	}
}

// idle is how long a bucket survives untouched: twice the time to refill
// from empty, never under a second.
func (b *bucket) idle() time.Duration {
	d := time.Duration(2 * float64(b.burst) / b.rate * float64(time.Second))
	if d < time.Second {
		return time.Second
	}
	return d
}

func (b *bucket) take(ctx context.Context, key string) (*Decision, error) {
	perMilli := b.rate // tokens/s == millitokens/ms
	reply, err := b.script.Run(ctx, b.client, []string{key},
		perMilli, b.burst, b.idle().Milliseconds()).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("bucket %s: %w", key, err)
	}
	if len(reply) != 2 {
		return nil, errBucketReply
	}

	d := &Decision{
		Allowed:   reply[0] == 1,
		Limit:     b.burst,
		Remaining: int(reply[1] / 1000),
	}
	if !d.Allowed {
		missing := float64(1000-reply[1]) / 1000
		d.RetryAfter = time.Duration(missing / b.rate * float64(time.Second))
	}
	return d, nil
}
