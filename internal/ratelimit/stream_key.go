package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/streamgate/internal/config"
)

const streamKeyPrefix = "streamgate:ratelimit:stream-key:"

// StreamKeyLimiter throttles stream key requests per client address. It is
// nil when Redis is not configured or the limit is switched off.
type StreamKeyLimiter struct {
	bucket *bucket
}

func NewStreamKeyLimiter(cfg config.Config, client *redis.Client) *StreamKeyLimiter {
	limits := cfg.RateLimit
	if client == nil || limits.StreamKeyRate <= 0 || limits.StreamKeyBurst <= 0 {
		return nil
	}
	return &StreamKeyLimiter{bucket: newBucket(client, limits.StreamKeyRate, limits.StreamKeyBurst)}
}

func (l *StreamKeyLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *StreamKeyLimiter) Allow(ctx context.Context, clientIP string) (*Decision, error) {
	if !l.Enabled() {
		return &Decision{Allowed: true}, nil
	}
	return l.bucket.take(ctx, streamKeyPrefix+strings.TrimSpace(clientIP))
}
