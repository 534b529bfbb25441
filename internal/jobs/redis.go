package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisQueueKey      = "streamgate:jobs:queue"
	redisProcessingKey = "streamgate:jobs:processing:"
	redisReplicasKey   = "streamgate:jobs:replicas"
	redisAliveKey      = "streamgate:jobs:alive:"

	replicaTTL = 30 * time.Second
)

// RedisBroker keeps pending jobs in a Redis list and parks each popped job in
// a processing list owned by this replica until it is acknowledged.
//
// Replicas announce themselves with a heartbeat key. Recover requeues this
// replica's own processing list and the lists of replicas whose heartbeat
// expired, so a restart never takes jobs another live replica is running.
// Two processes must not share a replica id.
type RedisBroker struct {
	client  *redis.Client
	replica string
	poll    time.Duration
	ttl     time.Duration
}

func NewRedisBroker(client *redis.Client, replica string) *RedisBroker {
	if replica == "" {
		replica = "default"
	}
	return &RedisBroker{client: client, replica: replica, poll: time.Second, ttl: replicaTTL}
}

func (b *RedisBroker) processingKey() string { return redisProcessingKey + b.replica }

func (b *RedisBroker) Push(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return b.client.LPush(ctx, redisQueueKey, raw).Err()
}

func (b *RedisBroker) Pop(ctx context.Context) (*Delivery, error) {
	raw, err := b.client.BLMove(ctx, redisQueueKey, b.processingKey(), "RIGHT", "LEFT", b.poll).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		// A payload nobody can decode would be redelivered forever.
		_ = b.client.LRem(ctx, b.processingKey(), 1, raw).Err()
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return &Delivery{Envelope: env, raw: raw}, nil
}

func (b *RedisBroker) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.raw == "" {
		return nil
	}
	return b.client.LRem(ctx, b.processingKey(), 1, d.raw).Err()
}

// Recover registers this replica, then requeues its own unacknowledged jobs
// and those of replicas that stopped heartbeating.
func (b *RedisBroker) Recover(ctx context.Context) (int, error) {
	if err := b.beat(ctx); err != nil {
		return 0, err
	}
	if err := b.client.SAdd(ctx, redisReplicasKey, b.replica).Err(); err != nil {
		return 0, err
	}

	moved, err := b.drain(ctx, b.replica)
	if err != nil {
		return moved, err
	}

	replicas, err := b.client.SMembers(ctx, redisReplicasKey).Result()
	if err != nil {
		return moved, err
	}
	for _, replica := range replicas {
		if replica == b.replica {
			continue
		}
		alive, err := b.client.Exists(ctx, redisAliveKey+replica).Result()
		if err != nil {
			return moved, err
		}
		if alive > 0 {
			continue
		}
		n, err := b.drain(ctx, replica)
		moved += n
		if err != nil {
			return moved, err
		}
		if err := b.client.SRem(ctx, redisReplicasKey, replica).Err(); err != nil {
			return moved, err
		}
	}
	return moved, nil
}

func (b *RedisBroker) drain(ctx context.Context, replica string) (int, error) {
	moved := 0
	for {
		err := b.client.LMove(ctx, redisProcessingKey+replica, redisQueueKey, "RIGHT", "RIGHT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

func (b *RedisBroker) beat(ctx context.Context) error {
	return b.client.Set(ctx, redisAliveKey+b.replica, time.Now().UTC().Format(time.RFC3339), b.ttl).Err()
}

// Heartbeat refreshes the replica key until ctx is done, then removes it so
// peers can recover anything left unacknowledged.
func (b *RedisBroker) Heartbeat(ctx context.Context) {
	ticker := time.NewTicker(b.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = b.client.Del(context.WithoutCancel(ctx), redisAliveKey+b.replica).Err()
			return
		case <-ticker.C:
			_ = b.beat(ctx)
		}
	}
}

func (b *RedisBroker) Len(ctx context.Context) (int64, error) {
	return b.client.LLen(ctx, redisQueueKey).Result()
}
