package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Deletes the key only while it still holds the caller's token.
const unlockScript = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

var errNoLockClient = errors.New("lock client not configured")

// Locker hands out expiring Redis locks. Provisioning holds one per checkout
// session while it talks to the providers.
type Locker struct {
	client *redis.Client
	unlock *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, unlock: redis.NewScript(unlockScript)}
}

// TryLock returns the owner token and whether the lock was taken.
func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	switch {
	case l == nil || l.client == nil:
		return "", false, errNoLockClient
	case key == "" || ttl <= 0:
		return "", false, errors.New("lock needs a key and a positive ttl")
	}

	owner := uuid.NewString()
	err := l.client.SetArgs(ctx, key, owner, redis.SetArgs{Mode: "NX", TTL: ttl}).Err()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return owner, true, nil
}

func (l *Locker) Release(ctx context.Context, key, owner string) error {
	if l == nil || l.client == nil || key == "" || owner == "" {
		return nil
	}
	return l.unlock.Run(ctx, l.client, []string{key}, owner).Err()
}
