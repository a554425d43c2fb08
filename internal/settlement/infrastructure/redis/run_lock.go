package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RunLock is a Redis lock on SET NX with TTL. Redis expires the key for
// crashed runners.
type RunLock struct {
	client *redis.Client
	prefix string
}

// NewRunLock constructs a run lock.
func NewRunLock(client *redis.Client) *RunLock {
	return &RunLock{client: client, prefix: "marketplace:runlock:"}
}

// Acquire takes the lock if no holder exists.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.client == nil {
		return false, errors.New("run lock: nil redis client")
	}
	return l.client.SetNX(ctx, l.prefix+key, "1", ttl).Result()
}

// Release frees the lock.
func (l *RunLock) Release(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return errors.New("run lock: nil redis client")
	}
	return l.client.Del(ctx, l.prefix+key).Err()
}
