package memory

import (
	"context"
	"sync"
	"time"
)

// RunLock is an in-memory lock with TTL expiry.
type RunLock struct {
	mu    sync.Mutex
	held  map[string]time.Time
	clock func() time.Time
}

// NewRunLock constructs a run lock.
func NewRunLock() *RunLock {
	return &RunLock{held: make(map[string]time.Time), clock: time.Now}
}

// Acquire takes the lock if free or expired.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if expires, ok := l.held[key]; ok && expires.After(now) {
		return false, nil
	}
	l.held[key] = now.Add(ttl)
	return true, nil
}

// Release frees the lock.
func (l *RunLock) Release(ctx context.Context, key string) error {
	_ = ctx
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
