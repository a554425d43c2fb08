package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// RunLock is a table-based lock with TTL expiry. A crashed runner's lock is
// taken over once its expires_at passes.
type RunLock struct {
	db *sql.DB
}

// NewRunLock constructs a run lock.
func NewRunLock(db *sql.DB) *RunLock {
	return &RunLock{db: db}
}

// Acquire takes the lock if it is free or expired. Non-blocking.
func (l *RunLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l == nil || l.db == nil {
		return false, errors.New("run lock: nil db")
	}
	now := time.Now().UTC()
	result, err := l.db.ExecContext(ctx, `
INSERT INTO settlement_run_locks (key, locked_at, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (key)
DO UPDATE SET locked_at = EXCLUDED.locked_at, expires_at = EXCLUDED.expires_at
WHERE settlement_run_locks.expires_at <= $2`,
		key, now, now.Add(ttl))
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Release frees the lock.
func (l *RunLock) Release(ctx context.Context, key string) error {
	if l == nil || l.db == nil {
		return errors.New("run lock: nil db")
	}
	_, err := l.db.ExecContext(ctx, `DELETE FROM settlement_run_locks WHERE key = $1`, key)
	return err
}
