package settlement

import (
	"context"
	"time"
)

// Repository persists settlement batches. CreateWithItems commits the header
// and all its item rows in one transaction; a uniqueness conflict on any item
// aborts the whole batch with ErrItemAlreadySettled.
type Repository interface {
	CreateWithItems(ctx context.Context, s *Settlement, items []Item) error
	FindByID(ctx context.Context, id string) (*Settlement, error)
	ListByPeriod(ctx context.Context, periodStart, periodEnd time.Time, recipientType RecipientType) ([]*Settlement, error)
	ListItems(ctx context.Context, settlementID string) ([]Item, error)
	// SettledKeys reports which of the given keys already belong to a
	// non-voided settlement.
	SettledKeys(ctx context.Context, keys []ItemKey) (map[ItemKey]bool, error)
	// UpdateStatus is an atomic CAS on the header status.
	UpdateStatus(ctx context.Context, id string, from, to Status) (bool, error)
	// Void marks the settlement voided and deletes its item rows, releasing
	// the order item ids for re-inclusion in a future run.
	Void(ctx context.Context, id, reason string) error
}

// RunLock serializes aggregation runs for one period and recipient type.
// Acquire is non-blocking; the TTL releases locks held by crashed runners.
type RunLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
