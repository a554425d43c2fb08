package memory

import (
	"context"
	"sync"
	"time"

	"marketplace-core/internal/settlement/application"
)

// PaidItemReader is an in-memory application.PaidItemReader for tests and
// local runs without an order database.
type PaidItemReader struct {
	mu    sync.RWMutex
	items []application.PaidOrderItem
}

// NewPaidItemReader constructs an empty reader.
func NewPaidItemReader() *PaidItemReader {
	return &PaidItemReader{}
}

// Add appends items to the backing slice.
func (r *PaidItemReader) Add(items ...application.PaidOrderItem) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, items...)
}

// ListPaid returns items whose paid timestamp falls in [periodStart, periodEnd).
func (r *PaidItemReader) ListPaid(ctx context.Context, periodStart, periodEnd time.Time) ([]application.PaidOrderItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []application.PaidOrderItem
	for _, item := range r.items {
		if item.PaidAt.Before(periodStart) || !item.PaidAt.Before(periodEnd) {
			continue
		}
		result = append(result, item)
	}
	return result, nil
}
