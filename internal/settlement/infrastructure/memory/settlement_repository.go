package memory

import (
	"context"
	"sync"
	"time"

	settlement "marketplace-core/internal/settlement/domain"
)

// SettlementRepository is an in-memory implementation of
// settlement.Repository for tests. The settled index plays the role of the
// unique constraint on (order_item_id, kind).
type SettlementRepository struct {
	mu      sync.Mutex
	byID    map[string]*settlement.Settlement
	items   map[string][]settlement.Item
	settled map[settlement.ItemKey]string
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository() *SettlementRepository {
	return &SettlementRepository{
		byID:    make(map[string]*settlement.Settlement),
		items:   make(map[string][]settlement.Item),
		settled: make(map[settlement.ItemKey]string),
	}
}

// CreateWithItems commits header and items atomically under the mutex.
func (r *SettlementRepository) CreateWithItems(ctx context.Context, s *settlement.Settlement, items []settlement.Item) error {
	_ = ctx
	if s == nil {
		return settlement.ErrNilSettlement
	}
	if len(items) == 0 {
		return settlement.ErrNoItems
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		key := settlement.ItemKey{OrderItemID: item.OrderItemID, Kind: item.Kind}
		if _, exists := r.settled[key]; exists {
			return settlement.ErrItemAlreadySettled
		}
	}

	clone := *s
	r.byID[s.ID] = &clone
	r.items[s.ID] = append([]settlement.Item(nil), items...)
	for _, item := range items {
		r.settled[settlement.ItemKey{OrderItemID: item.OrderItemID, Kind: item.Kind}] = s.ID
	}
	return nil
}

// FindByID loads a settlement header.
func (r *SettlementRepository) FindByID(ctx context.Context, id string) (*settlement.Settlement, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byID[id]
	if s == nil {
		return nil, settlement.ErrSettlementNotFound
	}
	clone := *s
	return &clone, nil
}

// ListByPeriod returns headers for the period.
func (r *SettlementRepository) ListByPeriod(ctx context.Context, periodStart, periodEnd time.Time, recipientType settlement.RecipientType) ([]*settlement.Settlement, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*settlement.Settlement
	for _, s := range r.byID {
		if !s.PeriodStart.Equal(periodStart) || !s.PeriodEnd.Equal(periodEnd) {
			continue
		}
		if recipientType != "" && s.RecipientType != recipientType {
			continue
		}
		clone := *s
		result = append(result, &clone)
	}
	return result, nil
}

// ListItems returns the item rows of a settlement.
func (r *SettlementRepository) ListItems(ctx context.Context, settlementID string) ([]settlement.Item, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]settlement.Item(nil), r.items[settlementID]...), nil
}

// SettledKeys reports which keys are already settled.
func (r *SettlementRepository) SettledKeys(ctx context.Context, keys []settlement.ItemKey) (map[settlement.ItemKey]bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make(map[settlement.ItemKey]bool, len(keys))
	for _, key := range keys {
		if _, ok := r.settled[key]; ok {
			result[key] = true
		}
	}
	return result, nil
}

// UpdateStatus is an atomic CAS on the header status.
func (r *SettlementRepository) UpdateStatus(ctx context.Context, id string, from, to settlement.Status) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byID[id]
	if s == nil {
		return false, settlement.ErrSettlementNotFound
	}
	if s.Status != from {
		return false, nil
	}
	now := time.Now().UTC()
	s.Status = to
	s.UpdatedAt = now
	switch to {
	case settlement.StatusConfirmed:
		s.ConfirmedAt = now
	case settlement.StatusPaid:
		s.PaidAt = now
	}
	return true, nil
}

// Void marks the settlement voided and releases its item keys.
func (r *SettlementRepository) Void(ctx context.Context, id, reason string) error {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.byID[id]
	if s == nil {
		return settlement.ErrSettlementNotFound
	}
	if !settlement.CanTransition(s.Status, settlement.StatusVoided) {
		return &settlement.StatusTransitionError{From: s.Status, To: settlement.StatusVoided}
	}
	now := time.Now().UTC()
	s.Status = settlement.StatusVoided
	s.VoidReason = reason
	s.VoidedAt = now
	s.UpdatedAt = now
	for _, item := range r.items[id] {
		delete(r.settled, settlement.ItemKey{OrderItemID: item.OrderItemID, Kind: item.Kind})
	}
	delete(r.items, id)
	return nil
}
