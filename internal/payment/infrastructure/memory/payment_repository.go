package memory

import (
	"context"
	"sync"
	"time"

	payment "marketplace-core/internal/payment/domain"
)

// PaymentRepository is an in-memory implementation of payment.Repository.
// TransitionStatus holds the mutex across the compare and the swap, giving
// the same linearizable-per-id guarantee as the SQL CAS.
type PaymentRepository struct {
	mu     sync.RWMutex
	byID   map[string]*payment.Payment
	byTxID map[string]string
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository() *PaymentRepository {
	return &PaymentRepository{
		byID:   make(map[string]*payment.Payment),
		byTxID: make(map[string]string),
	}
}

// Create inserts a payment, enforcing transaction id uniqueness.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	_ = ctx
	if p == nil {
		return payment.ErrNilPayment
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTxID[p.TransactionID]; exists {
		return payment.ErrDuplicateTransaction
	}
	r.byID[p.ID] = p.Clone()
	r.byTxID[p.TransactionID] = p.ID
	return nil
}

// FindByID loads a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*payment.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	p := r.byID[id]
	if p == nil {
		return nil, payment.ErrPaymentNotFound
	}
	return p.Clone(), nil
}

// FindByTransactionID loads a payment by its gateway reference.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTxID[transactionID]
	if !ok {
		return nil, payment.ErrPaymentNotFound
	}
	return r.byID[id].Clone(), nil
}

// FindByOrderID loads a payment by its order reference.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.byID {
		if p.OrderID == orderID {
			return p.Clone(), nil
		}
	}
	return nil, payment.ErrPaymentNotFound
}

// TransitionStatus atomically swaps status when it still equals from.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from, to payment.Status) (bool, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.byID[id]
	if p == nil {
		return false, payment.ErrPaymentNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}
