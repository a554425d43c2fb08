package payment

import "context"

// Repository persists payments. TransitionStatus is the atomic CAS primitive
// that makes concurrent lifecycle transitions race-safe: it mutates the row
// only when the persisted status still equals from, and reports whether a row
// was changed.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	FindByID(ctx context.Context, id string) (*Payment, error)
	FindByTransactionID(ctx context.Context, transactionID string) (*Payment, error)
	FindByOrderID(ctx context.Context, orderID string) (*Payment, error)
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)
}
