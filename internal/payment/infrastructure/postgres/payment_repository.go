package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	payment "marketplace-core/internal/payment/domain"
)

// PaymentRepository is a Postgres implementation of payment.Repository.
// The payments table carries a unique index on transaction_id.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create inserts a payment. A transaction id conflict maps to
// ErrDuplicateTransaction so the service can return the existing row.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	if r == nil || r.db == nil {
		return errors.New("payment repo: nil db")
	}
	if p == nil {
		return payment.ErrNilPayment
	}
	result, err := r.db.ExecContext(ctx, `
INSERT INTO payments (
	id, transaction_id, order_id, status, amount, currency, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (transaction_id) DO NOTHING`,
		p.ID, p.TransactionID, p.OrderID, p.Status, p.Amount, p.Currency, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return payment.ErrDuplicateTransaction
	}
	return nil
}

// FindByID loads a payment by id.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByTransactionID loads a payment by its gateway reference.
func (r *PaymentRepository) FindByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return r.findOne(ctx, `WHERE transaction_id = $1`, transactionID)
}

// FindByOrderID loads a payment by its order reference.
func (r *PaymentRepository) FindByOrderID(ctx context.Context, orderID string) (*payment.Payment, error) {
	return r.findOne(ctx, `WHERE order_id = $1`, orderID)
}

// TransitionStatus is a single-statement compare-and-swap. It reports false
// when no row matched, which callers treat as "someone else already moved it".
func (r *PaymentRepository) TransitionStatus(ctx context.Context, id string, from, to payment.Status) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("payment repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE payments
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`, id, from, to, time.Now().UTC())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *PaymentRepository) findOne(ctx context.Context, where string, arg any) (*payment.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("payment repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, transaction_id, order_id, status, amount, currency, created_at, updated_at
FROM payments
`+where+`
LIMIT 1`, arg)

	var p payment.Payment
	err := row.Scan(&p.ID, &p.TransactionID, &p.OrderID, &p.Status, &p.Amount, &p.Currency, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrPaymentNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
