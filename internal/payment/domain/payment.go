package payment

import "time"

// Status is the lifecycle state of a payment.
type Status string

const (
	StatusCreated    Status = "created"
	StatusConfirming Status = "confirming"
	StatusPaid       Status = "paid"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
	StatusRefunded   Status = "refunded"
)

// allowedTransitions is the full legal-edge table. Anything absent is illegal.
var allowedTransitions = map[Status][]Status{
	StatusCreated:    {StatusConfirming, StatusCancelled},
	StatusConfirming: {StatusPaid, StatusFailed},
	StatusPaid:       {StatusRefunded},
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusCancelled || s == StatusRefunded
}

// IsValid reports whether the status is a known state.
func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusConfirming, StatusPaid, StatusFailed, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// CanTransition is a pure lookup in the legal-edge table.
func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates an edge and returns the target state.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, &InvalidTransitionError{From: from, To: to}
	}
	return to, nil
}

// Payment is the record of a single checkout's funds-capture lifecycle.
// Amount is immutable once status leaves created.
type Payment struct {
	ID            string
	TransactionID string
	OrderID       string
	Status        Status
	Amount        int64
	Currency      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewPayment creates a payment in the created state.
func NewPayment(id, transactionID, orderID string, amount int64, currency string, now time.Time) (*Payment, error) {
	if id == "" {
		return nil, ErrEmptyPaymentID
	}
	if transactionID == "" {
		return nil, ErrEmptyTransactionID
	}
	if orderID == "" {
		return nil, ErrEmptyOrderID
	}
	if amount <= 0 {
		return nil, ErrNonPositiveAmount
	}
	if currency == "" {
		return nil, ErrEmptyCurrency
	}
	return &Payment{
		ID:            id,
		TransactionID: transactionID,
		OrderID:       orderID,
		Status:        StatusCreated,
		Amount:        amount,
		Currency:      currency,
		CreatedAt:     now.UTC(),
		UpdatedAt:     now.UTC(),
	}, nil
}

// Clone returns a detached copy.
func (p *Payment) Clone() *Payment {
	if p == nil {
		return nil
	}
	copy := *p
	return &copy
}
