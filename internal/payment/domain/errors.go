package payment

import (
	"errors"
	"fmt"
)

var (
	// ErrPaymentNotFound is returned when a payment does not exist.
	ErrPaymentNotFound = errors.New("payment: not found")
	// ErrEmptyPaymentID is returned when a payment id is empty.
	ErrEmptyPaymentID = errors.New("payment: empty payment id")
	// ErrEmptyTransactionID is returned when a gateway transaction id is empty.
	ErrEmptyTransactionID = errors.New("payment: empty transaction id")
	// ErrEmptyOrderID is returned when an order reference is empty.
	ErrEmptyOrderID = errors.New("payment: empty order id")
	// ErrNonPositiveAmount is returned when the amount is zero or negative.
	ErrNonPositiveAmount = errors.New("payment: non-positive amount")
	// ErrEmptyCurrency is returned when the currency code is empty.
	ErrEmptyCurrency = errors.New("payment: empty currency")
	// ErrDuplicateTransaction is returned when the transaction id already exists.
	ErrDuplicateTransaction = errors.New("payment: duplicate transaction id")
	// ErrInvalidTransition is the match target for InvalidTransitionError.
	ErrInvalidTransition = errors.New("payment: invalid transition")
	// ErrNilPayment is returned when persisting a nil payment.
	ErrNilPayment = errors.New("payment: nil payment")
)

// InvalidTransitionError reports an edge missing from the transition table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment: invalid transition %s -> %s", e.From, e.To)
}

// Is matches ErrInvalidTransition for errors.Is callers.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
