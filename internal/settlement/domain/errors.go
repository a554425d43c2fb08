package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrSettlementNotFound is returned when a settlement does not exist.
	ErrSettlementNotFound = errors.New("settlement: not found")
	// ErrNilSettlement is returned when persisting a nil settlement.
	ErrNilSettlement = errors.New("settlement: nil settlement")
	// ErrNoItems is returned when creating a batch without items.
	ErrNoItems = errors.New("settlement: no items")
	// ErrItemAlreadySettled is returned when an order item line is already
	// included in a non-voided settlement.
	ErrItemAlreadySettled = errors.New("settlement: item already settled")
	// ErrInvalidStatusTransition is the match target for status violations.
	ErrInvalidStatusTransition = errors.New("settlement: invalid status transition")
	// ErrInvalidPeriod is returned when periodEnd is not after periodStart.
	ErrInvalidPeriod = errors.New("settlement: invalid period")
	// ErrEmptyRecipient is returned when the recipient id is empty.
	ErrEmptyRecipient = errors.New("settlement: empty recipient")
	// ErrInvalidRecipientType is returned for unknown recipient types.
	ErrInvalidRecipientType = errors.New("settlement: invalid recipient type")
)

// StatusTransitionError reports an illegal header status move.
type StatusTransitionError struct {
	From Status
	To   Status
}

func (e *StatusTransitionError) Error() string {
	return fmt.Sprintf("settlement: invalid status transition %s -> %s", e.From, e.To)
}

// Is matches ErrInvalidStatusTransition for errors.Is callers.
func (e *StatusTransitionError) Is(target error) bool {
	return target == ErrInvalidStatusTransition
}
