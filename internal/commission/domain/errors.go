package commission

import "errors"

var (
	// ErrPolicyNotFound is returned when no policy resolves for an item.
	ErrPolicyNotFound = errors.New("commission: policy not found")
	// ErrRoundingInvariant is returned when computed shares do not sum to gross.
	ErrRoundingInvariant = errors.New("commission: shares do not sum to gross")
	// ErrRateOutOfRange is returned when basis point rates are invalid.
	ErrRateOutOfRange = errors.New("commission: rate out of range")
	// ErrNoTierMatched is returned when a tiered policy covers no tier for the gross.
	ErrNoTierMatched = errors.New("commission: no tier matched")
	// ErrNilPolicy is returned when calculating without a policy.
	ErrNilPolicy = errors.New("commission: nil policy")
	// ErrNonPositiveQuantity is returned for zero or negative quantity.
	ErrNonPositiveQuantity = errors.New("commission: non-positive quantity")
	// ErrNegativeUnitPrice is returned for a negative unit price.
	ErrNegativeUnitPrice = errors.New("commission: negative unit price")
)
