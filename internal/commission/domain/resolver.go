package commission

import (
	"context"
	"time"
)

// PolicyResolver finds the commission policy for an item at order-paid time.
// Precedence: seller-specific over category over global; among equally
// specific candidates the most recently valid-from wins. Resolvers return
// ErrPolicyNotFound when nothing applies.
type PolicyResolver interface {
	Resolve(ctx context.Context, sellerID, categoryID string, at time.Time) (*Policy, error)
}
