package memory

import (
	"context"
	"sync"
	"time"

	commission "marketplace-core/internal/commission/domain"
)

// PolicyResolver resolves policies from an in-memory list.
type PolicyResolver struct {
	mu       sync.RWMutex
	policies []*commission.Policy
}

// NewPolicyResolver constructs a resolver with the given policies.
func NewPolicyResolver(policies ...*commission.Policy) *PolicyResolver {
	r := &PolicyResolver{}
	r.policies = append(r.policies, policies...)
	return r
}

// Add registers a policy.
func (r *PolicyResolver) Add(policy *commission.Policy) {
	if policy == nil {
		return
	}
	r.mu.Lock()
	r.policies = append(r.policies, policy)
	r.mu.Unlock()
}

// Resolve picks the most specific valid policy, most recent ValidFrom on ties.
func (r *PolicyResolver) Resolve(ctx context.Context, sellerID, categoryID string, at time.Time) (*commission.Policy, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *commission.Policy
	for _, candidate := range r.policies {
		if !candidate.ValidAt(at) || !candidate.Matches(sellerID, categoryID) {
			continue
		}
		if best == nil {
			best = candidate
			continue
		}
		if candidate.Specificity() > best.Specificity() {
			best = candidate
			continue
		}
		if candidate.Specificity() == best.Specificity() && candidate.ValidFrom.After(best.ValidFrom) {
			best = candidate
		}
	}
	if best == nil {
		return nil, commission.ErrPolicyNotFound
	}
	clone := *best
	clone.Tiers = append([]commission.Tier(nil), best.Tiers...)
	return &clone, nil
}
