package commission

import "time"

// Scope determines how specifically a policy targets items.
type Scope string

// Policy scopes, from least to most specific.
const (
	ScopeGlobal   Scope = "global"
	ScopeCategory Scope = "category"
	ScopeSeller   Scope = "seller"
)

// Type selects how the platform portion is computed.
type Type string

const (
	TypePercentage Type = "percentage"
	TypeFixed      Type = "fixed"
	TypeTiered     Type = "tiered"
)

// Tier holds a platform rate for a gross amount range. MaxGross 0 means
// unbounded.
type Tier struct {
	MinGross        int64 `json:"min_gross"`
	MaxGross        int64 `json:"max_gross"`
	PlatformRateBps int64 `json:"platform_rate_bps"`
}

// Policy is the rule set splitting a gross amount between supplier, seller,
// partner and platform. Rates are basis points of the gross. Amounts are
// minor units. The validity window is half-open: [ValidFrom, ValidTo).
// A zero ValidTo means no expiry.
type Policy struct {
	ID              string
	Scope           Scope
	SellerID        string
	CategoryID      string
	Type            Type
	SupplierRateBps int64
	PlatformRateBps int64
	PartnerRateBps  int64
	FixedFee        int64
	Tiers           []Tier
	ValidFrom       time.Time
	ValidTo         time.Time
}

// ValidAt reports whether the policy covers the given instant.
func (p *Policy) ValidAt(at time.Time) bool {
	if p == nil {
		return false
	}
	if at.Before(p.ValidFrom) {
		return false
	}
	if !p.ValidTo.IsZero() && !at.Before(p.ValidTo) {
		return false
	}
	return true
}

// Matches reports whether the policy applies to the given seller and category.
func (p *Policy) Matches(sellerID, categoryID string) bool {
	if p == nil {
		return false
	}
	switch p.Scope {
	case ScopeSeller:
		return p.SellerID != "" && p.SellerID == sellerID
	case ScopeCategory:
		return p.CategoryID != "" && p.CategoryID == categoryID
	case ScopeGlobal:
		return true
	default:
		return false
	}
}

// Specificity orders scopes for resolution precedence.
func (p *Policy) Specificity() int {
	switch p.Scope {
	case ScopeSeller:
		return 2
	case ScopeCategory:
		return 1
	default:
		return 0
	}
}
