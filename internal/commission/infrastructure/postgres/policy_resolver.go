package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	commission "marketplace-core/internal/commission/domain"
)

// PolicyResolver reads commission policies owned by the external policy
// service. Read-only: this core never writes policy rows.
type PolicyResolver struct {
	db *sql.DB
}

// NewPolicyResolver constructs a resolver.
func NewPolicyResolver(db *sql.DB) *PolicyResolver {
	return &PolicyResolver{db: db}
}

// Resolve picks the most specific policy valid at the given instant. The
// ordering pushes seller scope first, then category, then global, newest
// ValidFrom within a scope.
func (r *PolicyResolver) Resolve(ctx context.Context, sellerID, categoryID string, at time.Time) (*commission.Policy, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("policy resolver: nil db")
	}

	row := r.db.QueryRowContext(ctx, `
SELECT
	id,
	scope,
	seller_id,
	category_id,
	type,
	supplier_rate_bps,
	platform_rate_bps,
	partner_rate_bps,
	fixed_fee,
	tiers,
	valid_from,
	valid_to
FROM commission_policies
WHERE valid_from <= $3
	AND (valid_to IS NULL OR valid_to > $3)
	AND (
		(scope = 'seller' AND seller_id = $1)
		OR (scope = 'category' AND category_id = $2)
		OR scope = 'global'
	)
ORDER BY
	CASE scope WHEN 'seller' THEN 2 WHEN 'category' THEN 1 ELSE 0 END DESC,
	valid_from DESC
LIMIT 1`, sellerID, categoryID, at.UTC())

	var (
		policy     commission.Policy
		sellerRef  sql.NullString
		category   sql.NullString
		tiersJSON  []byte
		validTo    sql.NullTime
		scopeValue string
		typeValue  string
	)
	err := row.Scan(
		&policy.ID,
		&scopeValue,
		&sellerRef,
		&category,
		&typeValue,
		&policy.SupplierRateBps,
		&policy.PlatformRateBps,
		&policy.PartnerRateBps,
		&policy.FixedFee,
		&tiersJSON,
		&policy.ValidFrom,
		&validTo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, commission.ErrPolicyNotFound
		}
		return nil, err
	}

	policy.Scope = commission.Scope(scopeValue)
	policy.Type = commission.Type(typeValue)
	if sellerRef.Valid {
		policy.SellerID = sellerRef.String
	}
	if category.Valid {
		policy.CategoryID = category.String
	}
	if validTo.Valid {
		policy.ValidTo = validTo.Time.UTC()
	}
	policy.ValidFrom = policy.ValidFrom.UTC()
	if len(tiersJSON) > 0 {
		if err := json.Unmarshal(tiersJSON, &policy.Tiers); err != nil {
			return nil, err
		}
	}
	return &policy, nil
}
