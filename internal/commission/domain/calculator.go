package commission

// Input describes one paid order item line for splitting.
type Input struct {
	Quantity    int64
	UnitPrice   int64
	HasSupplier bool
	HasPartner  bool
}

// Gross is the line total in minor units.
func (in Input) Gross() int64 {
	return in.Quantity * in.UnitPrice
}

// Breakdown splits a gross amount. The four shares always sum exactly to
// Gross: supplier, partner and seller are rounded half-up on basis points and
// the platform fee takes the residual.
type Breakdown struct {
	Gross             int64
	SupplierShare     int64
	SellerMargin      int64
	PartnerCommission int64
	PlatformFee       int64
}

// Negate returns the breakdown with all amounts negated. Refunds are a second
// line for the same order item, never merged with the original.
func (b Breakdown) Negate() Breakdown {
	return Breakdown{
		Gross:             -b.Gross,
		SupplierShare:     -b.SupplierShare,
		SellerMargin:      -b.SellerMargin,
		PartnerCommission: -b.PartnerCommission,
		PlatformFee:       -b.PlatformFee,
	}
}

const bpsDenominator = 10000

// Calculate splits the line gross per the policy. The returned breakdown
// conserves value exactly; ErrRoundingInvariant signals a calculator bug and
// callers must exclude the item rather than adjust.
func Calculate(policy *Policy, in Input) (Breakdown, error) {
	if policy == nil {
		return Breakdown{}, ErrNilPolicy
	}
	if in.Quantity <= 0 {
		return Breakdown{}, ErrNonPositiveQuantity
	}
	if in.UnitPrice < 0 {
		return Breakdown{}, ErrNegativeUnitPrice
	}

	gross := in.Gross()

	supplierBps := policy.SupplierRateBps
	if !in.HasSupplier {
		supplierBps = 0
	}
	partnerBps := policy.PartnerRateBps
	if !in.HasPartner {
		partnerBps = 0
	}

	platformBps, platformFixed, err := platformPortion(policy, gross, in.Quantity)
	if err != nil {
		return Breakdown{}, err
	}

	if supplierBps < 0 || partnerBps < 0 || platformBps < 0 {
		return Breakdown{}, ErrRateOutOfRange
	}
	if supplierBps+partnerBps+platformBps > bpsDenominator {
		return Breakdown{}, ErrRateOutOfRange
	}

	supplierShare := roundBps(gross, supplierBps)
	partnerCommission := roundBps(gross, partnerBps)

	sellerBps := int64(bpsDenominator) - supplierBps - partnerBps - platformBps
	sellerMargin := roundBps(gross, sellerBps) - platformFixed

	platformFee := gross - supplierShare - partnerCommission - sellerMargin

	b := Breakdown{
		Gross:             gross,
		SupplierShare:     supplierShare,
		SellerMargin:      sellerMargin,
		PartnerCommission: partnerCommission,
		PlatformFee:       platformFee,
	}
	if b.SupplierShare+b.SellerMargin+b.PartnerCommission+b.PlatformFee != gross {
		return Breakdown{}, ErrRoundingInvariant
	}
	return b, nil
}

// platformPortion resolves the platform take as a rate and/or a fixed amount.
func platformPortion(policy *Policy, gross, quantity int64) (bps int64, fixed int64, err error) {
	switch policy.Type {
	case TypePercentage:
		return policy.PlatformRateBps, 0, nil
	case TypeFixed:
		return 0, policy.FixedFee * quantity, nil
	case TypeTiered:
		for _, tier := range policy.Tiers {
			if gross < tier.MinGross {
				continue
			}
			if tier.MaxGross != 0 && gross >= tier.MaxGross {
				continue
			}
			return tier.PlatformRateBps, 0, nil
		}
		return 0, 0, ErrNoTierMatched
	default:
		return 0, 0, ErrRateOutOfRange
	}
}

// roundBps computes amount*bps/10000 with half-up rounding. Negative amounts
// round away from zero so refund lines mirror their originals exactly.
func roundBps(amount, bps int64) int64 {
	product := amount * bps
	if product >= 0 {
		return (product + bpsDenominator/2) / bpsDenominator
	}
	return -((-product + bpsDenominator/2) / bpsDenominator)
}
