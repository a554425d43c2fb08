package application

import (
	"context"
	"errors"
	"log"
	"time"

	commission "marketplace-core/internal/commission/domain"
	settlement "marketplace-core/internal/settlement/domain"
)

// PaidOrderItem is one paid order item line as read from the order tables
// owned by the external commerce service. Payout routes the line to the party
// being paid out; empty means the seller.
type PaidOrderItem struct {
	OrderItemID string
	OrderID     string
	SellerID    string
	SupplierID  string
	PartnerID   string
	CategoryID  string
	Quantity    int64
	UnitPrice   int64
	Currency    string
	PaidAt      time.Time
	Refund      bool
	Payout      settlement.RecipientType
}

// PaidItemReader lists paid order items for a period. Read-only port to the
// out-of-scope order service.
type PaidItemReader interface {
	ListPaid(ctx context.Context, periodStart, periodEnd time.Time) ([]PaidOrderItem, error)
}

// FailRecord captures one item excluded from a run.
type FailRecord struct {
	OrderItemID   string
	RecipientID   string
	RecipientType settlement.RecipientType
	Reason        string
}

// SkipRecord captures one item skipped by the idempotency check.
type SkipRecord struct {
	OrderItemID string
	Kind        settlement.ItemKind
	Reason      string
}

const (
	// reasonAlreadySettled marks items with an existing non-voided line.
	reasonAlreadySettled = "already-settled"
	// reasonPersistConflict marks items whose commit conflicted with a rival
	// run that never became visible to the settled-key re-check.
	reasonPersistConflict = "persist-conflict"
)

// Calculator turns paid order items into settlement item inputs using the
// commission split. A failure blocks only the affected item, never the batch.
type Calculator struct {
	resolver commission.PolicyResolver
	logger   *log.Logger
}

// NewCalculator constructs a calculator.
func NewCalculator(resolver commission.PolicyResolver, logger *log.Logger) (*Calculator, error) {
	if resolver == nil {
		return nil, errors.New("settlement calculator: nil policy resolver")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Calculator{resolver: resolver, logger: logger}, nil
}

// Build maps items to inputs. Items whose policy is missing or whose split
// violates conservation are returned as failures.
func (c *Calculator) Build(ctx context.Context, items []PaidOrderItem) ([]settlement.ItemInput, []FailRecord) {
	var inputs []settlement.ItemInput
	var failed []FailRecord

	for _, item := range items {
		input, err := c.buildOne(ctx, item)
		if err != nil {
			reason := failReason(err)
			c.logger.Printf("settlement calc: item excluded: order_item=%s reason=%s err=%v", item.OrderItemID, reason, err)
			failed = append(failed, FailRecord{
				OrderItemID:   item.OrderItemID,
				RecipientID:   recipientID(item),
				RecipientType: payoutType(item),
				Reason:        reason,
			})
			continue
		}
		inputs = append(inputs, input)
	}
	return inputs, failed
}

func (c *Calculator) buildOne(ctx context.Context, item PaidOrderItem) (settlement.ItemInput, error) {
	recipientType := payoutType(item)
	if !settlement.IsValidRecipientType(recipientType) {
		return settlement.ItemInput{}, settlement.ErrInvalidRecipientType
	}
	recipient := recipientID(item)
	if recipient == "" {
		return settlement.ItemInput{}, settlement.ErrEmptyRecipient
	}

	policy, err := c.resolver.Resolve(ctx, item.SellerID, item.CategoryID, item.PaidAt)
	if err != nil {
		return settlement.ItemInput{}, err
	}

	breakdown, err := commission.Calculate(policy, commission.Input{
		Quantity:    item.Quantity,
		UnitPrice:   item.UnitPrice,
		HasSupplier: item.SupplierID != "",
		HasPartner:  item.PartnerID != "",
	})
	if err != nil {
		return settlement.ItemInput{}, err
	}

	kind := settlement.KindSale
	if item.Refund {
		breakdown = breakdown.Negate()
		kind = settlement.KindRefund
	}

	net := recipientShare(breakdown, recipientType)
	return settlement.ItemInput{
		OrderItemID:      item.OrderItemID,
		Kind:             kind,
		RecipientID:      recipient,
		RecipientType:    recipientType,
		GrossAmount:      breakdown.Gross,
		CommissionAmount: breakdown.Gross - net,
		NetAmount:        net,
		Currency:         item.Currency,
		OrderPaidAt:      item.PaidAt,
	}, nil
}

func payoutType(item PaidOrderItem) settlement.RecipientType {
	if item.Payout == "" {
		return settlement.RecipientSeller
	}
	return item.Payout
}

func recipientID(item PaidOrderItem) string {
	switch payoutType(item) {
	case settlement.RecipientSupplier:
		return item.SupplierID
	case settlement.RecipientPartner:
		return item.PartnerID
	default:
		return item.SellerID
	}
}

func recipientShare(b commission.Breakdown, t settlement.RecipientType) int64 {
	switch t {
	case settlement.RecipientSupplier:
		return b.SupplierShare
	case settlement.RecipientPartner:
		return b.PartnerCommission
	default:
		return b.SellerMargin
	}
}

func failReason(err error) string {
	switch {
	case errors.Is(err, commission.ErrPolicyNotFound):
		return "policy-not-found"
	case errors.Is(err, commission.ErrRoundingInvariant):
		return "rounding-invariant"
	case errors.Is(err, commission.ErrNoTierMatched):
		return "no-tier-matched"
	case errors.Is(err, settlement.ErrEmptyRecipient):
		return "missing-recipient"
	case errors.Is(err, settlement.ErrInvalidRecipientType):
		return "invalid-recipient-type"
	default:
		return "calculation-error"
	}
}
