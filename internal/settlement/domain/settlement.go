package settlement

import "time"

// Status values for a settlement batch. Only draft is produced by an
// aggregation run; confirm/paid/void are driven by finance operations.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusPaid      Status = "paid"
	StatusVoided    Status = "voided"
)

// RecipientType identifies which party a batch pays out.
type RecipientType string

const (
	RecipientSeller   RecipientType = "seller"
	RecipientSupplier RecipientType = "supplier"
	RecipientPartner  RecipientType = "partner"
)

// IsValidRecipientType reports whether the value is a known recipient type.
func IsValidRecipientType(t RecipientType) bool {
	switch t {
	case RecipientSeller, RecipientSupplier, RecipientPartner:
		return true
	default:
		return false
	}
}

// ItemKind distinguishes the original sale line from its refund line. A
// refund is a second line for the same order item, never a merge.
type ItemKind string

const (
	KindSale   ItemKind = "sale"
	KindRefund ItemKind = "refund"
)

// Settlement is a payout batch header for one recipient and period.
type Settlement struct {
	ID              string
	RecipientID     string
	RecipientType   RecipientType
	PeriodStart     time.Time
	PeriodEnd       time.Time
	TotalGross      int64
	TotalCommission int64
	TotalNet        int64
	ItemCount       int
	Currency        string
	Status          Status
	VoidReason      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ConfirmedAt     time.Time
	PaidAt          time.Time
	VoidedAt        time.Time
}

// Item links one order item line to the batch that pays it out. The storage
// layer enforces uniqueness of (OrderItemID, Kind) across non-voided
// settlements; that constraint, not the run-lock, is the authoritative guard
// against double-settlement.
type Item struct {
	SettlementID     string
	OrderItemID      string
	Kind             ItemKind
	GrossAmount      int64
	CommissionAmount int64
	NetAmount        int64
	OrderPaidAt      time.Time
	CreatedAt        time.Time
}

// ItemInput is the transient calculator output for one order item line.
// Never mutated after creation.
type ItemInput struct {
	OrderItemID      string
	Kind             ItemKind
	RecipientID      string
	RecipientType    RecipientType
	GrossAmount      int64
	CommissionAmount int64
	NetAmount        int64
	Currency         string
	OrderPaidAt      time.Time
}

// Key identifies the input line for dedupe checks.
func (in ItemInput) Key() ItemKey {
	return ItemKey{OrderItemID: in.OrderItemID, Kind: in.Kind}
}

// ItemKey is the uniqueness key of a settlement line.
type ItemKey struct {
	OrderItemID string
	Kind        ItemKind
}

// CanTransition reports whether a header status move is legal.
// draft -> confirmed -> paid; draft and confirmed may be voided.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusDraft:
		return to == StatusConfirmed || to == StatusVoided
	case StatusConfirmed:
		return to == StatusPaid || to == StatusVoided
	default:
		return false
	}
}
