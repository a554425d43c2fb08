package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"marketplace-core/internal/settlement/application"
	settlement "marketplace-core/internal/settlement/domain"
)

// PaidItemReader reads paid order items from the order tables owned by the
// commerce service. Read-only, never writes.
type PaidItemReader struct {
	db *sql.DB
}

// NewPaidItemReader constructs a reader.
func NewPaidItemReader(db *sql.DB) *PaidItemReader {
	return &PaidItemReader{db: db}
}

// ListPaid returns items of orders paid within [periodStart, periodEnd).
// Refund lines carry refund = true and settle as negative amounts downstream.
func (r *PaidItemReader) ListPaid(ctx context.Context, periodStart, periodEnd time.Time) ([]application.PaidOrderItem, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("paid item reader: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT oi.id, oi.order_id, oi.seller_id, oi.supplier_id, oi.partner_id,
	oi.category_id, oi.quantity, oi.unit_price, o.currency, o.paid_at,
	oi.refund, oi.payout_type
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
WHERE o.status = 'paid'
	AND o.paid_at >= $1 AND o.paid_at < $2
ORDER BY oi.id ASC`, periodStart.UTC(), periodEnd.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []application.PaidOrderItem
	for rows.Next() {
		var item application.PaidOrderItem
		var supplierID, partnerID, categoryID, payoutType sql.NullString
		if err := rows.Scan(
			&item.OrderItemID, &item.OrderID, &item.SellerID, &supplierID, &partnerID,
			&categoryID, &item.Quantity, &item.UnitPrice, &item.Currency, &item.PaidAt,
			&item.Refund, &payoutType,
		); err != nil {
			return nil, err
		}
		item.SupplierID = supplierID.String
		item.PartnerID = partnerID.String
		item.CategoryID = categoryID.String
		item.Payout = settlement.RecipientType(payoutType.String)
		item.PaidAt = item.PaidAt.UTC()
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
