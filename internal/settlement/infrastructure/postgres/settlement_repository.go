package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	settlement "marketplace-core/internal/settlement/domain"
)

// SettlementRepository is a Postgres implementation of settlement.Repository.
// settlement_items carries a unique index on (order_item_id, kind); voiding
// deletes the item rows, so the index only ever covers non-voided batches.
type SettlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// CreateWithItems commits the header and all item rows in one transaction.
// Any item conflict aborts the batch with ErrItemAlreadySettled.
func (r *SettlementRepository) CreateWithItems(ctx context.Context, s *settlement.Settlement, items []settlement.Item) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return settlement.ErrNilSettlement
	}
	if len(items) == 0 {
		return settlement.ErrNoItems
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO settlements (
	id, recipient_id, recipient_type, period_start, period_end,
	total_gross, total_commission, total_net, item_count,
	currency, status, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		s.ID, s.RecipientID, s.RecipientType, s.PeriodStart.UTC(), s.PeriodEnd.UTC(),
		s.TotalGross, s.TotalCommission, s.TotalNet, s.ItemCount,
		s.Currency, s.Status, s.CreatedAt.UTC(), s.UpdatedAt.UTC())
	if err != nil {
		return err
	}

	for _, item := range items {
		result, err := tx.ExecContext(ctx, `
INSERT INTO settlement_items (
	settlement_id, order_item_id, kind,
	gross_amount, commission_amount, net_amount,
	order_paid_at, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (order_item_id, kind) DO NOTHING`,
			item.SettlementID, item.OrderItemID, item.Kind,
			item.GrossAmount, item.CommissionAmount, item.NetAmount,
			item.OrderPaidAt.UTC(), item.CreatedAt.UTC())
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return settlement.ErrItemAlreadySettled
		}
	}

	return tx.Commit()
}

// FindByID loads a settlement header.
func (r *SettlementRepository) FindByID(ctx context.Context, id string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, recipient_id, recipient_type, period_start, period_end,
	total_gross, total_commission, total_net, item_count,
	currency, status, void_reason,
	created_at, updated_at, confirmed_at, paid_at, voided_at
FROM settlements
WHERE id = $1`, id)
	return scanSettlement(row)
}

// ListByPeriod returns headers overlapping exactly the given period. Empty
// recipientType returns all types.
func (r *SettlementRepository) ListByPeriod(ctx context.Context, periodStart, periodEnd time.Time, recipientType settlement.RecipientType) ([]*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, recipient_id, recipient_type, period_start, period_end,
	total_gross, total_commission, total_net, item_count,
	currency, status, void_reason,
	created_at, updated_at, confirmed_at, paid_at, voided_at
FROM settlements
WHERE period_start = $1 AND period_end = $2
	AND ($3 = '' OR recipient_type = $3)
ORDER BY recipient_type ASC, recipient_id ASC`,
		periodStart.UTC(), periodEnd.UTC(), string(recipientType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*settlement.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListItems returns the item rows of a settlement.
func (r *SettlementRepository) ListItems(ctx context.Context, settlementID string) ([]settlement.Item, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT settlement_id, order_item_id, kind,
	gross_amount, commission_amount, net_amount,
	order_paid_at, created_at
FROM settlement_items
WHERE settlement_id = $1
ORDER BY order_item_id ASC, kind ASC`, settlementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []settlement.Item
	for rows.Next() {
		var item settlement.Item
		if err := rows.Scan(
			&item.SettlementID, &item.OrderItemID, &item.Kind,
			&item.GrossAmount, &item.CommissionAmount, &item.NetAmount,
			&item.OrderPaidAt, &item.CreatedAt,
		); err != nil {
			return nil, err
		}
		item.OrderPaidAt = item.OrderPaidAt.UTC()
		item.CreatedAt = item.CreatedAt.UTC()
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SettledKeys reports which keys already belong to a non-voided settlement.
func (r *SettlementRepository) SettledKeys(ctx context.Context, keys []settlement.ItemKey) (map[settlement.ItemKey]bool, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	result := make(map[settlement.ItemKey]bool, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	ids := make([]string, 0, len(keys))
	kinds := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, key.OrderItemID)
		kinds = append(kinds, string(key.Kind))
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT i.order_item_id, i.kind
FROM settlement_items i
WHERE (i.order_item_id, i.kind) IN (
	SELECT * FROM unnest($1::text[], $2::text[])
)`, ids, kinds)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, kind string
		if err := rows.Scan(&id, &kind); err != nil {
			return nil, err
		}
		result[settlement.ItemKey{OrderItemID: id, Kind: settlement.ItemKind(kind)}] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateStatus is an atomic CAS on the header status. The target status also
// stamps its timestamp column.
func (r *SettlementRepository) UpdateStatus(ctx context.Context, id string, from, to settlement.Status) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("settlement repo: nil db")
	}
	now := time.Now().UTC()
	var result sql.Result
	var err error
	switch to {
	case settlement.StatusConfirmed:
		result, err = r.db.ExecContext(ctx, `
UPDATE settlements
SET status = $3, confirmed_at = $4, updated_at = $4
WHERE id = $1 AND status = $2`, id, from, to, now)
	case settlement.StatusPaid:
		result, err = r.db.ExecContext(ctx, `
UPDATE settlements
SET status = $3, paid_at = $4, updated_at = $4
WHERE id = $1 AND status = $2`, id, from, to, now)
	default:
		result, err = r.db.ExecContext(ctx, `
UPDATE settlements
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`, id, from, to, now)
	}
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// Void marks the settlement voided and deletes its item rows, releasing the
// order item ids.
func (r *SettlementRepository) Void(ctx context.Context, id, reason string) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
UPDATE settlements
SET status = $2, void_reason = $3, voided_at = $4, updated_at = $4
WHERE id = $1 AND status IN ($5, $6)`,
		id, settlement.StatusVoided, reason, now,
		settlement.StatusDraft, settlement.StatusConfirmed)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Zero rows covers both a missing settlement and one that left the
		// voidable statuses concurrently. Tell them apart for the caller.
		var status string
		err := tx.QueryRowContext(ctx, `
SELECT status FROM settlements WHERE id = $1`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return settlement.ErrSettlementNotFound
		}
		if err != nil {
			return err
		}
		return &settlement.StatusTransitionError{From: settlement.Status(status), To: settlement.StatusVoided}
	}

	if _, err := tx.ExecContext(ctx, `
DELETE FROM settlement_items WHERE settlement_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var s settlement.Settlement
	var voidReason sql.NullString
	var confirmedAt, paidAt, voidedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.RecipientID, &s.RecipientType, &s.PeriodStart, &s.PeriodEnd,
		&s.TotalGross, &s.TotalCommission, &s.TotalNet, &s.ItemCount,
		&s.Currency, &s.Status, &voidReason,
		&s.CreatedAt, &s.UpdatedAt, &confirmedAt, &paidAt, &voidedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, settlement.ErrSettlementNotFound
		}
		return nil, err
	}
	if voidReason.Valid {
		s.VoidReason = voidReason.String
	}
	if confirmedAt.Valid {
		s.ConfirmedAt = confirmedAt.Time.UTC()
	}
	if paidAt.Valid {
		s.PaidAt = paidAt.Time.UTC()
	}
	if voidedAt.Valid {
		s.VoidedAt = voidedAt.Time.UTC()
	}
	s.PeriodStart = s.PeriodStart.UTC()
	s.PeriodEnd = s.PeriodEnd.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
