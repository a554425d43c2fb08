package application

import (
	"context"
	"errors"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	settlement "marketplace-core/internal/settlement/domain"
)

// Aggregator groups item inputs into per-recipient settlement batches. Each
// recipient commits independently: one failing recipient never aborts the
// others, and the settled-key pre-check makes re-runs idempotent.
type Aggregator struct {
	repo   settlement.Repository
	clock  Clock
	logger *log.Logger
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NewAggregator constructs an aggregator.
func NewAggregator(repo settlement.Repository, clock Clock, logger *log.Logger) (*Aggregator, error) {
	if repo == nil {
		return nil, errors.New("settlement aggregator: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Aggregator{repo: repo, clock: clock, logger: logger}, nil
}

type recipientKey struct {
	ID   string
	Type settlement.RecipientType
}

// Aggregate creates one draft settlement per recipient from the inputs.
func (a *Aggregator) Aggregate(ctx context.Context, periodStart, periodEnd time.Time, inputs []settlement.ItemInput) ([]*settlement.Settlement, []SkipRecord, []FailRecord) {
	var created []*settlement.Settlement
	var skipped []SkipRecord
	var failed []FailRecord

	remaining, preSkipped, err := a.dropSettled(ctx, inputs)
	if err != nil {
		a.logger.Printf("settlement aggregate: settled-key check error: %v", err)
		for _, input := range inputs {
			failed = append(failed, FailRecord{
				OrderItemID:   input.OrderItemID,
				RecipientID:   input.RecipientID,
				RecipientType: input.RecipientType,
				Reason:        "settled-check-error",
			})
		}
		return nil, nil, failed
	}
	skipped = append(skipped, preSkipped...)

	groups := make(map[recipientKey][]settlement.ItemInput)
	for _, input := range remaining {
		key := recipientKey{ID: input.RecipientID, Type: input.RecipientType}
		groups[key] = append(groups[key], input)
	}

	keys := make([]recipientKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})

	for _, key := range keys {
		batch, groupSkipped, groupFailed := a.commitGroup(ctx, key, periodStart, periodEnd, groups[key])
		if batch != nil {
			created = append(created, batch)
		}
		skipped = append(skipped, groupSkipped...)
		failed = append(failed, groupFailed...)
	}
	return created, skipped, failed
}

const maxCommitAttempts = 3

// commitGroup persists one recipient batch. A create conflict means a rival
// run settled part of the group after the pre-check; only the keys the
// re-check confirms settled are skipped, the remainder retries as a smaller
// batch.
func (a *Aggregator) commitGroup(ctx context.Context, key recipientKey, periodStart, periodEnd time.Time, group []settlement.ItemInput) (*settlement.Settlement, []SkipRecord, []FailRecord) {
	var skipped []SkipRecord
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		batch, items := a.buildBatch(key, periodStart, periodEnd, group)
		err := a.repo.CreateWithItems(ctx, batch, items)
		if err == nil {
			return batch, skipped, nil
		}
		if !errors.Is(err, settlement.ErrItemAlreadySettled) {
			a.logger.Printf("settlement aggregate: create error: recipient=%s type=%s err=%v", key.ID, key.Type, err)
			return nil, skipped, failGroup(key, group, "persist-error")
		}

		remaining, nowSettled, checkErr := a.dropSettled(ctx, group)
		if checkErr != nil {
			a.logger.Printf("settlement aggregate: settled-key recheck error: recipient=%s type=%s err=%v", key.ID, key.Type, checkErr)
			return nil, skipped, failGroup(key, group, "settled-check-error")
		}
		skipped = append(skipped, nowSettled...)
		if len(remaining) == 0 {
			return nil, skipped, nil
		}
		if len(nowSettled) == 0 {
			// The rival transaction has not committed yet, so nothing in the
			// group reads as settled. Retrying would hit the same conflict.
			break
		}
		group = remaining
	}
	a.logger.Printf("settlement aggregate: create conflict unresolved: recipient=%s type=%s items=%d", key.ID, key.Type, len(group))
	return nil, skipped, failGroup(key, group, reasonPersistConflict)
}

func failGroup(key recipientKey, group []settlement.ItemInput, reason string) []FailRecord {
	records := make([]FailRecord, 0, len(group))
	for _, input := range group {
		records = append(records, FailRecord{
			OrderItemID:   input.OrderItemID,
			RecipientID:   key.ID,
			RecipientType: key.Type,
			Reason:        reason,
		})
	}
	return records
}

func (a *Aggregator) dropSettled(ctx context.Context, inputs []settlement.ItemInput) ([]settlement.ItemInput, []SkipRecord, error) {
	if len(inputs) == 0 {
		return nil, nil, nil
	}
	keys := make([]settlement.ItemKey, 0, len(inputs))
	for _, input := range inputs {
		keys = append(keys, input.Key())
	}
	settled, err := a.repo.SettledKeys(ctx, keys)
	if err != nil {
		return nil, nil, err
	}

	var remaining []settlement.ItemInput
	var skipped []SkipRecord
	for _, input := range inputs {
		if settled[input.Key()] {
			skipped = append(skipped, SkipRecord{
				OrderItemID: input.OrderItemID,
				Kind:        input.Kind,
				Reason:      reasonAlreadySettled,
			})
			continue
		}
		remaining = append(remaining, input)
	}
	return remaining, skipped, nil
}

func (a *Aggregator) buildBatch(key recipientKey, periodStart, periodEnd time.Time, group []settlement.ItemInput) (*settlement.Settlement, []settlement.Item) {
	now := a.clock.Now()
	batch := &settlement.Settlement{
		ID:            "stl-" + uuid.NewString(),
		RecipientID:   key.ID,
		RecipientType: key.Type,
		PeriodStart:   periodStart.UTC(),
		PeriodEnd:     periodEnd.UTC(),
		Currency:      group[0].Currency,
		Status:        settlement.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	items := make([]settlement.Item, 0, len(group))
	for _, input := range group {
		batch.TotalGross += input.GrossAmount
		batch.TotalCommission += input.CommissionAmount
		batch.TotalNet += input.NetAmount
		items = append(items, settlement.Item{
			SettlementID:     batch.ID,
			OrderItemID:      input.OrderItemID,
			Kind:             input.Kind,
			GrossAmount:      input.GrossAmount,
			CommissionAmount: input.CommissionAmount,
			NetAmount:        input.NetAmount,
			OrderPaidAt:      input.OrderPaidAt,
			CreatedAt:        now,
		})
	}
	batch.ItemCount = len(items)
	return batch, items
}
