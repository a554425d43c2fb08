package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	settlement "marketplace-core/internal/settlement/domain"
)

func draftBatch(id, recipientID string, items ...settlement.Item) (*settlement.Settlement, []settlement.Item) {
	now := time.Now().UTC()
	s := &settlement.Settlement{
		ID:            id,
		RecipientID:   recipientID,
		RecipientType: settlement.RecipientSeller,
		PeriodStart:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:     time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
		Currency:      "EUR",
		Status:        settlement.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i := range items {
		items[i].SettlementID = id
	}
	s.ItemCount = len(items)
	return s, items
}

func saleItem(orderItemID string) settlement.Item {
	return settlement.Item{OrderItemID: orderItemID, Kind: settlement.KindSale, GrossAmount: 10000, NetAmount: 9000, CommissionAmount: 1000}
}

func TestSettlementRepository_RejectsDuplicateItemKey(t *testing.T) {
	repo := NewSettlementRepository()
	ctx := context.Background()

	first, items := draftBatch("stl-1", "sel-a", saleItem("itm-1"))
	if err := repo.CreateWithItems(ctx, first, items); err != nil {
		t.Fatalf("create: %v", err)
	}

	second, items := draftBatch("stl-2", "sel-b", saleItem("itm-1"))
	if err := repo.CreateWithItems(ctx, second, items); !errors.Is(err, settlement.ErrItemAlreadySettled) {
		t.Fatalf("expected ErrItemAlreadySettled, got %v", err)
	}
	if _, err := repo.FindByID(ctx, "stl-2"); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Fatal("conflicting batch must not be persisted")
	}

	// A refund line for the same order item is a different key.
	refund := saleItem("itm-1")
	refund.Kind = settlement.KindRefund
	third, items := draftBatch("stl-3", "sel-a", refund)
	if err := repo.CreateWithItems(ctx, third, items); err != nil {
		t.Fatalf("refund line must be accepted: %v", err)
	}
}

func TestSettlementRepository_VoidReleasesKeys(t *testing.T) {
	repo := NewSettlementRepository()
	ctx := context.Background()

	first, items := draftBatch("stl-1", "sel-a", saleItem("itm-1"))
	if err := repo.CreateWithItems(ctx, first, items); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Void(ctx, "stl-1", "bad totals"); err != nil {
		t.Fatalf("void: %v", err)
	}

	settled, err := repo.SettledKeys(ctx, []settlement.ItemKey{{OrderItemID: "itm-1", Kind: settlement.KindSale}})
	if err != nil {
		t.Fatalf("settled keys: %v", err)
	}
	if settled[settlement.ItemKey{OrderItemID: "itm-1", Kind: settlement.KindSale}] {
		t.Fatal("voided items must be released")
	}

	second, items := draftBatch("stl-2", "sel-a", saleItem("itm-1"))
	if err := repo.CreateWithItems(ctx, second, items); err != nil {
		t.Fatalf("resettle after void: %v", err)
	}
}

func TestSettlementRepository_VoidDistinguishesMissingFromUnvoidable(t *testing.T) {
	repo := NewSettlementRepository()
	ctx := context.Background()

	if err := repo.Void(ctx, "missing", "x"); !errors.Is(err, settlement.ErrSettlementNotFound) {
		t.Fatalf("missing settlement: expected not found, got %v", err)
	}

	batch, items := draftBatch("stl-1", "sel-a", saleItem("itm-1"))
	if err := repo.CreateWithItems(ctx, batch, items); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, "stl-1", settlement.StatusDraft, settlement.StatusConfirmed); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := repo.UpdateStatus(ctx, "stl-1", settlement.StatusConfirmed, settlement.StatusPaid); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	err := repo.Void(ctx, "stl-1", "late")
	if !errors.Is(err, settlement.ErrInvalidStatusTransition) {
		t.Fatalf("paid settlement: expected status transition error, got %v", err)
	}

	// The failed void must not release the item keys.
	key := settlement.ItemKey{OrderItemID: "itm-1", Kind: settlement.KindSale}
	settled, err := repo.SettledKeys(ctx, []settlement.ItemKey{key})
	if err != nil {
		t.Fatalf("settled keys: %v", err)
	}
	if !settled[key] {
		t.Fatal("paid settlement must keep its item keys")
	}
}

func TestSettlementRepository_UpdateStatusCAS(t *testing.T) {
	repo := NewSettlementRepository()
	ctx := context.Background()

	batch, items := draftBatch("stl-1", "sel-a", saleItem("itm-1"))
	if err := repo.CreateWithItems(ctx, batch, items); err != nil {
		t.Fatalf("create: %v", err)
	}

	changed, err := repo.UpdateStatus(ctx, "stl-1", settlement.StatusDraft, settlement.StatusConfirmed)
	if err != nil || !changed {
		t.Fatalf("confirm cas: changed=%v err=%v", changed, err)
	}
	changed, err = repo.UpdateStatus(ctx, "stl-1", settlement.StatusDraft, settlement.StatusConfirmed)
	if err != nil {
		t.Fatalf("repeat cas: %v", err)
	}
	if changed {
		t.Fatal("cas must miss once status moved on")
	}

	current, err := repo.FindByID(ctx, "stl-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if current.Status != settlement.StatusConfirmed || current.ConfirmedAt.IsZero() {
		t.Fatalf("unexpected state: %+v", current)
	}
}

func TestRunLock_TTLExpiry(t *testing.T) {
	lock := NewRunLock()
	now := time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)
	lock.clock = func() time.Time { return now }
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "key", 30*time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = lock.Acquire(ctx, "key", 30*time.Minute)
	if err != nil || ok {
		t.Fatalf("held lock must not be re-acquired: ok=%v err=%v", ok, err)
	}

	now = now.Add(31 * time.Minute)
	ok, err = lock.Acquire(ctx, "key", 30*time.Minute)
	if err != nil || !ok {
		t.Fatalf("expired lock must be claimable: ok=%v err=%v", ok, err)
	}

	if err := lock.Release(ctx, "key"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, _ = lock.Acquire(ctx, "key", time.Minute)
	if !ok {
		t.Fatal("released lock must be free")
	}
}
