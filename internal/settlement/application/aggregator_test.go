package application_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"marketplace-core/internal/settlement/application"
	settlement "marketplace-core/internal/settlement/domain"
	"marketplace-core/internal/settlement/infrastructure/memory"
)

// staleKeysRepo hides settled keys from the first n SettledKeys calls,
// simulating a rival run that commits between the pre-check and the batch
// insert.
type staleKeysRepo struct {
	*memory.SettlementRepository
	mu    sync.Mutex
	stale int
}

func (r *staleKeysRepo) SettledKeys(ctx context.Context, keys []settlement.ItemKey) (map[settlement.ItemKey]bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stale > 0 {
		r.stale--
		return map[settlement.ItemKey]bool{}, nil
	}
	return r.SettlementRepository.SettledKeys(ctx, keys)
}

func seedRival(t *testing.T, repo *memory.SettlementRepository, orderItemID string) {
	t.Helper()
	rival := &settlement.Settlement{
		ID:            "stl-rival",
		RecipientID:   "sel-a",
		RecipientType: settlement.RecipientSeller,
		PeriodStart:   periodStart,
		PeriodEnd:     periodEnd,
		Currency:      "EUR",
		Status:        settlement.StatusDraft,
		ItemCount:     1,
	}
	items := []settlement.Item{{
		SettlementID: rival.ID, OrderItemID: orderItemID, Kind: settlement.KindSale,
		GrossAmount: 10000, CommissionAmount: 1000, NetAmount: 9000,
	}}
	if err := repo.CreateWithItems(context.Background(), rival, items); err != nil {
		t.Fatalf("seed rival: %v", err)
	}
}

func sellerInput(orderItemID string) settlement.ItemInput {
	return settlement.ItemInput{
		OrderItemID:   orderItemID,
		Kind:          settlement.KindSale,
		RecipientID:   "sel-a",
		RecipientType: settlement.RecipientSeller,
		GrossAmount:   10000, CommissionAmount: 1000, NetAmount: 9000,
		Currency: "EUR", OrderPaidAt: periodStart.Add(6 * time.Hour),
	}
}

func TestAggregator_RaceLostGroupRetriesUnsettledItems(t *testing.T) {
	inner := memory.NewSettlementRepository()
	seedRival(t, inner, "itm-a")
	repo := &staleKeysRepo{SettlementRepository: inner, stale: 1}

	aggregator, err := application.NewAggregator(repo, nil, nil)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	created, skipped, failed := aggregator.Aggregate(context.Background(), periodStart, periodEnd,
		[]settlement.ItemInput{sellerInput("itm-a"), sellerInput("itm-b")})

	if len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
	if len(skipped) != 1 || skipped[0].OrderItemID != "itm-a" || skipped[0].Reason != "already-settled" {
		t.Fatalf("only the rival's item may be skipped as settled, got %+v", skipped)
	}
	if len(created) != 1 || created[0].ItemCount != 1 {
		t.Fatalf("remainder must commit as a smaller batch, got %+v", created)
	}

	key := settlement.ItemKey{OrderItemID: "itm-b", Kind: settlement.KindSale}
	settledNow, err := inner.SettledKeys(context.Background(), []settlement.ItemKey{key})
	if err != nil {
		t.Fatalf("settled keys: %v", err)
	}
	if !settledNow[key] {
		t.Fatal("retried item must end up settled")
	}
}

func TestAggregator_UncommittedRivalConflictFailsDistinctly(t *testing.T) {
	inner := memory.NewSettlementRepository()
	seedRival(t, inner, "itm-a")
	// Every check misses: the rival's transaction is never visible.
	repo := &staleKeysRepo{SettlementRepository: inner, stale: 100}

	aggregator, err := application.NewAggregator(repo, nil, nil)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}

	created, skipped, failed := aggregator.Aggregate(context.Background(), periodStart, periodEnd,
		[]settlement.ItemInput{sellerInput("itm-a")})

	if len(created) != 0 || len(skipped) != 0 {
		t.Fatalf("nothing may be created or reported settled, got created=%+v skipped=%+v", created, skipped)
	}
	if len(failed) != 1 || failed[0].OrderItemID != "itm-a" || failed[0].Reason != "persist-conflict" {
		t.Fatalf("conflict without a visible settled key must fail as persist-conflict, got %+v", failed)
	}
}
