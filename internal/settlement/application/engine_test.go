package application_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	commission "marketplace-core/internal/commission/domain"
	commissionmemory "marketplace-core/internal/commission/infrastructure/memory"
	"marketplace-core/internal/settlement/application"
	settlement "marketplace-core/internal/settlement/domain"
	"marketplace-core/internal/settlement/infrastructure/memory"
)

var (
	periodStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	periodEnd   = time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []application.SettlementCreated
}

func (p *capturingPublisher) PublishSettlementCreated(ctx context.Context, event application.SettlementCreated) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type deniedLock struct{}

func (deniedLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return false, nil
}

func (deniedLock) Release(ctx context.Context, key string) error { return nil }

type testHarness struct {
	engine    *application.Engine
	reader    *memory.PaidItemReader
	repo      *memory.SettlementRepository
	publisher *capturingPublisher
}

func newHarness(t *testing.T, policies ...*commission.Policy) *testHarness {
	t.Helper()
	return newHarnessWithLock(t, memory.NewRunLock(), policies...)
}

func newHarnessWithLock(t *testing.T, lock settlement.RunLock, policies ...*commission.Policy) *testHarness {
	t.Helper()
	resolver := commissionmemory.NewPolicyResolver(policies...)
	calculator, err := application.NewCalculator(resolver, nil)
	if err != nil {
		t.Fatalf("NewCalculator: %v", err)
	}
	repo := memory.NewSettlementRepository()
	aggregator, err := application.NewAggregator(repo, nil, nil)
	if err != nil {
		t.Fatalf("NewAggregator: %v", err)
	}
	reader := memory.NewPaidItemReader()
	publisher := &capturingPublisher{}
	engine, err := application.NewEngine(reader, calculator, aggregator, repo, lock, 0, publisher, nil, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return &testHarness{engine: engine, reader: reader, repo: repo, publisher: publisher}
}

func flatTenPercent() *commission.Policy {
	return &commission.Policy{
		ID:              "pol-global",
		Scope:           commission.ScopeGlobal,
		Type:            commission.TypePercentage,
		PlatformRateBps: 1000,
	}
}

func sellerItem(orderItemID, sellerID string, unitPrice int64) application.PaidOrderItem {
	return application.PaidOrderItem{
		OrderItemID: orderItemID,
		OrderID:     "ord-" + orderItemID,
		SellerID:    sellerID,
		Quantity:    1,
		UnitPrice:   unitPrice,
		Currency:    "EUR",
		PaidAt:      periodStart.Add(6 * time.Hour),
	}
}

func TestEngine_Run_GroupsPerSeller(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	sellers := []struct {
		id    string
		count int
	}{{"sel-a", 4}, {"sel-b", 3}, {"sel-c", 3}}
	n := 0
	for _, s := range sellers {
		for i := 0; i < s.count; i++ {
			n++
			h.reader.Add(sellerItem("itm-"+string(rune('0'+n/10))+string(rune('0'+n%10)), s.id, 10000))
		}
	}

	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Deferred {
		t.Fatal("run must not defer")
	}
	if len(result.Created) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(result.Created))
	}
	if len(result.Skipped) != 0 || len(result.Failed) != 0 {
		t.Fatalf("unexpected skipped/failed: %+v", result)
	}

	sort.Slice(result.Created, func(i, j int) bool {
		return result.Created[i].RecipientID < result.Created[j].RecipientID
	})
	for i, s := range sellers {
		batch := result.Created[i]
		if batch.RecipientID != s.id || batch.RecipientType != settlement.RecipientSeller {
			t.Fatalf("batch %d: recipient %s/%s", i, batch.RecipientType, batch.RecipientID)
		}
		if batch.Status != settlement.StatusDraft {
			t.Fatalf("batch %d: status %s", i, batch.Status)
		}
		wantGross := int64(s.count) * 10000
		if batch.TotalGross != wantGross {
			t.Fatalf("batch %d: gross %d, want %d", i, batch.TotalGross, wantGross)
		}
		if batch.TotalNet != wantGross*9/10 {
			t.Fatalf("batch %d: net %d, want %d", i, batch.TotalNet, wantGross*9/10)
		}
		if batch.TotalGross != batch.TotalNet+batch.TotalCommission {
			t.Fatalf("batch %d: totals do not reconcile: %+v", i, batch)
		}
		if batch.ItemCount != s.count {
			t.Fatalf("batch %d: item count %d, want %d", i, batch.ItemCount, s.count)
		}
	}
	if h.publisher.count() != 3 {
		t.Fatalf("expected 3 created events, got %d", h.publisher.count())
	}
}

func TestEngine_Run_SecondRunIsIdempotent(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	for i := 0; i < 5; i++ {
		h.reader.Add(sellerItem("itm-"+string(rune('a'+i)), "sel-a", 10000))
	}

	first, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(first.Created) != 1 {
		t.Fatalf("first run created %d batches", len(first.Created))
	}

	second, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Created) != 0 {
		t.Fatalf("second run created %d batches, want 0", len(second.Created))
	}
	if len(second.Skipped) != 5 {
		t.Fatalf("second run skipped %d, want 5", len(second.Skipped))
	}
	for _, skip := range second.Skipped {
		if skip.Reason != "already-settled" {
			t.Fatalf("unexpected skip reason %q", skip.Reason)
		}
	}
	if h.publisher.count() != 1 {
		t.Fatalf("second run must not publish, got %d events", h.publisher.count())
	}
}

func TestEngine_VoidReleasesItemsForResettlement(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	h.reader.Add(sellerItem("itm-a", "sel-a", 10000))
	h.reader.Add(sellerItem("itm-b", "sel-b", 20000))

	first, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var batchA *settlement.Settlement
	for _, batch := range first.Created {
		if batch.RecipientID == "sel-a" {
			batchA = batch
		}
	}
	if batchA == nil {
		t.Fatal("no batch for sel-a")
	}

	voided, err := h.engine.Void(context.Background(), batchA.ID, "wrong rate applied")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	if voided.Status != settlement.StatusVoided || voided.VoidReason != "wrong rate applied" {
		t.Fatalf("unexpected voided state: %+v", voided)
	}

	second, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if len(second.Created) != 1 {
		t.Fatalf("rerun created %d batches, want 1", len(second.Created))
	}
	if second.Created[0].RecipientID != "sel-a" {
		t.Fatalf("rerun settled %s, want sel-a", second.Created[0].RecipientID)
	}
	if len(second.Skipped) != 1 {
		t.Fatalf("rerun skipped %d, want 1 (sel-b item)", len(second.Skipped))
	}
}

func TestEngine_Run_ItemFailureDoesNotBlockBatch(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	h.reader.Add(sellerItem("itm-good", "sel-a", 10000))
	broken := sellerItem("itm-broken", "sel-a", 10000)
	broken.Payout = settlement.RecipientSupplier // no supplier on the item
	h.reader.Add(broken)

	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("created %d batches, want 1", len(result.Created))
	}
	if len(result.Failed) != 1 {
		t.Fatalf("failed %d items, want 1", len(result.Failed))
	}
	fail := result.Failed[0]
	if fail.OrderItemID != "itm-broken" || fail.Reason != "missing-recipient" {
		t.Fatalf("unexpected failure record: %+v", fail)
	}
	if result.Created[0].ItemCount != 1 {
		t.Fatalf("good item must settle, count %d", result.Created[0].ItemCount)
	}
}

func TestEngine_Run_RefundSettlesAsSecondLine(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	h.reader.Add(sellerItem("itm-a", "sel-a", 10000))

	if _, err := h.engine.Run(context.Background(), periodStart, periodEnd, ""); err != nil {
		t.Fatalf("sale run: %v", err)
	}

	refund := sellerItem("itm-a", "sel-a", 10000)
	refund.Refund = true
	h.reader.Add(refund)

	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("refund run: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("refund run created %d batches, want 1", len(result.Created))
	}
	batch := result.Created[0]
	if batch.TotalNet != -9000 || batch.TotalGross != -10000 {
		t.Fatalf("refund totals: gross=%d net=%d", batch.TotalGross, batch.TotalNet)
	}
	items, err := h.engine.Items(context.Background(), batch.ID)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 1 || items[0].Kind != settlement.KindRefund {
		t.Fatalf("expected one refund line, got %+v", items)
	}
	// The sale line stays settled; only the refund kind was free.
	if len(result.Skipped) != 1 {
		t.Fatalf("sale line must be skipped, got %d skips", len(result.Skipped))
	}
}

func TestEngine_Run_DefersOnLockContention(t *testing.T) {
	h := newHarnessWithLock(t, deniedLock{}, flatTenPercent())
	h.reader.Add(sellerItem("itm-a", "sel-a", 10000))

	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.Deferred {
		t.Fatal("expected deferred result")
	}
	if len(result.Created) != 0 {
		t.Fatalf("deferred run must not create, got %d", len(result.Created))
	}
}

func TestEngine_Run_ValidatesPeriodAndFilter(t *testing.T) {
	h := newHarness(t, flatTenPercent())

	_, err := h.engine.Run(context.Background(), periodEnd, periodStart, "")
	if !errors.Is(err, settlement.ErrInvalidPeriod) {
		t.Fatalf("expected ErrInvalidPeriod, got %v", err)
	}
	_, err = h.engine.Run(context.Background(), periodStart, periodEnd, "reseller")
	if !errors.Is(err, settlement.ErrInvalidRecipientType) {
		t.Fatalf("expected ErrInvalidRecipientType, got %v", err)
	}
}

func TestEngine_StatusLifecycle(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	h.reader.Add(sellerItem("itm-a", "sel-a", 10000))
	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	id := result.Created[0].ID
	ctx := context.Background()

	// paid before confirm is illegal
	if _, err := h.engine.MarkPaid(ctx, id); !errors.Is(err, settlement.ErrInvalidStatusTransition) {
		t.Fatalf("mark-paid on draft: expected transition error, got %v", err)
	}

	confirmed, err := h.engine.Confirm(ctx, id)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != settlement.StatusConfirmed || confirmed.ConfirmedAt.IsZero() {
		t.Fatalf("unexpected confirmed state: %+v", confirmed)
	}

	// duplicate confirm is a no-op
	again, err := h.engine.Confirm(ctx, id)
	if err != nil {
		t.Fatalf("duplicate confirm: %v", err)
	}
	if again.Status != settlement.StatusConfirmed {
		t.Fatalf("duplicate confirm status %s", again.Status)
	}

	paid, err := h.engine.MarkPaid(ctx, id)
	if err != nil {
		t.Fatalf("mark-paid: %v", err)
	}
	if paid.Status != settlement.StatusPaid || paid.PaidAt.IsZero() {
		t.Fatalf("unexpected paid state: %+v", paid)
	}

	// paid batches cannot be voided
	if _, err := h.engine.Void(ctx, id, "too late"); !errors.Is(err, settlement.ErrInvalidStatusTransition) {
		t.Fatalf("void on paid: expected transition error, got %v", err)
	}
}

func TestEngine_Void_AlreadyVoidedIsNoOp(t *testing.T) {
	h := newHarness(t, flatTenPercent())
	h.reader.Add(sellerItem("itm-a", "sel-a", 10000))
	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, "")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	id := result.Created[0].ID

	if _, err := h.engine.Void(context.Background(), id, "first"); err != nil {
		t.Fatalf("void: %v", err)
	}
	voided, err := h.engine.Void(context.Background(), id, "second")
	if err != nil {
		t.Fatalf("repeat void must be a no-op: %v", err)
	}
	if voided.VoidReason != "first" {
		t.Fatalf("repeat void must not overwrite reason, got %q", voided.VoidReason)
	}
}

func TestEngine_Run_FilterByRecipientType(t *testing.T) {
	h := newHarness(t, &commission.Policy{
		ID:              "pol-global",
		Scope:           commission.ScopeGlobal,
		Type:            commission.TypePercentage,
		SupplierRateBps: 6000,
		PlatformRateBps: 1000,
	})
	h.reader.Add(sellerItem("itm-a", "sel-a", 10000))
	supplierItem := sellerItem("itm-b", "sel-a", 10000)
	supplierItem.SupplierID = "sup-1"
	supplierItem.Payout = settlement.RecipientSupplier
	h.reader.Add(supplierItem)

	result, err := h.engine.Run(context.Background(), periodStart, periodEnd, settlement.RecipientSupplier)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(result.Created) != 1 {
		t.Fatalf("created %d batches, want 1", len(result.Created))
	}
	batch := result.Created[0]
	if batch.RecipientType != settlement.RecipientSupplier || batch.RecipientID != "sup-1" {
		t.Fatalf("unexpected recipient %s/%s", batch.RecipientType, batch.RecipientID)
	}
	if batch.TotalNet != 6000 {
		t.Fatalf("supplier net %d, want 6000", batch.TotalNet)
	}
}
