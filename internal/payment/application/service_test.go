package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	payment "marketplace-core/internal/payment/domain"
	"marketplace-core/internal/payment/infrastructure/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []StatusChanged
}

func (p *capturingPublisher) PublishStatusChanged(ctx context.Context, event StatusChanged) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) byTarget(to payment.Status) []StatusChanged {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []StatusChanged
	for _, event := range p.events {
		if event.To == to {
			out = append(out, event)
		}
	}
	return out
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *memory.PaymentRepository, *capturingPublisher) {
	t.Helper()
	repo := memory.NewPaymentRepository()
	publisher := &capturingPublisher{}
	service, err := NewService(repo, publisher, fixedClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return service, repo, publisher
}

func TestService_Create_IdempotentOnTransactionID(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	input := CreateInput{TransactionID: "tx-1", OrderID: "ord-1", Amount: 10000, Currency: "EUR"}
	first, err := service.Create(ctx, input)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := service.Create(ctx, input)
	if err != nil {
		t.Fatalf("repeat create: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("repeat create returned a new payment: %s vs %s", first.ID, second.ID)
	}
	if second.Status != payment.StatusCreated {
		t.Fatalf("unexpected status: %s", second.Status)
	}
}

func TestService_Confirm_DrivesCreatedToPaid(t *testing.T) {
	service, _, publisher := newTestService(t)
	ctx := context.Background()

	p, err := service.Create(ctx, CreateInput{TransactionID: "tx-1", OrderID: "ord-1", Amount: 10000, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	confirmed, err := service.Confirm(ctx, p.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != payment.StatusPaid {
		t.Fatalf("expected paid, got %s", confirmed.Status)
	}

	if got := len(publisher.byTarget(payment.StatusConfirming)); got != 1 {
		t.Fatalf("expected 1 confirming event, got %d", got)
	}
	if got := len(publisher.byTarget(payment.StatusPaid)); got != 1 {
		t.Fatalf("expected 1 paid event, got %d", got)
	}
}

func TestService_Confirm_DuplicateIsNoOp(t *testing.T) {
	service, _, publisher := newTestService(t)
	ctx := context.Background()

	p, err := service.Create(ctx, CreateInput{TransactionID: "tx-1", OrderID: "ord-1", Amount: 10000, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Confirm(ctx, p.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	again, err := service.Confirm(ctx, p.ID)
	if err != nil {
		t.Fatalf("duplicate confirm must succeed: %v", err)
	}
	if again.Status != payment.StatusPaid {
		t.Fatalf("expected paid, got %s", again.Status)
	}
	if got := len(publisher.byTarget(payment.StatusPaid)); got != 1 {
		t.Fatalf("duplicate confirm emitted extra paid events: %d", got)
	}
}

func TestService_Confirm_ConcurrentCallersOnePaidEvent(t *testing.T) {
	service, _, publisher := newTestService(t)
	ctx := context.Background()

	p, err := service.Create(ctx, CreateInput{TransactionID: "tx-1", OrderID: "ord-1", Amount: 10000, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	const callers = 5
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = service.Confirm(ctx, p.ID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
	}
	current, err := service.Get(ctx, p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.Status != payment.StatusPaid {
		t.Fatalf("expected paid, got %s", current.Status)
	}
	if got := len(publisher.byTarget(payment.StatusPaid)); got != 1 {
		t.Fatalf("expected exactly 1 paid event, got %d", got)
	}
}

func TestService_Cancel_AfterPaidIsRejected(t *testing.T) {
	service, _, _ := newTestService(t)
	ctx := context.Background()

	p, err := service.Create(ctx, CreateInput{TransactionID: "tx-1", OrderID: "ord-1", Amount: 10000, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Confirm(ctx, p.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if _, err := service.Cancel(ctx, p.ID); !errors.Is(err, payment.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestService_Refund_OnlyFromPaid(t *testing.T) {
	service, _, publisher := newTestService(t)
	ctx := context.Background()

	p, err := service.Create(ctx, CreateInput{TransactionID: "tx-1", OrderID: "ord-1", Amount: 10000, Currency: "EUR"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := service.Refund(ctx, p.ID); !errors.Is(err, payment.ErrInvalidTransition) {
		t.Fatalf("refund from created must fail, got %v", err)
	}

	if _, err := service.Confirm(ctx, p.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	refunded, err := service.Refund(ctx, p.ID)
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != payment.StatusRefunded {
		t.Fatalf("expected refunded, got %s", refunded.Status)
	}
	if got := len(publisher.byTarget(payment.StatusRefunded)); got != 1 {
		t.Fatalf("expected 1 refunded event, got %d", got)
	}
}

func TestService_Fail_UnknownPaymentReturnsNotFound(t *testing.T) {
	service, _, _ := newTestService(t)
	if _, err := service.Fail(context.Background(), "pay-missing"); !errors.Is(err, payment.ErrPaymentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
