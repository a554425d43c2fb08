package payment

import (
	"errors"
	"testing"
	"time"
)

func TestCanTransition_FullTable(t *testing.T) {
	statuses := []Status{StatusCreated, StatusConfirming, StatusPaid, StatusFailed, StatusCancelled, StatusRefunded}
	legal := map[Status]map[Status]bool{
		StatusCreated:    {StatusConfirming: true, StatusCancelled: true},
		StatusConfirming: {StatusPaid: true, StatusFailed: true},
		StatusPaid:       {StatusRefunded: true},
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := legal[from][to]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestTransition_IllegalEdgeReturnsError(t *testing.T) {
	_, err := Transition(StatusPaid, StatusCreated)
	if err == nil {
		t.Fatal("expected error for paid -> created")
	}
	var invalid *InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %T", err)
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatal("expected errors.Is(err, ErrInvalidTransition)")
	}
	if invalid.From != StatusPaid || invalid.To != StatusCreated {
		t.Fatalf("unexpected edge in error: %s -> %s", invalid.From, invalid.To)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := []Status{StatusFailed, StatusCancelled, StatusRefunded}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Errorf("%s should be terminal", s)
		}
		if len(allowedTransitions[s]) != 0 {
			t.Errorf("%s must have no outgoing edges", s)
		}
	}
	for _, s := range []Status{StatusCreated, StatusConfirming, StatusPaid} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestNewPayment_Validation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name          string
		id, txID, ord string
		amount        int64
		currency      string
		wantErr       error
	}{
		{"empty id", "", "tx-1", "ord-1", 100, "EUR", ErrEmptyPaymentID},
		{"empty transaction", "pay-1", "", "ord-1", 100, "EUR", ErrEmptyTransactionID},
		{"empty order", "pay-1", "tx-1", "", 100, "EUR", ErrEmptyOrderID},
		{"zero amount", "pay-1", "tx-1", "ord-1", 0, "EUR", ErrNonPositiveAmount},
		{"negative amount", "pay-1", "tx-1", "ord-1", -5, "EUR", ErrNonPositiveAmount},
		{"empty currency", "pay-1", "tx-1", "ord-1", 100, "", ErrEmptyCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPayment(tc.id, tc.txID, tc.ord, tc.amount, tc.currency, now)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}

	p, err := NewPayment("pay-1", "tx-1", "ord-1", 2500, "EUR", now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Status != StatusCreated {
		t.Fatalf("new payment must start created, got %s", p.Status)
	}
}
