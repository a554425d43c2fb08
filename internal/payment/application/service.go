package application

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"marketplace-core/internal/observability/metrics"
	payment "marketplace-core/internal/payment/domain"
)

// StatusChanged is published after every successful lifecycle transition.
// Delivery is at-least-once; consumers dedupe on PaymentID+To.
type StatusChanged struct {
	PaymentID  string
	OrderID    string
	From       payment.Status
	To         payment.Status
	OccurredAt time.Time
}

// EventPublisher emits payment status events.
type EventPublisher interface {
	PublishStatusChanged(ctx context.Context, event StatusChanged) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// CreateInput carries the fields needed to open a payment.
type CreateInput struct {
	TransactionID string
	OrderID       string
	Amount        int64
	Currency      string
}

// Service orchestrates payment lifecycle transitions. All mutation goes
// through the repository CAS, so any number of concurrent callers for one
// payment id resolve to exactly one successful transition; the losers observe
// a no-op and receive the current persisted state.
type Service struct {
	repo      payment.Repository
	publisher EventPublisher
	clock     Clock
	logger    *log.Logger
}

// NewService constructs the service.
func NewService(repo payment.Repository, publisher EventPublisher, clock Clock, logger *log.Logger) (*Service, error) {
	if repo == nil {
		return nil, errors.New("payment service: nil repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Service{repo: repo, publisher: publisher, clock: clock, logger: logger}, nil
}

// Create opens a payment in the created state. A repeated call with the same
// gateway transaction id returns the already-created payment.
func (s *Service) Create(ctx context.Context, input CreateInput) (*payment.Payment, error) {
	if existing, err := s.repo.FindByTransactionID(ctx, input.TransactionID); err == nil && existing != nil {
		return existing, nil
	} else if err != nil && !errors.Is(err, payment.ErrPaymentNotFound) {
		return nil, err
	}

	p, err := payment.NewPayment("pay-"+uuid.NewString(), input.TransactionID, input.OrderID, input.Amount, input.Currency, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, payment.ErrDuplicateTransaction) {
			return s.repo.FindByTransactionID(ctx, input.TransactionID)
		}
		return nil, err
	}
	return p, nil
}

// Confirm drives a payment to paid. From created it passes through confirming
// first. Duplicate gateway webhooks are safe: a CAS miss is not an error, the
// caller gets the current authoritative state back.
func (s *Service) Confirm(ctx context.Context, id string) (*payment.Payment, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if p.Status == payment.StatusCreated {
		p, err = s.transition(ctx, p, payment.StatusConfirming)
		if err != nil {
			return p, err
		}
	}
	if p.Status == payment.StatusPaid {
		return p, nil
	}
	return s.transition(ctx, p, payment.StatusPaid)
}

// Fail marks a confirming payment as failed.
func (s *Service) Fail(ctx context.Context, id string) (*payment.Payment, error) {
	return s.transitionByID(ctx, id, payment.StatusFailed)
}

// Cancel cancels a payment that never left created.
func (s *Service) Cancel(ctx context.Context, id string) (*payment.Payment, error) {
	return s.transitionByID(ctx, id, payment.StatusCancelled)
}

// Refund moves a paid payment to refunded.
func (s *Service) Refund(ctx context.Context, id string) (*payment.Payment, error) {
	return s.transitionByID(ctx, id, payment.StatusRefunded)
}

// Get returns the current persisted payment.
func (s *Service) Get(ctx context.Context, id string) (*payment.Payment, error) {
	return s.repo.FindByID(ctx, id)
}

// GetByTransactionID resolves a payment by its gateway reference.
func (s *Service) GetByTransactionID(ctx context.Context, transactionID string) (*payment.Payment, error) {
	return s.repo.FindByTransactionID(ctx, transactionID)
}

func (s *Service) transitionByID(ctx context.Context, id string, to payment.Status) (*payment.Payment, error) {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, p, to)
}

// transition performs one CAS attempt loop toward to. Reaching a payment that
// is already in to counts as success without a second event.
func (s *Service) transition(ctx context.Context, p *payment.Payment, to payment.Status) (*payment.Payment, error) {
	const maxAttempts = 3

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if p.Status == to {
			metrics.IncPaymentDuplicate(string(to))
			return p, nil
		}
		from := p.Status
		if _, err := payment.Transition(from, to); err != nil {
			metrics.ObservePaymentTransition(string(from), string(to), metrics.ResultError)
			return p, err
		}

		changed, err := s.repo.TransitionStatus(ctx, p.ID, from, to)
		if err != nil {
			return nil, err
		}
		if changed {
			metrics.ObservePaymentTransition(string(from), string(to), metrics.ResultSuccess)
			s.publish(ctx, StatusChanged{
				PaymentID:  p.ID,
				OrderID:    p.OrderID,
				From:       from,
				To:         to,
				OccurredAt: s.clock.Now(),
			})
			updated, err := s.repo.FindByID(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			return updated, nil
		}

		// Lost the race. Re-read and decide again from the winner's state.
		p, err = s.repo.FindByID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// publish never fails the already-committed transition. Events are
// at-least-once: a failed write is logged and retried by the outbox
// dispatcher, not rolled back here.
func (s *Service) publish(ctx context.Context, event StatusChanged) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishStatusChanged(ctx, event); err != nil {
		metrics.IncPaymentEventPublish(metrics.ResultError)
		s.logger.Printf("payment event publish error: payment=%s to=%s err=%v", event.PaymentID, event.To, err)
		return
	}
	metrics.IncPaymentEventPublish(metrics.ResultSuccess)
}
