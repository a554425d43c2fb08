package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"marketplace-core/internal/observability/metrics"
	settlement "marketplace-core/internal/settlement/domain"
)

// DefaultLockTTL bounds how long a crashed run can hold its lock. Several
// multiples of the expected run duration.
const DefaultLockTTL = 30 * time.Minute

// SettlementCreated is published for every batch a run creates.
type SettlementCreated struct {
	SettlementID  string
	RecipientID   string
	RecipientType settlement.RecipientType
	PeriodStart   time.Time
	PeriodEnd     time.Time
	TotalNet      int64
	Currency      string
	OccurredAt    time.Time
}

// EventPublisher emits settlement events.
type EventPublisher interface {
	PublishSettlementCreated(ctx context.Context, event SettlementCreated) error
}

// RunResult is the structured outcome of one aggregation run.
type RunResult struct {
	Created  []*settlement.Settlement
	Skipped  []SkipRecord
	Failed   []FailRecord
	Deferred bool
}

// Engine orchestrates calculator and aggregator for one run and owns the
// header lifecycle operations driven by finance tooling.
type Engine struct {
	reader     PaidItemReader
	calculator *Calculator
	aggregator *Aggregator
	repo       settlement.Repository
	lock       settlement.RunLock
	lockTTL    time.Duration
	publisher  EventPublisher
	clock      Clock
	logger     *log.Logger
}

// NewEngine constructs an engine. The publisher may be nil.
func NewEngine(
	reader PaidItemReader,
	calculator *Calculator,
	aggregator *Aggregator,
	repo settlement.Repository,
	lock settlement.RunLock,
	lockTTL time.Duration,
	publisher EventPublisher,
	clock Clock,
	logger *log.Logger,
) (*Engine, error) {
	if reader == nil {
		return nil, errors.New("settlement engine: nil reader")
	}
	if calculator == nil {
		return nil, errors.New("settlement engine: nil calculator")
	}
	if aggregator == nil {
		return nil, errors.New("settlement engine: nil aggregator")
	}
	if repo == nil {
		return nil, errors.New("settlement engine: nil repository")
	}
	if lock == nil {
		return nil, errors.New("settlement engine: nil run lock")
	}
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{
		reader:     reader,
		calculator: calculator,
		aggregator: aggregator,
		repo:       repo,
		lock:       lock,
		lockTTL:    lockTTL,
		publisher:  publisher,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Run settles all paid order items of the period. filter narrows the run to
// one recipient type; empty means all. Concurrent runs for the same key are
// serialized by the run lock; losing the lock defers instead of blocking.
func (e *Engine) Run(ctx context.Context, periodStart, periodEnd time.Time, filter settlement.RecipientType) (RunResult, error) {
	if !periodEnd.After(periodStart) {
		return RunResult{}, settlement.ErrInvalidPeriod
	}
	if filter != "" && !settlement.IsValidRecipientType(filter) {
		return RunResult{}, settlement.ErrInvalidRecipientType
	}

	started := time.Now()
	key := runLockKey(periodStart, periodEnd, filter)

	acquired, err := e.lock.Acquire(ctx, key, e.lockTTL)
	if err != nil {
		metrics.ObserveSettlementRun(metrics.ResultError, time.Since(started).Seconds())
		return RunResult{}, err
	}
	if !acquired {
		e.logger.Printf("settlement run deferred: lock held: key=%s", key)
		metrics.IncSettlementLockContention()
		metrics.ObserveSettlementRun("deferred", time.Since(started).Seconds())
		return RunResult{Deferred: true}, nil
	}
	defer func() {
		if err := e.lock.Release(ctx, key); err != nil {
			e.logger.Printf("settlement run: lock release error: key=%s err=%v", key, err)
		}
	}()

	items, err := e.reader.ListPaid(ctx, periodStart, periodEnd)
	if err != nil {
		metrics.ObserveSettlementRun(metrics.ResultError, time.Since(started).Seconds())
		return RunResult{}, err
	}
	if filter != "" {
		items = filterByPayout(items, filter)
	}

	inputs, failed := e.calculator.Build(ctx, items)
	created, skipped, aggFailed := e.aggregator.Aggregate(ctx, periodStart, periodEnd, inputs)
	failed = append(failed, aggFailed...)

	for _, batch := range created {
		e.publishCreated(ctx, batch)
	}

	itemTotal := 0
	for _, batch := range created {
		itemTotal += batch.ItemCount
	}
	metrics.AddSettlementItems("created", itemTotal)
	metrics.AddSettlementItems("skipped", len(skipped))
	metrics.AddSettlementItems("failed", len(failed))
	metrics.ObserveSettlementRun(metrics.ResultSuccess, time.Since(started).Seconds())

	e.logger.Printf("settlement run done: period=%s..%s filter=%s created=%d skipped=%d failed=%d",
		periodStart.UTC().Format(time.RFC3339), periodEnd.UTC().Format(time.RFC3339), filter,
		len(created), len(skipped), len(failed))

	return RunResult{Created: created, Skipped: skipped, Failed: failed}, nil
}

// Confirm locks a draft batch's totals. Confirming an already confirmed batch
// is a no-op returning the current state.
func (e *Engine) Confirm(ctx context.Context, id string) (*settlement.Settlement, error) {
	return e.transition(ctx, id, settlement.StatusDraft, settlement.StatusConfirmed)
}

// MarkPaid records the external funds transfer on a confirmed batch.
func (e *Engine) MarkPaid(ctx context.Context, id string) (*settlement.Settlement, error) {
	return e.transition(ctx, id, settlement.StatusConfirmed, settlement.StatusPaid)
}

// Void cancels a draft or confirmed batch and releases its order item ids for
// re-inclusion in a future run.
func (e *Engine) Void(ctx context.Context, id, reason string) (*settlement.Settlement, error) {
	current, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == settlement.StatusVoided {
		return current, nil
	}
	if !settlement.CanTransition(current.Status, settlement.StatusVoided) {
		return current, &settlement.StatusTransitionError{From: current.Status, To: settlement.StatusVoided}
	}
	if err := e.repo.Void(ctx, id, reason); err != nil {
		return nil, err
	}
	return e.repo.FindByID(ctx, id)
}

// Get returns a settlement header.
func (e *Engine) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	return e.repo.FindByID(ctx, id)
}

// List returns headers for a period, optionally narrowed by recipient type.
func (e *Engine) List(ctx context.Context, periodStart, periodEnd time.Time, recipientType settlement.RecipientType) ([]*settlement.Settlement, error) {
	return e.repo.ListByPeriod(ctx, periodStart, periodEnd, recipientType)
}

// Items returns the item rows of one settlement.
func (e *Engine) Items(ctx context.Context, id string) ([]settlement.Item, error) {
	return e.repo.ListItems(ctx, id)
}

func (e *Engine) transition(ctx context.Context, id string, from, to settlement.Status) (*settlement.Settlement, error) {
	changed, err := e.repo.UpdateStatus(ctx, id, from, to)
	if err != nil {
		return nil, err
	}
	current, err := e.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if changed || current.Status == to {
		return current, nil
	}
	return current, &settlement.StatusTransitionError{From: current.Status, To: to}
}

func (e *Engine) publishCreated(ctx context.Context, batch *settlement.Settlement) {
	if e.publisher == nil {
		return
	}
	event := SettlementCreated{
		SettlementID:  batch.ID,
		RecipientID:   batch.RecipientID,
		RecipientType: batch.RecipientType,
		PeriodStart:   batch.PeriodStart,
		PeriodEnd:     batch.PeriodEnd,
		TotalNet:      batch.TotalNet,
		Currency:      batch.Currency,
		OccurredAt:    e.clock.Now(),
	}
	if err := e.publisher.PublishSettlementCreated(ctx, event); err != nil {
		e.logger.Printf("settlement event publish error: settlement=%s err=%v", batch.ID, err)
	}
}

func filterByPayout(items []PaidOrderItem, filter settlement.RecipientType) []PaidOrderItem {
	var out []PaidOrderItem
	for _, item := range items {
		if payoutType(item) == filter {
			out = append(out, item)
		}
	}
	return out
}

func runLockKey(periodStart, periodEnd time.Time, filter settlement.RecipientType) string {
	scope := string(filter)
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("settlement-run|%s|%s|%s",
		periodStart.UTC().Format(time.RFC3339), periodEnd.UTC().Format(time.RFC3339), scope)
}
