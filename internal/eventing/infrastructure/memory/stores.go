package memory

import (
	"context"
	"sync"

	"marketplace-core/internal/eventing"
)

// OutboxStore keeps outbox records in memory. It backs tests and db-less runs.
type OutboxStore struct {
	mu      sync.Mutex
	seq     int
	pending []eventing.OutboxRecord
	sent    map[string]eventing.Envelope
	failed  map[string]int
}

// NewOutboxStore constructs an in-memory outbox.
func NewOutboxStore() *OutboxStore {
	return &OutboxStore{
		sent:   make(map[string]eventing.Envelope),
		failed: make(map[string]int),
	}
}

// Insert appends a pending record.
func (s *OutboxStore) Insert(ctx context.Context, env eventing.Envelope) (string, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := eventing.NewEventID()
	s.pending = append(s.pending, eventing.OutboxRecord{ID: id, Envelope: env})
	return id, nil
}

// ListPending returns up to limit pending records in insertion order.
func (s *OutboxStore) ListPending(ctx context.Context, limit int) ([]eventing.OutboxRecord, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || limit > len(s.pending) {
		limit = len(s.pending)
	}
	out := make([]eventing.OutboxRecord, limit)
	copy(out, s.pending[:limit])
	return out, nil
}

// MarkSent removes the record from pending.
func (s *OutboxStore) MarkSent(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, record := range s.pending {
		if record.ID == id {
			s.sent[id] = record.Envelope
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

// MarkFailed removes the record from pending and counts the failure.
func (s *OutboxStore) MarkFailed(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, record := range s.pending {
		if record.ID == id {
			s.failed[id]++
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			return nil
		}
	}
	return nil
}

// SentCount reports how many records were delivered.
func (s *OutboxStore) SentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// ProcessedStore is an in-memory consumer dedupe store.
type ProcessedStore struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewProcessedStore constructs a processed store.
func NewProcessedStore() *ProcessedStore {
	return &ProcessedStore{seen: make(map[string]struct{})}
}

// HasProcessed reports whether the consumer already handled the event.
func (s *ProcessedStore) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[eventID+"|"+consumerName]
	return ok, nil
}

// MarkProcessed records the event for the consumer.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen[eventID+"|"+consumerName] = struct{}{}
	return nil
}

// DLQStore collects failed envelopes in memory.
type DLQStore struct {
	mu      sync.Mutex
	entries []eventing.Envelope
}

// NewDLQStore constructs a DLQ store.
func NewDLQStore() *DLQStore {
	return &DLQStore{}
}

// RecordFailure appends the envelope.
func (s *DLQStore) RecordFailure(ctx context.Context, env eventing.Envelope, err error) error {
	_ = ctx
	_ = err
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, env)
	return nil
}

// Entries returns a copy of recorded failures.
func (s *DLQStore) Entries() []eventing.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]eventing.Envelope(nil), s.entries...)
}
