package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"merkleverifier/internal/domain"
	"merkleverifier/internal/usecase"
)

// Store keeps verifier records and their audit chains in memory.
type Store struct {
	mu        sync.RWMutex
	verifiers map[string]domain.VerifierRecord
	audit     map[string][]domain.AuditEvent
	clock     func() time.Time
}

func New() *Store {
	return NewWithClock(nil)
}

func NewWithClock(clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{
		verifiers: make(map[string]domain.VerifierRecord),
		audit:     make(map[string][]domain.AuditEvent),
		clock:     clock,
	}
}

func (s *Store) Create(ctx context.Context, record domain.VerifierRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		return fmt.Errorf("verifier id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.verifiers[record.ID]; ok {
		return fmt.Errorf("%w: verifier %s already exists", domain.ErrConflict, record.ID)
	}
	s.verifiers[record.ID] = cloneRecord(record)
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*domain.VerifierRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.verifiers[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := cloneRecord(record)
	return &out, nil
}

func (s *Store) UpdateRoot(ctx context.Context, id string, root domain.Digest, version int64, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.verifiers[id]
	if !ok {
		return domain.ErrNotFound
	}
	if record.Version != version-1 {
		return fmt.Errorf("%w: verifier %s is at version %d", domain.ErrConflict, id, record.Version)
	}
	record.ExpectedRoot = root.Clone()
	record.Version = version
	record.UpdatedAt = updatedAt
	s.verifiers[id] = record
	return nil
}

func (s *Store) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditEvent{}, err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.clock()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	chain := s.audit[event.VerifierID]
	var prev *domain.AuditEvent
	if len(chain) > 0 {
		prev = &chain[len(chain)-1]
	}
	if event.ID == "" {
		event.ID = fmt.Sprintf("%s-%d", event.VerifierID, len(chain)+1)
	}
	chained, err := usecase.ChainAuditEvent(event, prev)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	s.audit[event.VerifierID] = append(chain, chained)
	return chained, nil
}

func (s *Store) ListByVerifier(ctx context.Context, verifierID string) ([]domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	chain := s.audit[verifierID]
	out := make([]domain.AuditEvent, len(chain))
	copy(out, chain)
	return out, nil
}

func cloneRecord(record domain.VerifierRecord) domain.VerifierRecord {
	record.ExpectedRoot = record.ExpectedRoot.Clone()
	return record
}
