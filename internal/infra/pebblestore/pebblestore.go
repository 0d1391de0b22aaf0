package pebblestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"merkleverifier/internal/domain"
	"merkleverifier/internal/usecase"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	verifierPrefix = "verifier/"
	auditPrefix    = "audit/"
)

// Store persists verifier records and audit chains in a local pebble
// database. Values are msgpack; audit keys sort by sequence number.
type Store struct {
	db *pebble.DB
	// mu serializes read-modify-write sequences; pebble has no
	// multi-key transactions.
	mu sync.Mutex
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("pebble path is required")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

type verifierValue struct {
	ID           string    `msgpack:"id"`
	Owner        string    `msgpack:"owner"`
	HashAlg      string    `msgpack:"hash_alg"`
	ExpectedRoot string    `msgpack:"expected_root,omitempty"`
	Version      int64     `msgpack:"version"`
	CreatedAt    time.Time `msgpack:"created_at"`
	UpdatedAt    time.Time `msgpack:"updated_at"`
}

type auditValue struct {
	ID            string         `msgpack:"id"`
	VerifierID    string         `msgpack:"verifier_id"`
	Seq           int64          `msgpack:"seq"`
	EventType     string         `msgpack:"event_type"`
	Payload       map[string]any `msgpack:"payload"`
	PayloadHash   string         `msgpack:"payload_hash"`
	ActorType     string         `msgpack:"actor_type"`
	ActorIDHash   string         `msgpack:"actor_id_hash,omitempty"`
	Result        string         `msgpack:"result"`
	ErrorCode     string         `msgpack:"error_code,omitempty"`
	PrevEventHash string         `msgpack:"prev_event_hash"`
	EventHash     string         `msgpack:"event_hash"`
	CreatedAt     time.Time      `msgpack:"created_at"`
}

func (s *Store) Create(ctx context.Context, record domain.VerifierRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if record.ID == "" {
		return errors.New("verifier id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.getVerifier(record.ID); err == nil {
		return fmt.Errorf("%w: verifier %s already exists", domain.ErrConflict, record.ID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return s.putVerifier(record)
}

func (s *Store) Get(ctx context.Context, id string) (*domain.VerifierRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	record, err := s.getVerifier(id)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *Store) UpdateRoot(ctx context.Context, id string, root domain.Digest, version int64, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, err := s.getVerifier(id)
	if err != nil {
		return err
	}
	if record.Version != version-1 {
		return fmt.Errorf("%w: verifier %s is at version %d", domain.ErrConflict, id, record.Version)
	}
	record.ExpectedRoot = root.Clone()
	record.Version = version
	record.UpdatedAt = updatedAt.UTC()
	return s.putVerifier(record)
}

func (s *Store) Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.AuditEvent{}, err
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.lastAuditEvent(event.VerifierID)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	chained, err := usecase.ChainAuditEvent(event, prev)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	value, err := msgpack.Marshal(auditValueFromDomain(chained))
	if err != nil {
		return domain.AuditEvent{}, err
	}
	if err := s.db.Set(auditKey(chained.VerifierID, chained.Seq), value, pebble.Sync); err != nil {
		return domain.AuditEvent{}, err
	}
	return chained, nil
}

func (s *Store) ListByVerifier(ctx context.Context, verifierID string) ([]domain.AuditEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	iter, err := s.db.NewIter(auditBounds(verifierID))
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make([]domain.AuditEvent, 0)
	for iter.First(); iter.Valid(); iter.Next() {
		event, err := decodeAuditEvent(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	if err := iter.Error(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) lastAuditEvent(verifierID string) (*domain.AuditEvent, error) {
	iter, err := s.db.NewIter(auditBounds(verifierID))
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	if !iter.Last() {
		return nil, iter.Error()
	}
	event, err := decodeAuditEvent(iter.Value())
	if err != nil {
		return nil, err
	}
	return &event, nil
}

func (s *Store) getVerifier(id string) (domain.VerifierRecord, error) {
	val, closer, err := s.db.Get(verifierKey(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return domain.VerifierRecord{}, domain.ErrNotFound
		}
		return domain.VerifierRecord{}, err
	}
	defer closer.Close()

	var stored verifierValue
	if err := msgpack.Unmarshal(val, &stored); err != nil {
		return domain.VerifierRecord{}, fmt.Errorf("decode verifier %s: %w", id, err)
	}
	record := domain.VerifierRecord{
		ID:        stored.ID,
		Owner:     domain.Identity(stored.Owner),
		HashAlg:   stored.HashAlg,
		Version:   stored.Version,
		CreatedAt: stored.CreatedAt.UTC(),
		UpdatedAt: stored.UpdatedAt.UTC(),
	}
	if stored.ExpectedRoot != "" {
		root, err := domain.ParseDigestHex(stored.ExpectedRoot)
		if err != nil {
			return domain.VerifierRecord{}, fmt.Errorf("decode verifier %s: %w", id, err)
		}
		record.ExpectedRoot = root
	}
	return record, nil
}

func (s *Store) putVerifier(record domain.VerifierRecord) error {
	stored := verifierValue{
		ID:        record.ID,
		Owner:     string(record.Owner),
		HashAlg:   record.HashAlg,
		Version:   record.Version,
		CreatedAt: record.CreatedAt.UTC(),
		UpdatedAt: record.UpdatedAt.UTC(),
	}
	if record.Armed() {
		stored.ExpectedRoot = record.ExpectedRoot.String()
	}
	value, err := msgpack.Marshal(stored)
	if err != nil {
		return err
	}
	return s.db.Set(verifierKey(record.ID), value, pebble.Sync)
}

func verifierKey(id string) []byte {
	return []byte(verifierPrefix + id)
}

// auditIDPrefix length-prefixes the verifier id so the scan for "v" never
// reaches the keys of "v/x".
func auditIDPrefix(verifierID string) string {
	return fmt.Sprintf("%s%08x%s/", auditPrefix, len(verifierID), verifierID)
}

// auditKey zero-pads seq so lexical order matches sequence order.
func auditKey(verifierID string, seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", auditIDPrefix(verifierID), seq))
}

func auditBounds(verifierID string) *pebble.IterOptions {
	prefix := auditIDPrefix(verifierID)
	upper := []byte(prefix)
	upper[len(upper)-1]++
	return &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	}
}

func auditValueFromDomain(event domain.AuditEvent) auditValue {
	return auditValue{
		ID:            event.ID,
		VerifierID:    event.VerifierID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		Payload:       event.Payload,
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		ActorIDHash:   event.ActorIDHash,
		Result:        string(event.Result),
		ErrorCode:     event.ErrorCode,
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC(),
	}
}

func decodeAuditEvent(raw []byte) (domain.AuditEvent, error) {
	var stored auditValue
	if err := msgpack.Unmarshal(raw, &stored); err != nil {
		return domain.AuditEvent{}, fmt.Errorf("decode audit event: %w", err)
	}
	if stored.Payload == nil {
		stored.Payload = map[string]any{}
	}
	return domain.AuditEvent{
		ID:            stored.ID,
		VerifierID:    stored.VerifierID,
		Seq:           stored.Seq,
		EventType:     domain.AuditEventType(stored.EventType),
		Payload:       stored.Payload,
		PayloadHash:   stored.PayloadHash,
		ActorType:     domain.AuditActorType(stored.ActorType),
		ActorIDHash:   stored.ActorIDHash,
		Result:        domain.AuditResult(stored.Result),
		ErrorCode:     stored.ErrorCode,
		PrevEventHash: stored.PrevEventHash,
		EventHash:     stored.EventHash,
		CreatedAt:     stored.CreatedAt.UTC(),
	}, nil
}
