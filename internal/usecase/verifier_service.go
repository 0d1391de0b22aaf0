package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"merkleverifier/internal/domain"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// VerifierService manages independently addressable verifier registries
// backed by a VerifierRepository.
type VerifierService struct {
	Repo       VerifierRepository
	Merkle     MerkleService
	HashAlg    string
	Authorizer domain.Authorizer
	Audit      *AuditEmitter
	Logger     logrus.FieldLogger
	Clock      Clock
	NewID      func() string

	mu         sync.Mutex
	registries map[string]*VerifierRegistry
}

func NewVerifierService(repo VerifierRepository, merkle MerkleService, hashAlg string) *VerifierService {
	return &VerifierService{
		Repo:       repo,
		Merkle:     merkle,
		HashAlg:    hashAlg,
		registries: make(map[string]*VerifierRegistry),
	}
}

func (s *VerifierService) Create(ctx context.Context, owner domain.Identity) (domain.VerifierRecord, error) {
	if s.Repo == nil || s.Merkle == nil {
		return domain.VerifierRecord{}, errors.New("verifier service is not configured")
	}
	if owner.Empty() {
		return domain.VerifierRecord{}, fmt.Errorf("%w: owner identity required", domain.ErrUnauthorized)
	}
	now := s.now().UTC()
	record := domain.VerifierRecord{
		ID:        s.newID(),
		Owner:     owner,
		HashAlg:   s.HashAlg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(ctx, record); err != nil {
		return domain.VerifierRecord{}, err
	}
	s.store(s.hydrate(record))
	s.logger().WithFields(logrus.Fields{
		"verifier_id": record.ID,
		"hash_alg":    record.HashAlg,
	}).Info("verifier created")
	if s.Audit != nil {
		if err := s.Audit.EmitVerifierCreated(ctx, record.ID, owner, record.HashAlg); err != nil {
			s.logger().WithError(err).WithField("verifier_id", record.ID).Warn("audit verifier_created failed")
		}
	}
	return record, nil
}

func (s *VerifierService) Get(ctx context.Context, id string) (domain.VerifierRecord, error) {
	if s.Repo == nil {
		return domain.VerifierRecord{}, errors.New("verifier service is not configured")
	}
	record, err := s.Repo.Get(ctx, id)
	if err != nil {
		return domain.VerifierRecord{}, err
	}
	return *record, nil
}

// SetExpectedRoot authorizes caller against the verifier owner, persists
// the new root and then makes it visible to CheckProof.
func (s *VerifierService) SetExpectedRoot(ctx context.Context, id string, root domain.Digest, caller domain.Identity) (int64, error) {
	reg, err := s.registry(ctx, id)
	if err != nil {
		return 0, err
	}
	var committed int64
	err = reg.SetExpectedRootFunc(ctx, root, caller, func(root domain.Digest, version int64) error {
		if err := s.Repo.UpdateRoot(ctx, id, root, version, s.now().UTC()); err != nil {
			return err
		}
		committed = version
		return nil
	})
	if errors.Is(err, domain.ErrConflict) {
		s.evict(id)
	}

	entry := s.logger().WithFields(logrus.Fields{
		"verifier_id": id,
		"root":        root.String(),
	})
	result := domain.AuditResultSuccess
	if err != nil {
		result = domain.AuditResultFailure
		entry.WithError(err).Warn("expected root rejected")
	} else {
		entry.WithField("version", committed).Info("expected root set")
	}
	if s.Audit != nil {
		if auditErr := s.Audit.EmitRootSet(ctx, id, caller, root, committed, result, domain.ErrorCode(err)); auditErr != nil {
			entry.WithError(auditErr).Warn("audit root_set failed")
		}
	}
	if err != nil {
		return 0, err
	}
	return committed, nil
}

func (s *VerifierService) CheckProof(ctx context.Context, id string, leaf domain.Digest, proof domain.Proof) (bool, error) {
	reg, err := s.registry(ctx, id)
	if err != nil {
		return false, err
	}
	return reg.CheckProof(leaf, proof)
}

// Verify checks a proof against an ad-hoc root without touching any
// verifier state.
func (s *VerifierService) Verify(leaf domain.Digest, proof domain.Proof, claimedRoot domain.Digest) (bool, error) {
	if s.Merkle == nil {
		return false, errors.New("verifier service is not configured")
	}
	return s.Merkle.Verify(leaf, proof, claimedRoot)
}

func (s *VerifierService) AuditTrail(ctx context.Context, id string) ([]domain.AuditEvent, error) {
	if s.Audit == nil || s.Audit.Repo == nil {
		return nil, domain.ErrNotFound
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Audit.Repo.ListByVerifier(ctx, id)
}

// AuditTrailAs returns the audit trail when caller may read it under the
// configured authorizer.
func (s *VerifierService) AuditTrailAs(ctx context.Context, id string, caller domain.Identity) ([]domain.AuditEvent, error) {
	record, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizer().Authorize(ctx, domain.AuthzRequest{
		Action:     domain.ActionReadAudit,
		VerifierID: id,
		Caller:     caller,
		Owner:      record.Owner,
	}); err != nil {
		return nil, err
	}
	return s.AuditTrail(ctx, id)
}

// registry returns the cached registry for id, hydrating it again when the
// stored record is newer than the cache. Another replica sharing the repo
// may have rotated the root.
func (s *VerifierService) registry(ctx context.Context, id string) (*VerifierRegistry, error) {
	if s.Repo == nil || s.Merkle == nil {
		return nil, errors.New("verifier service is not configured")
	}
	record, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	reg, ok := s.registries[id]
	s.mu.Unlock()
	if ok && reg.Version() >= record.Version {
		return reg, nil
	}

	if record.HashAlg != "" && s.HashAlg != "" && record.HashAlg != s.HashAlg {
		return nil, fmt.Errorf("%w: verifier %s uses %s, service uses %s", domain.ErrHasherMismatch, id, record.HashAlg, s.HashAlg)
	}
	if ok {
		s.logger().WithFields(logrus.Fields{
			"verifier_id": id,
			"cached":      reg.Version(),
			"stored":      record.Version,
		}).Debug("reloading verifier from store")
	}
	return s.store(s.hydrate(*record)), nil
}

func (s *VerifierService) hydrate(record domain.VerifierRecord) *VerifierRegistry {
	return NewVerifierRegistry(record.ID, record.Owner, s.Merkle,
		WithAuthorizer(s.Authorizer),
		WithExpectedRoot(record.ExpectedRoot, record.Version),
	)
}

// store caches reg unless the cached entry is at least as new.
func (s *VerifierService) store(reg *VerifierRegistry) *VerifierRegistry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.registries == nil {
		s.registries = make(map[string]*VerifierRegistry)
	}
	if existing, ok := s.registries[reg.ID()]; ok && existing.Version() >= reg.Version() {
		return existing
	}
	s.registries[reg.ID()] = reg
	return reg
}

func (s *VerifierService) evict(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.registries, id)
}

func (s *VerifierService) authorizer() domain.Authorizer {
	if s.Authorizer == nil {
		return OwnerAuthorizer{}
	}
	return s.Authorizer
}

func (s *VerifierService) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *VerifierService) now() time.Time {
	if s.Clock == nil {
		return time.Now()
	}
	return s.Clock()
}

func (s *VerifierService) logger() logrus.FieldLogger {
	if s.Logger == nil {
		return logrus.StandardLogger()
	}
	return s.Logger
}
