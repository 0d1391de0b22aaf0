package usecase

import (
	"context"
	"time"

	"merkleverifier/internal/domain"
)

type Clock func() time.Time

type MerkleService interface {
	HashSize() int
	Verify(leaf domain.Digest, proof domain.Proof, claimedRoot domain.Digest) (bool, error)
}

type VerifierRepository interface {
	Create(ctx context.Context, record domain.VerifierRecord) error
	Get(ctx context.Context, id string) (*domain.VerifierRecord, error)
	// UpdateRoot stores root as version. It fails with ErrNotFound for
	// unknown ids and with ErrConflict when the stored version is not
	// version-1.
	UpdateRoot(ctx context.Context, id string, root domain.Digest, version int64, updatedAt time.Time) error
}

type AuditEventRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error)
	ListByVerifier(ctx context.Context, verifierID string) ([]domain.AuditEvent, error)
}
