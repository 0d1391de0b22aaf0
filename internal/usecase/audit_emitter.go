package usecase

import (
	"context"
	"errors"
	"time"

	"merkleverifier/internal/domain"
)

type AuditEmitter struct {
	Repo  AuditEventRepository
	Clock Clock
}

func NewAuditEmitter(repo AuditEventRepository, clock Clock) *AuditEmitter {
	return &AuditEmitter{
		Repo:  repo,
		Clock: clock,
	}
}

func (e *AuditEmitter) Emit(ctx context.Context, event domain.AuditEvent) (domain.AuditEvent, error) {
	if e == nil || e.Repo == nil {
		return domain.AuditEvent{}, errors.New("audit repository required")
	}
	if event.VerifierID == "" || event.EventType == "" || event.Result == "" || event.ActorType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing required fields")
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = e.now().UTC()
	} else {
		event.CreatedAt = event.CreatedAt.UTC()
	}
	return e.Repo.Append(ctx, event)
}

func (e *AuditEmitter) EmitVerifierCreated(ctx context.Context, verifierID string, owner domain.Identity, hashAlg string) error {
	_, err := e.Emit(ctx, domain.AuditEvent{
		VerifierID:  verifierID,
		ActorType:   domain.AuditActorIdentity,
		ActorIDHash: hashString(string(owner)),
		EventType:   domain.AuditEventVerifierCreated,
		Payload: map[string]any{
			"hash_alg": hashAlg,
		},
		Result: domain.AuditResultSuccess,
	})
	return err
}

// EmitRootSet records a root change attempt. The caller identity is only
// stored as a hash.
func (e *AuditEmitter) EmitRootSet(ctx context.Context, verifierID string, caller domain.Identity, root domain.Digest, version int64, result domain.AuditResult, errorCode string) error {
	payload := map[string]any{
		"root": root.String(),
	}
	if version > 0 {
		payload["version"] = version
	}
	_, err := e.Emit(ctx, domain.AuditEvent{
		VerifierID:  verifierID,
		ActorType:   domain.AuditActorIdentity,
		ActorIDHash: hashString(string(caller)),
		EventType:   domain.AuditEventRootSet,
		Payload:     payload,
		Result:      result,
		ErrorCode:   errorCode,
	})
	return err
}

func (e *AuditEmitter) now() time.Time {
	if e.Clock == nil {
		return time.Now()
	}
	return e.Clock()
}
