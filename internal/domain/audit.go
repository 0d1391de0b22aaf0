package domain

import "time"

type AuditActorType string

const (
	AuditChainVersion = "audit_chain_v0"

	AuditActorIdentity    AuditActorType = "identity"
	AuditActorAdminAPIKey AuditActorType = "admin_api_key"
	AuditActorSystem      AuditActorType = "system"
)

type AuditEventType string

const (
	AuditEventVerifierCreated AuditEventType = "verifier_created"
	AuditEventRootSet         AuditEventType = "root_set"
)

type AuditResult string

const (
	AuditResultSuccess AuditResult = "success"
	AuditResultFailure AuditResult = "failure"
)

// AuditEvent records a change to a verifier. Events for one verifier form
// a hash chain through PrevEventHash.
type AuditEvent struct {
	ID            string
	VerifierID    string
	Seq           int64
	EventType     AuditEventType
	Payload       map[string]any
	PayloadHash   string
	ActorType     AuditActorType
	ActorIDHash   string
	Result        AuditResult
	ErrorCode     string
	PrevEventHash string
	EventHash     string
	CreatedAt     time.Time
}
