package db

import "time"

type VerifierModel struct {
	ID           string    `gorm:"primaryKey"`
	Owner        string    `gorm:"not null"`
	HashAlg      string    `gorm:"not null"`
	ExpectedRoot []byte    `gorm:"type:bytea"`
	Version      int64     `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (VerifierModel) TableName() string { return "verifiers" }

type AuditEventModel struct {
	ID            string    `gorm:"primaryKey"`
	VerifierID    string    `gorm:"not null;uniqueIndex:idx_audit_events_verifier_seq,priority:1"`
	Seq           int64     `gorm:"not null;uniqueIndex:idx_audit_events_verifier_seq,priority:2"`
	EventType     string    `gorm:"not null"`
	PayloadJSON   []byte    `gorm:"column:payload_json;type:jsonb;not null"`
	PayloadHash   string    `gorm:"not null"`
	ActorType     string    `gorm:"not null"`
	ActorIDHash   *string
	Result        string    `gorm:"not null"`
	ErrorCode     *string
	PrevEventHash string    `gorm:"not null"`
	EventHash     string    `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
}

func (AuditEventModel) TableName() string { return "audit_events" }
