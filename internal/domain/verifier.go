package domain

import "time"

// VerifierRecord is the persisted form of a verifier registry instance.
type VerifierRecord struct {
	ID           string
	Owner        Identity
	HashAlg      string
	ExpectedRoot Digest
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r VerifierRecord) Armed() bool {
	return len(r.ExpectedRoot) > 0
}
