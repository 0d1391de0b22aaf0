package domain

import (
	"context"
	"crypto/subtle"
	"strings"
)

// Identity is an opaque caller identity, typically a ledger address.
type Identity string

func (i Identity) Empty() bool {
	return strings.TrimSpace(string(i)) == ""
}

func (i Identity) Equal(other Identity) bool {
	if i.Empty() || other.Empty() {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(i), []byte(other)) == 1
}

const (
	ActionSetExpectedRoot = "verifier:set_root"
	ActionReadAudit       = "verifier:read_audit"
)

type AuthzRequest struct {
	Action     string   `json:"action"`
	VerifierID string   `json:"verifier_id"`
	Caller     Identity `json:"caller"`
	Owner      Identity `json:"owner"`
}

// Authorizer returns nil when the request is allowed and an error wrapping
// ErrUnauthorized otherwise.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthzRequest) error
}

// Principal is a caller whose credentials were verified. Identity is the
// value compared against verifier owners.
type Principal struct {
	Subject   string
	Identity  Identity
	RawClaims map[string]any
}

type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (Principal, error)
}
