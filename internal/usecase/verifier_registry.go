package usecase

import (
	"context"
	"fmt"
	"sync"

	"merkleverifier/internal/domain"
)

// VerifierRegistry holds the expected root of one verifier instance.
// Writers are serialized; CheckProof calls share a read lock.
type VerifierRegistry struct {
	id         string
	owner      domain.Identity
	merkle     MerkleService
	authorizer domain.Authorizer

	mu           sync.RWMutex
	expectedRoot domain.Digest
	version      int64
}

type RegistryOption func(*VerifierRegistry)

func WithAuthorizer(a domain.Authorizer) RegistryOption {
	return func(r *VerifierRegistry) {
		if a != nil {
			r.authorizer = a
		}
	}
}

// WithExpectedRoot restores a persisted root without authorization.
func WithExpectedRoot(root domain.Digest, version int64) RegistryOption {
	return func(r *VerifierRegistry) {
		if len(root) == 0 {
			return
		}
		r.expectedRoot = root.Clone()
		r.version = version
	}
}

func NewVerifierRegistry(id string, owner domain.Identity, merkle MerkleService, opts ...RegistryOption) *VerifierRegistry {
	r := &VerifierRegistry{
		id:         id,
		owner:      owner,
		merkle:     merkle,
		authorizer: OwnerAuthorizer{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *VerifierRegistry) ID() string { return r.id }

func (r *VerifierRegistry) Owner() domain.Identity { return r.owner }

// Version counts accepted root changes; it is 0 until a root is set.
func (r *VerifierRegistry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

// ExpectedRoot returns a copy of the current root and whether one is set.
func (r *VerifierRegistry) ExpectedRoot() (domain.Digest, int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.expectedRoot == nil {
		return nil, 0, false
	}
	return r.expectedRoot.Clone(), r.version, true
}

func (r *VerifierRegistry) SetExpectedRoot(ctx context.Context, newRoot domain.Digest, caller domain.Identity) error {
	return r.SetExpectedRootFunc(ctx, newRoot, caller, nil)
}

// SetExpectedRootFunc replaces the expected root. commit, when non-nil,
// runs under the write lock before the new root becomes visible; if it
// fails the previous root is kept.
func (r *VerifierRegistry) SetExpectedRootFunc(ctx context.Context, newRoot domain.Digest, caller domain.Identity, commit func(root domain.Digest, version int64) error) error {
	if err := r.authorizer.Authorize(ctx, domain.AuthzRequest{
		Action:     domain.ActionSetExpectedRoot,
		VerifierID: r.id,
		Caller:     caller,
		Owner:      r.owner,
	}); err != nil {
		return err
	}
	if err := newRoot.CheckSize(r.merkle.HashSize()); err != nil {
		return fmt.Errorf("root: %w", err)
	}

	root := newRoot.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()
	next := r.version + 1
	if commit != nil {
		if err := commit(root.Clone(), next); err != nil {
			return err
		}
	}
	r.expectedRoot = root
	r.version = next
	return nil
}

func (r *VerifierRegistry) CheckProof(leaf domain.Digest, proof domain.Proof) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.expectedRoot == nil {
		return false, domain.ErrNotInitialized
	}
	return r.merkle.Verify(leaf, proof, r.expectedRoot)
}

// OwnerAuthorizer allows the verifier owner and any listed admin identity.
type OwnerAuthorizer struct {
	Admins []domain.Identity
}

func (a OwnerAuthorizer) Authorize(_ context.Context, req domain.AuthzRequest) error {
	if req.Caller.Empty() {
		return fmt.Errorf("%w: missing caller identity", domain.ErrUnauthorized)
	}
	if req.Caller.Equal(req.Owner) {
		return nil
	}
	for _, admin := range a.Admins {
		if req.Caller.Equal(admin) {
			return nil
		}
	}
	return fmt.Errorf("%w: caller is not the verifier owner", domain.ErrUnauthorized)
}
