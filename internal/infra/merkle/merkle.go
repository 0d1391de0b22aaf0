package merkle

import (
	"errors"
	"fmt"

	"merkleverifier/internal/domain"
)

var (
	ErrNilHasher    = errors.New("nil hasher")
	ErrEmptyTree    = errors.New("empty merkle tree")
	ErrInvalidIndex = errors.New("invalid leaf index")
)

// Verify recomputes the root from leaf along proof and compares it with
// claimedRoot. A mismatch is reported as false, not as an error; errors
// are reserved for structurally malformed input.
func Verify(h domain.Hasher, leaf domain.Digest, proof domain.Proof, claimedRoot domain.Digest) (bool, error) {
	if h == nil {
		return false, ErrNilHasher
	}
	if err := claimedRoot.CheckSize(h.Size()); err != nil {
		return false, fmt.Errorf("root: %w", err)
	}
	computed, err := ComputeRoot(h, leaf, proof)
	if err != nil {
		return false, err
	}
	return computed.Equal(claimedRoot), nil
}

// ComputeRoot folds leaf with each step's sibling, leaf to root.
func ComputeRoot(h domain.Hasher, leaf domain.Digest, proof domain.Proof) (domain.Digest, error) {
	if h == nil {
		return nil, ErrNilHasher
	}
	if err := validateProof(h.Size(), leaf, proof); err != nil {
		return nil, err
	}
	current := leaf.Clone()
	for _, step := range proof {
		if step.Direction == domain.DirectionLeft {
			current = h.HashChildren(step.Sibling, current)
		} else {
			current = h.HashChildren(current, step.Sibling)
		}
	}
	return current, nil
}

func validateProof(size int, leaf domain.Digest, proof domain.Proof) error {
	if err := leaf.CheckSize(size); err != nil {
		return fmt.Errorf("leaf: %w", err)
	}
	for i, step := range proof {
		if err := step.Sibling.CheckSize(size); err != nil {
			return fmt.Errorf("step %d sibling: %w", i, err)
		}
		if !step.Direction.Valid() {
			return fmt.Errorf("step %d: %w", i, domain.ErrInvalidDirection)
		}
	}
	return nil
}
