package merkle

import (
	"fmt"

	"merkleverifier/internal/domain"
)

// Root computes the root of leaves split RFC 6962 style: the left subtree
// holds the largest power of two strictly smaller than the leaf count.
func Root(h domain.Hasher, leaves []domain.Digest) (domain.Digest, error) {
	level, err := cloneAndValidateLeaves(h, leaves)
	if err != nil {
		return nil, err
	}
	return treeHash(h, level), nil
}

// InclusionProof returns the steps from leaves[leafIndex] up to Root(leaves).
func InclusionProof(h domain.Hasher, leaves []domain.Digest, leafIndex int) (domain.Proof, error) {
	level, err := cloneAndValidateLeaves(h, leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}
	proof := make(domain.Proof, 0)
	inclusionProof(h, level, leafIndex, &proof)
	return proof, nil
}

func treeHash(h domain.Hasher, leaves []domain.Digest) domain.Digest {
	if len(leaves) == 1 {
		return leaves[0].Clone()
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	return h.HashChildren(treeHash(h, leaves[:k]), treeHash(h, leaves[k:]))
}

func inclusionProof(h domain.Hasher, leaves []domain.Digest, leafIndex int, proof *domain.Proof) {
	if len(leaves) == 1 {
		return
	}
	k := largestPowerOfTwoLessThan(len(leaves))
	if leafIndex < k {
		inclusionProof(h, leaves[:k], leafIndex, proof)
		*proof = append(*proof, domain.ProofStep{Sibling: treeHash(h, leaves[k:]), Direction: domain.DirectionRight})
		return
	}
	inclusionProof(h, leaves[k:], leafIndex-k, proof)
	*proof = append(*proof, domain.ProofStep{Sibling: treeHash(h, leaves[:k]), Direction: domain.DirectionLeft})
}

func cloneAndValidateLeaves(h domain.Hasher, leaves []domain.Digest) ([]domain.Digest, error) {
	if h == nil {
		return nil, ErrNilHasher
	}
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([]domain.Digest, len(leaves))
	for i, leaf := range leaves {
		if err := leaf.CheckSize(h.Size()); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = leaf.Clone()
	}
	return out, nil
}

func largestPowerOfTwoLessThan(value int) int {
	power := 1
	for power<<1 < value {
		power <<= 1
	}
	return power
}
