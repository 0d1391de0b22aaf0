package domain

// Hasher folds two child digests into their parent. Implementations must
// be deterministic and safe for concurrent use.
type Hasher interface {
	Name() string
	// Size is the width in bytes of every digest the hasher produces.
	Size() int
	HashLeaf(data []byte) Digest
	HashChildren(left, right Digest) Digest
}
