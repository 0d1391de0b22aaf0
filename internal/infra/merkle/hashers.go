package merkle

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"merkleverifier/internal/domain"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

const HashSize = 32

const (
	HashSHA256    = "sha256"
	HashRFC6962   = "rfc6962-sha256"
	HashSHA3      = "sha3-256"
	HashKeccak256 = "keccak256"
	HashBLAKE3    = "blake3"
	HashBLAKE2b   = "blake2b-256"
)

// concatHasher hashes leaves and nodes as the raw concatenation of their
// inputs, optionally behind one-byte domain separation prefixes.
type concatHasher struct {
	name       string
	sum        func(parts ...[]byte) []byte
	leafPrefix []byte
	nodePrefix []byte
}

func (c concatHasher) Name() string { return c.name }

func (c concatHasher) Size() int { return HashSize }

func (c concatHasher) HashLeaf(data []byte) domain.Digest {
	return domain.Digest(c.sum(c.leafPrefix, data))
}

func (c concatHasher) HashChildren(left, right domain.Digest) domain.Digest {
	return domain.Digest(c.sum(c.nodePrefix, left, right))
}

func sumSHA256(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func sumSHA3(parts ...[]byte) []byte {
	h := sha3.New256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func sumKeccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func sumBLAKE3(parts ...[]byte) []byte {
	h := blake3.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func sumBLAKE2b(parts ...[]byte) []byte {
	h, err := blake2b.New256(nil)
	if err != nil {
		// only fails for keys longer than 64 bytes
		panic(err)
	}
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

var hashers = map[string]domain.Hasher{
	HashSHA256:    concatHasher{name: HashSHA256, sum: sumSHA256},
	HashRFC6962:   concatHasher{name: HashRFC6962, sum: sumSHA256, leafPrefix: []byte{0x00}, nodePrefix: []byte{0x01}},
	HashSHA3:      concatHasher{name: HashSHA3, sum: sumSHA3},
	HashKeccak256: concatHasher{name: HashKeccak256, sum: sumKeccak},
	HashBLAKE3:    concatHasher{name: HashBLAKE3, sum: sumBLAKE3},
	HashBLAKE2b:   concatHasher{name: HashBLAKE2b, sum: sumBLAKE2b},
}

func SHA256() domain.Hasher { return hashers[HashSHA256] }

func HasherByName(name string) (domain.Hasher, error) {
	h, ok := hashers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownHasher, name)
	}
	return h, nil
}

func HasherNames() []string {
	names := make([]string, 0, len(hashers))
	for name := range hashers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
