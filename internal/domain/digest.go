package domain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"
)

// Digest is the fixed-width output of a Hasher. Constructors copy their
// input so a Digest is never aliased with caller memory.
type Digest []byte

func NewDigest(b []byte) Digest {
	if b == nil {
		return nil
	}
	out := make(Digest, len(b))
	copy(out, b)
	return out
}

// ParseDigestHex decodes lower- or upper-case hex with an optional 0x prefix.
func ParseDigestHex(value string) (Digest, error) {
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(strings.TrimPrefix(value, "0x"), "0X")
	if value == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidDigest)
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return Digest(raw), nil
}

func MustParseDigestHex(value string) Digest {
	d, err := ParseDigestHex(value)
	if err != nil {
		panic(err)
	}
	return d
}

func (d Digest) String() string {
	return hex.EncodeToString(d)
}

func (d Digest) Equal(other Digest) bool {
	return bytes.Equal(d, other)
}

func (d Digest) Clone() Digest {
	return NewDigest(d)
}

// CheckSize reports ErrInvalidDigestLength unless d is exactly size bytes.
func (d Digest) CheckSize(size int) error {
	if len(d) != size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrInvalidDigestLength, len(d), size)
	}
	return nil
}
