package domain

import (
	"fmt"
	"strings"
)

type Direction uint8

const (
	// DirectionLeft means the sibling is the left operand: H(sibling, current).
	DirectionLeft Direction = iota + 1
	// DirectionRight means the sibling is the right operand: H(current, sibling).
	DirectionRight
)

func (d Direction) String() string {
	switch d {
	case DirectionLeft:
		return "left"
	case DirectionRight:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", uint8(d))
	}
}

func (d Direction) Valid() bool {
	return d == DirectionLeft || d == DirectionRight
}

func ParseDirection(value string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "left", "l":
		return DirectionLeft, nil
	case "right", "r":
		return DirectionRight, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, value)
	}
}

type ProofStep struct {
	Sibling   Digest
	Direction Direction
}

// Proof is consumed from the leaf toward the root, in order.
type Proof []ProofStep

// Hex splits the proof back into its wire shape: lower-case hex siblings
// and "left"/"right" markers.
func (p Proof) Hex() (siblings []string, directions []string) {
	siblings = make([]string, 0, len(p))
	directions = make([]string, 0, len(p))
	for _, step := range p {
		siblings = append(siblings, step.Sibling.String())
		directions = append(directions, step.Direction.String())
	}
	return siblings, directions
}

// ZipProof pairs parallel sibling and direction lists into atomic steps.
func ZipProof(siblings []Digest, directions []Direction) (Proof, error) {
	if len(siblings) != len(directions) {
		return nil, fmt.Errorf("%w: %d siblings, %d directions", ErrMismatchedProofLength, len(siblings), len(directions))
	}
	proof := make(Proof, 0, len(siblings))
	for i := range siblings {
		if !directions[i].Valid() {
			return nil, fmt.Errorf("step %d: %w", i, ErrInvalidDirection)
		}
		proof = append(proof, ProofStep{Sibling: siblings[i].Clone(), Direction: directions[i]})
	}
	return proof, nil
}

// ParseProofHex zips hex siblings with "left"/"right" markers.
func ParseProofHex(siblings []string, directions []string) (Proof, error) {
	if len(siblings) != len(directions) {
		return nil, fmt.Errorf("%w: %d siblings, %d directions", ErrMismatchedProofLength, len(siblings), len(directions))
	}
	digests := make([]Digest, 0, len(siblings))
	for i, s := range siblings {
		d, err := ParseDigestHex(s)
		if err != nil {
			return nil, fmt.Errorf("sibling %d: %w", i, err)
		}
		digests = append(digests, d)
	}
	dirs := make([]Direction, 0, len(directions))
	for i, s := range directions {
		dir, err := ParseDirection(s)
		if err != nil {
			return nil, fmt.Errorf("direction %d: %w", i, err)
		}
		dirs = append(dirs, dir)
	}
	return ZipProof(digests, dirs)
}
