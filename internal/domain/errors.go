package domain

import "errors"

var (
	ErrInvalidDigestLength   = errors.New("invalid digest length")
	ErrInvalidDigest         = errors.New("invalid digest")
	ErrMismatchedProofLength = errors.New("mismatched proof length")
	ErrInvalidDirection      = errors.New("invalid direction")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNotInitialized        = errors.New("expected root not initialized")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("concurrent update")
	ErrUnknownHasher         = errors.New("unknown hash algorithm")
	ErrHasherMismatch        = errors.New("hash algorithm mismatch")
)

// ErrorCode maps an error to the stable code used in API responses and
// audit events.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidDigestLength):
		return "INVALID_DIGEST_LENGTH"
	case errors.Is(err, ErrInvalidDigest):
		return "INVALID_DIGEST"
	case errors.Is(err, ErrMismatchedProofLength):
		return "MISMATCHED_PROOF_LENGTH"
	case errors.Is(err, ErrInvalidDirection):
		return "INVALID_DIRECTION"
	case errors.Is(err, ErrUnauthorized):
		return "UNAUTHORIZED"
	case errors.Is(err, ErrNotInitialized):
		return "NOT_INITIALIZED"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrUnknownHasher):
		return "UNKNOWN_HASHER"
	case errors.Is(err, ErrHasherMismatch):
		return "HASHER_MISMATCH"
	default:
		return "INTERNAL"
	}
}
