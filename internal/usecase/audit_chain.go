package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"merkleverifier/internal/domain"
)

// ChainAuditEvent fills the sequence, payload hash and chain hashes of
// event so that it follows prev. prev is nil for the first event of a
// verifier.
func ChainAuditEvent(event domain.AuditEvent, prev *domain.AuditEvent) (domain.AuditEvent, error) {
	if event.VerifierID == "" || event.EventType == "" {
		return domain.AuditEvent{}, errors.New("audit event missing verifier_id or event_type")
	}
	if event.Payload == nil {
		event.Payload = map[string]any{}
	}
	if event.CreatedAt.IsZero() {
		return domain.AuditEvent{}, errors.New("audit event missing created_at")
	}
	event.CreatedAt = event.CreatedAt.UTC().Truncate(time.Microsecond)

	_, payloadHash, err := CanonicalPayload(event.Payload)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.PayloadHash = payloadHash
	event.Seq = 1
	event.PrevEventHash = ZeroAuditHash()
	if prev != nil {
		event.Seq = prev.Seq + 1
		event.PrevEventHash = prev.EventHash
	}
	eventHash, err := computeChainHash(event)
	if err != nil {
		return domain.AuditEvent{}, err
	}
	event.EventHash = eventHash
	return event, nil
}

// VerifyAuditEvents checks sequence numbers, payload hashes and the hash
// chain of a verifier's events in seq order.
func VerifyAuditEvents(verifierID string, events []domain.AuditEvent) error {
	expectedSeq := int64(1)
	prevHash := ZeroAuditHash()
	for _, event := range events {
		if event.VerifierID != verifierID {
			return fmt.Errorf("audit chain verifier mismatch at seq %d", event.Seq)
		}
		if event.Seq != expectedSeq {
			return fmt.Errorf("audit chain seq mismatch: expected %d got %d", expectedSeq, event.Seq)
		}
		if event.PrevEventHash != prevHash {
			return fmt.Errorf("audit chain prev hash mismatch at seq %d", event.Seq)
		}
		_, payloadHash, err := CanonicalPayload(event.Payload)
		if err != nil {
			return fmt.Errorf("audit chain payload encode failed at seq %d: %w", event.Seq, err)
		}
		if payloadHash != event.PayloadHash {
			return fmt.Errorf("audit chain payload hash mismatch at seq %d", event.Seq)
		}
		expectedHash, err := computeChainHash(event)
		if err != nil {
			return fmt.Errorf("audit chain hash compute failed at seq %d: %w", event.Seq, err)
		}
		if expectedHash != event.EventHash {
			return fmt.Errorf("audit chain hash mismatch at seq %d", event.Seq)
		}
		prevHash = event.EventHash
		expectedSeq++
	}
	return nil
}

// CanonicalPayload encodes payload as JSON with sorted object keys.
func CanonicalPayload(payload map[string]any) ([]byte, string, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	canonical, err := json.Marshal(payload)
	if err != nil {
		return nil, "", err
	}
	return canonical, sha256Hex(canonical), nil
}

func ZeroAuditHash() string {
	return strings.Repeat("0", 64)
}

func computeChainHash(event domain.AuditEvent) (string, error) {
	if event.PayloadHash == "" || event.PrevEventHash == "" {
		return "", errors.New("audit event missing payload_hash or prev_event_hash")
	}
	canonical, err := json.Marshal(map[string]any{
		"v":               domain.AuditChainVersion,
		"verifier_id":     event.VerifierID,
		"seq":             event.Seq,
		"event_type":      string(event.EventType),
		"result":          string(event.Result),
		"payload_hash":    event.PayloadHash,
		"prev_event_hash": event.PrevEventHash,
		"created_at":      event.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", err
	}
	return sha256Hex(canonical), nil
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashString(value string) string {
	if value == "" {
		return ""
	}
	return sha256Hex([]byte(value))
}
