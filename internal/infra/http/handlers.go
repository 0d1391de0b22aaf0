package http

import (
	"errors"
	"net/http"
	"time"

	"merkleverifier/internal/domain"
	"merkleverifier/internal/infra/merkle"
	"merkleverifier/internal/usecase"

	"github.com/gin-gonic/gin"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type verifyRequest struct {
	Leaf       string   `json:"leaf"`
	Root       string   `json:"root"`
	Siblings   []string `json:"siblings"`
	Directions []string `json:"directions"`
	HashAlg    string   `json:"hash_alg,omitempty"`
}

type verifyResponse struct {
	Valid        bool   `json:"valid"`
	ComputedRoot string `json:"computed_root"`
	HashAlg      string `json:"hash_alg"`
}

type setRootRequest struct {
	Root string `json:"root"`
}

type setRootResponse struct {
	ID      string `json:"id"`
	Root    string `json:"root"`
	Version int64  `json:"version"`
}

type checkRequest struct {
	Leaf       string   `json:"leaf"`
	Siblings   []string `json:"siblings"`
	Directions []string `json:"directions"`
}

type checkResponse struct {
	ID    string `json:"id"`
	Valid bool   `json:"valid"`
}

type verifierResponse struct {
	ID           string `json:"id"`
	Owner        string `json:"owner"`
	HashAlg      string `json:"hash_alg"`
	ExpectedRoot string `json:"expected_root,omitempty"`
	Armed        bool   `json:"armed"`
	Version      int64  `json:"version"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

type auditEventResponse struct {
	ID            string         `json:"id"`
	Seq           int64          `json:"seq"`
	EventType     string         `json:"event_type"`
	Payload       map[string]any `json:"payload"`
	PayloadHash   string         `json:"payload_hash"`
	ActorType     string         `json:"actor_type"`
	ActorIDHash   string         `json:"actor_id_hash,omitempty"`
	Result        string         `json:"result"`
	ErrorCode     string         `json:"error_code,omitempty"`
	PrevEventHash string         `json:"prev_event_hash"`
	EventHash     string         `json:"event_hash"`
	CreatedAt     string         `json:"created_at"`
}

type auditTrailResponse struct {
	ID         string               `json:"id"`
	ChainValid bool                 `json:"chain_valid"`
	Events     []auditEventResponse `json:"events"`
}

func (s *Server) handleHealth(c *gin.Context) {
	hashAlg := ""
	if s.merkle != nil {
		hashAlg = s.merkle.Hasher.Name()
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "store": s.backend, "hash_alg": hashAlg})
}

func (s *Server) handleVerify(c *gin.Context) {
	caller, ok := s.resolveIdentity(c)
	if !ok || !s.enforceRateLimit(c, routeVerify, caller) {
		return
	}
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	svc := s.merkle
	if req.HashAlg != "" {
		hasher, err := merkle.HasherByName(req.HashAlg)
		if err != nil {
			writeError(c, err)
			return
		}
		svc = merkle.NewService(hasher)
	}
	if svc == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	leaf, err := domain.ParseDigestHex(req.Leaf)
	if err != nil {
		writeError(c, err)
		return
	}
	root, err := domain.ParseDigestHex(req.Root)
	if err != nil {
		writeError(c, err)
		return
	}
	proof, err := domain.ParseProofHex(req.Siblings, req.Directions)
	if err != nil {
		writeError(c, err)
		return
	}
	valid, err := svc.Verify(leaf, proof, root)
	if err != nil {
		writeError(c, err)
		return
	}
	computed, err := svc.ComputeRoot(leaf, proof)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, verifyResponse{
		Valid:        valid,
		ComputedRoot: computed.String(),
		HashAlg:      svc.Hasher.Name(),
	})
}

func (s *Server) handleCreateVerifier(c *gin.Context) {
	caller, ok := s.resolveIdentity(c)
	if !ok || !s.enforceRateLimit(c, routeVerifiersCreate, caller) {
		return
	}
	if s.verifiers == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	record, err := s.verifiers.Create(c.Request.Context(), caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, buildVerifierResponse(record))
}

func (s *Server) handleGetVerifier(c *gin.Context) {
	caller, ok := s.resolveIdentity(c)
	if !ok || !s.enforceRateLimit(c, routeVerifiersRead, caller) {
		return
	}
	if s.verifiers == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	record, err := s.verifiers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildVerifierResponse(record))
}

func (s *Server) handleSetRoot(c *gin.Context) {
	caller, ok := s.resolveIdentity(c)
	if !ok || !s.enforceRateLimit(c, routeVerifiersSet, caller) {
		return
	}
	if s.verifiers == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req setRootRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	root, err := domain.ParseDigestHex(req.Root)
	if err != nil {
		writeError(c, err)
		return
	}
	id := c.Param("id")
	version, err := s.verifiers.SetExpectedRoot(c.Request.Context(), id, root, caller)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, setRootResponse{ID: id, Root: root.String(), Version: version})
}

func (s *Server) handleCheckProof(c *gin.Context) {
	caller, ok := s.resolveIdentity(c)
	if !ok || !s.enforceRateLimit(c, routeVerifiersCheck, caller) {
		return
	}
	if s.verifiers == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	var req checkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid json")
		return
	}
	leaf, err := domain.ParseDigestHex(req.Leaf)
	if err != nil {
		writeError(c, err)
		return
	}
	proof, err := domain.ParseProofHex(req.Siblings, req.Directions)
	if err != nil {
		writeError(c, err)
		return
	}
	id := c.Param("id")
	valid, err := s.verifiers.CheckProof(c.Request.Context(), id, leaf, proof)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, checkResponse{ID: id, Valid: valid})
}

// handleAuditTrail serves the admin key holder, or any identity the
// authorizer lets read the verifier's audit trail.
func (s *Server) handleAuditTrail(c *gin.Context) {
	caller, ok := s.resolveIdentity(c)
	if !ok || !s.enforceRateLimit(c, routeVerifiersAudit, caller) {
		return
	}
	if s.verifiers == nil {
		writeError(c, domain.ErrNotFound)
		return
	}
	id := c.Param("id")
	var (
		events []domain.AuditEvent
		err    error
	)
	switch {
	case s.hasAdminKey(c):
		events, err = s.verifiers.AuditTrail(c.Request.Context(), id)
	case !caller.Empty():
		events, err = s.verifiers.AuditTrailAs(c.Request.Context(), id, caller)
	default:
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "admin key or identity required")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	chainValid := true
	if err := usecase.VerifyAuditEvents(id, events); err != nil {
		chainValid = false
		s.log.WithError(err).WithField("verifier_id", id).Error("audit chain verification failed")
	}
	out := make([]auditEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, buildAuditEventResponse(event))
	}
	c.JSON(http.StatusOK, auditTrailResponse{ID: id, ChainValid: chainValid, Events: out})
}

func buildVerifierResponse(record domain.VerifierRecord) verifierResponse {
	out := verifierResponse{
		ID:        record.ID,
		Owner:     string(record.Owner),
		HashAlg:   record.HashAlg,
		Armed:     record.Armed(),
		Version:   record.Version,
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if record.Armed() {
		out.ExpectedRoot = record.ExpectedRoot.String()
	}
	return out
}

func buildAuditEventResponse(event domain.AuditEvent) auditEventResponse {
	return auditEventResponse{
		ID:            event.ID,
		Seq:           event.Seq,
		EventType:     string(event.EventType),
		Payload:       event.Payload,
		PayloadHash:   event.PayloadHash,
		ActorType:     string(event.ActorType),
		ActorIDHash:   event.ActorIDHash,
		Result:        string(event.Result),
		ErrorCode:     event.ErrorCode,
		PrevEventHash: event.PrevEventHash,
		EventHash:     event.EventHash,
		CreatedAt:     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidDigestLength),
		errors.Is(err, domain.ErrInvalidDigest),
		errors.Is(err, domain.ErrMismatchedProofLength),
		errors.Is(err, domain.ErrInvalidDirection),
		errors.Is(err, domain.ErrUnknownHasher):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotInitialized),
		errors.Is(err, domain.ErrConflict),
		errors.Is(err, domain.ErrHasherMismatch):
		status = http.StatusConflict
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		message = "internal error"
	}
	writeErrorCode(c, status, domain.ErrorCode(err), message)
}

func writeErrorCode(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{
		Code:    code,
		Message: message,
	})
}
