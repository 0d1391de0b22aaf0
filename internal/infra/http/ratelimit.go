package http

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"merkleverifier/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	routeVerify          = "verify"
	routeVerifiersCreate = "verifiers:create"
	routeVerifiersRead   = "verifiers:read"
	routeVerifiersSet    = "verifiers:set_root"
	routeVerifiersCheck  = "verifiers:check"
	routeVerifiersAudit  = "verifiers:audit"
)

var subjectLimitedRoutes = map[string]bool{
	routeVerifiersCreate: true,
	routeVerifiersSet:    true,
}

func (s *Server) enforceRateLimit(c *gin.Context, routeID string, caller domain.Identity) bool {
	if s.rateLimiter == nil || s.rateLimitRequests <= 0 {
		return true
	}
	key := fmt.Sprintf("endpoint:%s:ip:%s", routeID, c.ClientIP())
	if s.rateLimitWithSubject && subjectLimitedRoutes[routeID] && !caller.Empty() {
		subject := string(caller)
		if s.rateLimitSubjectMax <= 0 || len(subject) <= s.rateLimitSubjectMax {
			if s.rateLimitSubjectHash {
				sum := sha256.Sum256([]byte(subject))
				key = key + ":subject_hash:" + hex.EncodeToString(sum[:])
			} else {
				key = key + ":subject:" + subject
			}
		}
	}

	decision, err := s.rateLimiter.Allow(c.Request.Context(), key, s.rateLimitRequests, s.rateLimitWindow)
	if err != nil {
		s.log.WithError(err).WithField("route", routeID).Warn("rate limiter unavailable")
		if s.rateLimitFailClosed {
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
			return false
		}
		return true
	}
	writeRateLimitHeaders(c, decision)
	if !decision.Allowed {
		writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
		return false
	}
	return true
}

func writeRateLimitHeaders(c *gin.Context, decision domain.RateLimitDecision) {
	if decision.Limit > 0 {
		c.Header("RateLimit-Limit", strconv.Itoa(decision.Limit))
	}
	if decision.Remaining >= 0 {
		c.Header("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	}
	if !decision.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
		if !decision.Allowed {
			c.Header("Retry-After", strconv.FormatInt(decision.RetryAfter(time.Now()), 10))
		}
	}
}
