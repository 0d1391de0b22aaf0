package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"merkleverifier/internal/config"
	"merkleverifier/internal/domain"

	"github.com/gin-gonic/gin"
)

const (
	headerIdentity      = "X-Identity"
	headerAdminKey      = "X-Admin-Key"
	headerAuthorization = "Authorization"
	principalKey        = "principal"
)

// resolveIdentity returns the caller identity for the request. Under oidc
// only a verified bearer token names the caller and X-Identity is ignored;
// a request without a token is anonymous. The header is trusted only when
// authentication is explicitly disabled. It returns false after writing
// an error response.
func (s *Server) resolveIdentity(c *gin.Context) (domain.Identity, bool) {
	if s.authnMode == config.AuthnModeNone {
		return domain.Identity(strings.TrimSpace(c.GetHeader(headerIdentity))), true
	}
	token := extractBearerToken(c.GetHeader(headerAuthorization))
	if token == "" {
		return "", true
	}
	if s.authenticator == nil {
		writeErrorCode(c, http.StatusInternalServerError, "AUTH_CONFIG_ERROR", "auth configuration error")
		return "", false
	}
	principal, err := s.authenticator.Authenticate(c.Request.Context(), token)
	if err != nil {
		s.log.WithError(err).Debug("bearer token rejected")
		writeErrorCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "invalid bearer token")
		return "", false
	}
	c.Set(principalKey, principal)
	return principal.Identity, true
}

func extractBearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) hasAdminKey(c *gin.Context) bool {
	if s.adminAPIKey == "" {
		return false
	}
	key := strings.TrimSpace(c.GetHeader(headerAdminKey))
	return key != "" && subtle.ConstantTimeCompare([]byte(key), []byte(s.adminAPIKey)) == 1
}
