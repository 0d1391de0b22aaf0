package oidc

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"merkleverifier/internal/config"
	"merkleverifier/internal/domain"
)

const (
	discoveryPath   = "/.well-known/openid-configuration"
	discoverTimeout = 5 * time.Second
	defaultClaim    = "sub"
)

// Authenticator verifies RS256 bearer tokens from one issuer and maps a
// configured claim to the caller identity.
type Authenticator struct {
	issuer        string
	audience      string
	identityClaim string
	clockSkew     time.Duration
	now           func() time.Time
	keys          *keySet
}

type Option func(*Authenticator)

func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		if client != nil {
			a.keys.client = client
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
			a.keys.now = now
		}
	}
}

// NewAuthenticator discovers the JWKS endpoint from the issuer unless
// OIDC_JWKS_URL is set. Discovery uses the client supplied by options.
func NewAuthenticator(ctx context.Context, cfg config.Config, opts ...Option) (*Authenticator, error) {
	issuer := strings.TrimSpace(cfg.OIDCIssuerURL)
	if issuer == "" {
		return nil, errors.New("OIDC_ISSUER_URL is required")
	}
	claim := strings.TrimSpace(cfg.OIDCIdentityClaim)
	if claim == "" {
		claim = defaultClaim
	}
	auth := &Authenticator{
		issuer:        issuer,
		audience:      strings.TrimSpace(cfg.OIDCAudience),
		identityClaim: claim,
		clockSkew:     time.Duration(cfg.OIDCClockSkewSecs) * time.Second,
		now:           time.Now,
		keys:          newKeySet(strings.TrimSpace(cfg.OIDCJWKSURL), &http.Client{Timeout: discoverTimeout}),
	}
	for _, opt := range opts {
		opt(auth)
	}
	if auth.keys.url == "" {
		jwksURL, err := discoverJWKSURL(ctx, auth.keys.client, issuer)
		if err != nil {
			return nil, fmt.Errorf("oidc discovery: %w", err)
		}
		auth.keys.url = jwksURL
	}
	return auth, nil
}

// Authenticate returns ErrUnauthorized for every rejected token so callers
// cannot tell signature failures from claim failures.
func (a *Authenticator) Authenticate(ctx context.Context, bearerToken string) (domain.Principal, error) {
	if a == nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	token := strings.TrimSpace(bearerToken)
	if token == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	parsed, err := parseJWT(token)
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if alg, _ := parsed.header["alg"].(string); alg != "RS256" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if typ, _ := parsed.header["typ"].(string); typ != "" && !strings.EqualFold(typ, "JWT") {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	kid, _ := parsed.header["kid"].(string)
	pub, err := a.keys.key(ctx, kid)
	if err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	digest := sha256.Sum256([]byte(parsed.signingInput))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], parsed.signature); err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	if err := a.validateClaims(parsed.claims); err != nil {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	identity, _ := parsed.claims[a.identityClaim].(string)
	if strings.TrimSpace(identity) == "" {
		return domain.Principal{}, domain.ErrUnauthorized
	}
	subject, _ := parsed.claims["sub"].(string)
	return domain.Principal{
		Subject:   subject,
		Identity:  domain.Identity(strings.TrimSpace(identity)),
		RawClaims: parsed.claims,
	}, nil
}

type jwt struct {
	header       map[string]any
	claims       map[string]any
	signingInput string
	signature    []byte
}

func parseJWT(token string) (jwt, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return jwt{}, errors.New("invalid token format")
	}
	var out jwt
	if err := decodeSegment(parts[0], &out.header); err != nil {
		return jwt{}, fmt.Errorf("header: %w", err)
	}
	if err := decodeSegment(parts[1], &out.claims); err != nil {
		return jwt{}, fmt.Errorf("claims: %w", err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return jwt{}, fmt.Errorf("signature: %w", err)
	}
	out.signature = sig
	out.signingInput = parts[0] + "." + parts[1]
	return out, nil
}

func decodeSegment(segment string, dst *map[string]any) error {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

func (a *Authenticator) validateClaims(claims map[string]any) error {
	now := a.now()
	if iss, _ := claims["iss"].(string); iss != a.issuer {
		return errors.New("issuer mismatch")
	}
	if a.audience != "" && !audienceMatches(claims["aud"], a.audience) {
		return errors.New("audience mismatch")
	}
	exp, ok := numericDate(claims["exp"])
	if !ok {
		return errors.New("exp claim required")
	}
	if now.After(exp.Add(a.clockSkew)) {
		return errors.New("token expired")
	}
	if nbf, ok := numericDate(claims["nbf"]); ok && now.Add(a.clockSkew).Before(nbf) {
		return errors.New("token not yet valid")
	}
	return nil
}

func numericDate(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return time.Unix(int64(v), 0), true
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}, false
		}
		return time.Unix(n, 0), true
	default:
		return time.Time{}, false
	}
}

func audienceMatches(raw any, expected string) bool {
	switch v := raw.(type) {
	case string:
		return v == expected
	case []any:
		for _, entry := range v {
			if s, ok := entry.(string); ok && s == expected {
				return true
			}
		}
	}
	return false
}

func discoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(issuer, "/")+discoveryPath, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}
	var doc struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return "", err
	}
	if doc.JWKSURI == "" {
		return "", errors.New("missing jwks_uri")
	}
	return doc.JWKSURI, nil
}
