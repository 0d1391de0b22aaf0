package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePebble   = "pebble"
	StorePostgres = "postgres"

	AuthModeOwner = "owner"
	AuthModeOPA   = "opa"

	AuthnModeOIDC = "oidc"
	AuthnModeNone = "none"
)

type Config struct {
	HTTPAddr    string
	PostgresDSN string
	PebblePath  string
	LogLevel    string
	LogFormat   string

	HashAlgorithm string

	// AuthnMode selects how callers prove their identity: oidc bearer
	// tokens, or none, which trusts the X-Identity header.
	AuthnMode         string
	OIDCIssuerURL     string
	OIDCAudience      string
	OIDCJWKSURL       string
	OIDCClockSkewSecs int
	OIDCIdentityClaim string

	AuthMode         string
	PolicyBundlePath string
	AdminAPIKey      string
	AdminIdentities  []string

	RateLimitRequests       int
	RateLimitWindowSeconds  int
	RateLimitIncludeSubject bool
	RateLimitFailClosed     bool
	RateLimitMaxKeys        int
	RateLimitSubjectMaxLen  int
	RateLimitSubjectHash    bool

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	ShutdownTimeoutSeconds int
}

func FromEnv() Config {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	return Config{
		HTTPAddr:                addr,
		PostgresDSN:             os.Getenv("POSTGRES_DSN"),
		PebblePath:              os.Getenv("PEBBLE_PATH"),
		LogLevel:                envDefault("LOG_LEVEL", "info"),
		LogFormat:               envDefault("LOG_FORMAT", "json"),
		HashAlgorithm:           strings.ToLower(envDefault("HASH_ALGORITHM", "sha256")),
		AuthnMode:               strings.ToLower(envDefault("AUTHN_MODE", AuthnModeOIDC)),
		OIDCIssuerURL:           os.Getenv("OIDC_ISSUER_URL"),
		OIDCAudience:            os.Getenv("OIDC_AUDIENCE"),
		OIDCJWKSURL:             os.Getenv("OIDC_JWKS_URL"),
		OIDCClockSkewSecs:       envIntDefault("OIDC_CLOCK_SKEW_SECONDS", 60),
		OIDCIdentityClaim:       envDefault("OIDC_IDENTITY_CLAIM", "sub"),
		AuthMode:                strings.ToLower(envDefault("AUTH_MODE", AuthModeOwner)),
		PolicyBundlePath:        os.Getenv("POLICY_BUNDLE_PATH"),
		AdminAPIKey:             os.Getenv("ADMIN_API_KEY"),
		AdminIdentities:         envList("ADMIN_IDENTITIES"),
		RateLimitRequests:       envIntDefault("RATE_LIMIT_REQUESTS", 0),
		RateLimitWindowSeconds:  envIntDefault("RATE_LIMIT_WINDOW_SECONDS", 60),
		RateLimitIncludeSubject: envBoolDefault("RATE_LIMIT_INCLUDE_SUBJECT", false),
		RateLimitFailClosed:     envBoolDefault("RATE_LIMIT_FAIL_CLOSED", false),
		RateLimitMaxKeys:        envIntDefault("RATE_LIMIT_MAX_KEYS", 10000),
		RateLimitSubjectMaxLen:  envIntDefault("RATE_LIMIT_SUBJECT_MAX_LEN", 128),
		RateLimitSubjectHash:    envBoolDefault("RATE_LIMIT_SUBJECT_HASH", false),
		RedisAddr:               os.Getenv("REDIS_ADDR"),
		RedisPassword:           os.Getenv("REDIS_PASSWORD"),
		RedisDB:                 envIntDefault("REDIS_DB", 0),
		ShutdownTimeoutSeconds:  envIntDefault("SHUTDOWN_TIMEOUT_SECONDS", 10),
	}
}

// StoreBackend picks the verifier store: postgres wins over pebble, and
// memory is used when neither is configured.
func (c Config) StoreBackend() string {
	switch {
	case c.PostgresDSN != "":
		return StorePostgres
	case c.PebblePath != "":
		return StorePebble
	default:
		return StoreMemory
	}
}

func (c Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowSeconds) * time.Second
}

func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

func envDefault(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "Yes":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "No":
		return false
	default:
		return def
	}
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
