package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "POSTGRES_DSN", "PEBBLE_PATH", "LOG_LEVEL", "LOG_FORMAT",
		"HASH_ALGORITHM", "AUTH_MODE", "ADMIN_IDENTITIES", "RATE_LIMIT_REQUESTS",
		"RATE_LIMIT_WINDOW_SECONDS", "AUTHN_MODE", "OIDC_CLOCK_SKEW_SECONDS",
		"OIDC_IDENTITY_CLAIM",
	} {
		t.Setenv(key, "")
	}
	cfg := FromEnv()
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("unexpected addr %q", cfg.HTTPAddr)
	}
	if cfg.HashAlgorithm != "sha256" || cfg.AuthMode != AuthModeOwner || cfg.LogFormat != "json" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.AuthnMode != AuthnModeOIDC || cfg.OIDCIdentityClaim != "sub" || cfg.OIDCClockSkewSecs != 60 {
		t.Fatalf("authentication must default to oidc, got %q %q %d", cfg.AuthnMode, cfg.OIDCIdentityClaim, cfg.OIDCClockSkewSecs)
	}
	if cfg.StoreBackend() != StoreMemory {
		t.Fatalf("expected memory backend, got %s", cfg.StoreBackend())
	}
	if cfg.RateLimitRequests != 0 || cfg.RateLimitWindow() != time.Minute {
		t.Fatalf("unexpected rate limit defaults %d/%s", cfg.RateLimitRequests, cfg.RateLimitWindow())
	}
	if len(cfg.AdminIdentities) != 0 {
		t.Fatalf("expected no admin identities, got %v", cfg.AdminIdentities)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("HASH_ALGORITHM", "BLAKE3")
	t.Setenv("AUTH_MODE", "OPA")
	t.Setenv("PEBBLE_PATH", "/var/lib/verifierd")
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("ADMIN_IDENTITIES", " 0xaaa, ,0xbbb ")
	t.Setenv("RATE_LIMIT_REQUESTS", "not-a-number")
	t.Setenv("RATE_LIMIT_FAIL_CLOSED", "yes")

	cfg := FromEnv()
	if cfg.HashAlgorithm != "blake3" || cfg.AuthMode != AuthModeOPA {
		t.Fatalf("expected lower-cased values, got %q %q", cfg.HashAlgorithm, cfg.AuthMode)
	}
	if cfg.StoreBackend() != StorePebble {
		t.Fatalf("expected pebble backend, got %s", cfg.StoreBackend())
	}
	if len(cfg.AdminIdentities) != 2 || cfg.AdminIdentities[1] != "0xbbb" {
		t.Fatalf("unexpected admin identities %v", cfg.AdminIdentities)
	}
	if cfg.RateLimitRequests != 0 {
		t.Fatalf("invalid int must fall back to default, got %d", cfg.RateLimitRequests)
	}
	if !cfg.RateLimitFailClosed {
		t.Fatal("expected fail closed")
	}

	t.Setenv("POSTGRES_DSN", "postgres://localhost/verifier")
	if FromEnv().StoreBackend() != StorePostgres {
		t.Fatal("postgres must take precedence over pebble")
	}
}
