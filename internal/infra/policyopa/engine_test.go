package policyopa

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"merkleverifier/internal/domain"
)

func TestDefaultPolicy(t *testing.T) {
	authz, err := NewAuthorizer(context.Background(), []domain.Identity{"0xadmin", ""})
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	if authz.BundleHash() == "" {
		t.Fatal("expected bundle hash")
	}

	tests := []struct {
		name    string
		req     domain.AuthzRequest
		allowed bool
	}{
		{
			name:    "owner sets root",
			req:     domain.AuthzRequest{Action: domain.ActionSetExpectedRoot, VerifierID: "v", Caller: "0xowner", Owner: "0xowner"},
			allowed: true,
		},
		{
			name:    "owner reads audit",
			req:     domain.AuthzRequest{Action: domain.ActionReadAudit, VerifierID: "v", Caller: "0xowner", Owner: "0xowner"},
			allowed: true,
		},
		{
			name:    "owner unknown action",
			req:     domain.AuthzRequest{Action: "verifier:delete", VerifierID: "v", Caller: "0xowner", Owner: "0xowner"},
			allowed: false,
		},
		{
			name:    "admin sets root",
			req:     domain.AuthzRequest{Action: domain.ActionSetExpectedRoot, VerifierID: "v", Caller: "0xadmin", Owner: "0xowner"},
			allowed: true,
		},
		{
			name:    "stranger",
			req:     domain.AuthzRequest{Action: domain.ActionSetExpectedRoot, VerifierID: "v", Caller: "0xintruder", Owner: "0xowner"},
			allowed: false,
		},
		{
			name:    "empty caller and owner",
			req:     domain.AuthzRequest{Action: domain.ActionSetExpectedRoot, VerifierID: "v"},
			allowed: false,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := authz.Authorize(context.Background(), tt.req)
			if tt.allowed && err != nil {
				t.Fatalf("expected allow, got %v", err)
			}
			if !tt.allowed && !errors.Is(err, domain.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestBundlePathPolicy(t *testing.T) {
	dir := t.TempDir()
	policy := `package merkleverifier.authz

default allow = false

allow {
	input.caller == "0xoperator"
}
`
	if err := os.WriteFile(filepath.Join(dir, "authz.rego"), []byte(policy), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	authz, err := NewAuthorizerFromBundlePath(context.Background(), dir, nil)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}
	if err := authz.Authorize(context.Background(), domain.AuthzRequest{Caller: "0xoperator", Owner: "0xowner"}); err != nil {
		t.Fatalf("expected operator to be allowed: %v", err)
	}
	err = authz.Authorize(context.Background(), domain.AuthzRequest{Caller: "0xowner", Owner: "0xowner"})
	if !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestPolicyRejectsTimeBuiltin(t *testing.T) {
	rejectBuiltin(t, "time.now_ns() > 0")
}

func TestPolicyRejectsHttpSend(t *testing.T) {
	rejectBuiltin(t, "http.send({\"method\": \"get\", \"url\": \"https://example.com\"})")
}

func rejectBuiltin(t *testing.T, expr string) {
	t.Helper()
	dir := t.TempDir()
	content := `package merkleverifier.authz
allow {
  ` + expr + `
}`
	if err := os.WriteFile(filepath.Join(dir, "authz.rego"), []byte(content), 0o644); err != nil {
		t.Fatalf("write rego: %v", err)
	}
	if _, err := NewAuthorizerFromBundlePath(context.Background(), dir, nil); err == nil {
		t.Fatal("expected builtin to be rejected")
	}
}

func TestAllowedBuiltinsExcludeNetworkAndClock(t *testing.T) {
	names := AllowedBuiltins()
	for _, name := range names {
		if name == "http.send" || name == "time.now_ns" {
			t.Fatalf("unexpected builtin %s in allowlist", name)
		}
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("allowlist not sorted at %d: %v", i, names)
		}
	}
}
