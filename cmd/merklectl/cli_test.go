package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

const (
	leafA   = "ca978112ca1bbdcafac231b39a23dc4da786eff8147c4e72b9807785afee48bb"
	leafB   = "3e23e8160039594a33894f6564e1b1348bbd7a0088d42c4acb73eeaed59c009d"
	rootAB  = "e5a01fee14e0ed5c48714f22180f25ad8365b53f9779f79dc4a3d7e93963f94a"
	zeroHex = "0000000000000000000000000000000000000000000000000000000000000000"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	prevOut, prevErr := stdout, stderr
	stdout, stderr = out, errOut
	t.Cleanup(func() {
		stdout, stderr = prevOut, prevErr
	})
	return out, errOut
}

func TestRunUsage(t *testing.T) {
	_, errOut := captureOutput(t)
	if code := run([]string{"merklectl"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "merklectl verify") {
		t.Fatalf("expected usage, got %q", errOut.String())
	}
}

func TestVerifyValidProof(t *testing.T) {
	out, _ := captureOutput(t)
	code := run([]string{"merklectl", "verify", "--leaf", leafA, "--root", rootAB, "--sibling", leafB, "--direction", "right"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "valid=true computed_root="+rootAB) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestVerifyWrongRootExitsTwo(t *testing.T) {
	out, _ := captureOutput(t)
	code := run([]string{"merklectl", "verify", "--leaf", leafA, "--root", zeroHex, "--sibling", leafB, "--direction", "right"})
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(out.String(), "valid=false") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestVerifyMismatchedProof(t *testing.T) {
	_, errOut := captureOutput(t)
	code := run([]string{"merklectl", "verify", "--leaf", leafA, "--root", rootAB, "--sibling", leafB})
	if code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "proof:") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestTreeRootAndProof(t *testing.T) {
	out, _ := captureOutput(t)
	code := run([]string{"merklectl", "tree", "--index", "1", leafA, leafB})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	want := "root=" + rootAB + "\nstep=0 sibling=" + leafA + " direction=left\n"
	if out.String() != want {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestVerifierCheckAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/verifiers/v1/check" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"code":"NOT_FOUND","message":"not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"id":"v1","valid":true}`))
	}))
	defer srv.Close()

	out, _ := captureOutput(t)
	code := run([]string{"merklectl", "verifier", "check", "--url", srv.URL, "--id", "v1", "--leaf", leafA, "--sibling", leafB, "--direction", "right"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if out.String() != "valid=true\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	_, errOut := captureOutput(t)
	if code := run([]string{"merklectl", "verifier", "show", "--url", srv.URL, "--id", "missing"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "NOT_FOUND") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestVerifierCheckSendsCanonicalProofAndToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"code":"UNAUTHORIZED","message":"invalid bearer token"}`))
			return
		}
		var body struct {
			Siblings   []string `json:"siblings"`
			Directions []string `json:"directions"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if len(body.Siblings) != 1 || body.Siblings[0] != leafB || len(body.Directions) != 1 || body.Directions[0] != "right" {
			t.Errorf("unexpected proof %+v", body)
		}
		_, _ = w.Write([]byte(`{"id":"v1","valid":true}`))
	}))
	defer srv.Close()

	captureOutput(t)
	args := []string{"merklectl", "verifier", "check", "--url", srv.URL, "--id", "v1", "--token", "tok-123",
		"--leaf", leafA, "--sibling", "0x" + strings.ToUpper(leafB), "--direction", "R"}
	if code := run(args); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	_, errOut := captureOutput(t)
	bad := []string{"merklectl", "verifier", "check", "--url", srv.URL, "--id", "v1", "--leaf", leafA, "--sibling", leafB}
	if code := run(bad); code != 1 {
		t.Fatalf("expected exit 1 for unpaired sibling, got %d", code)
	}
	if !strings.Contains(errOut.String(), "proof") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestVerifierAuditReportsBrokenChain(t *testing.T) {
	var valid atomic.Bool
	valid.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "v1", "chain_valid": valid.Load(), "events": []any{}})
	}))
	defer srv.Close()

	args := []string{"merklectl", "verifier", "audit", "--url", srv.URL, "--id", "v1", "--admin-key", "k"}
	captureOutput(t)
	if code := run(args); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}

	valid.Store(false)
	_, errOut := captureOutput(t)
	if code := run(args); code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(errOut.String(), "audit chain") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}

func TestVerifierCreateRequiresIdentity(t *testing.T) {
	t.Setenv("MERKLE_IDENTITY", "")
	t.Setenv("MERKLE_TOKEN", "")
	_, errOut := captureOutput(t)
	if code := run([]string{"merklectl", "verifier", "create"}); code != 1 {
		t.Fatalf("expected exit 1, got %d", code)
	}
	if !strings.Contains(errOut.String(), "--token") {
		t.Fatalf("unexpected stderr %q", errOut.String())
	}
}
