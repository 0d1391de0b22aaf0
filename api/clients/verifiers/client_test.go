package verifiers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsIdentityAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/v1/verifiers/v%2F1/root" && r.URL.Path != "/v1/verifiers/v/1/root" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Identity") != "0xowner" {
			t.Errorf("missing identity header")
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["root"] != "abcd" {
			t.Errorf("unexpected body %v %v", body, err)
		}
		_ = json.NewEncoder(w).Encode(SetRootResult{ID: "v/1", Root: "abcd", Version: 2})
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", WithIdentity(" 0xowner "))
	out, err := client.SetExpectedRoot(context.Background(), "v/1", "abcd")
	if err != nil {
		t.Fatalf("set root: %v", err)
	}
	if out.Version != 2 {
		t.Fatalf("unexpected result %+v", out)
	}
}

func TestClientSendsBearerTokenAndDecodesAuditTrail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("unexpected authorization %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Identity") != "" {
			t.Errorf("identity header should not be sent")
		}
		_, _ = w.Write([]byte(`{"id":"v1","chain_valid":true,"events":[{"seq":1,"event_type":"verifier_created"}]}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, WithBearerToken(" tok-1 "))
	trail, err := client.AuditTrail(context.Background(), "v1")
	if err != nil {
		t.Fatalf("audit trail: %v", err)
	}
	if !trail.ChainValid || len(trail.Events) != 1 || trail.Events[0].Seq != 1 {
		t.Fatalf("unexpected trail %+v", trail)
	}
}

func TestClientReturnsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"NOT_INITIALIZED","message":"expected root not set"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	_, err := client.CheckProof(context.Background(), "v1", "aa", Proof{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Code != "NOT_INITIALIZED" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient("").Get(context.Background(), "v1"); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
