package pebblestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"merkleverifier/internal/domain"
	"merkleverifier/internal/usecase"
)

var testRoot = domain.MustParseDigestHex("e5a01fee14e0ed5c48714f22180f25ad8365b53f9779f79dc4a3d7e93963f94a")

func openTestStore(t *testing.T, dir string) *Store {
	t.Helper()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	return store
}

func TestStoreSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	now := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)

	store := openTestStore(t, dir)
	if err := store.Create(ctx, domain.VerifierRecord{ID: "verifier-1", Owner: "0xowner", HashAlg: "sha256", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.UpdateRoot(ctx, "verifier-1", testRoot, 1, now.Add(time.Minute)); err != nil {
		t.Fatalf("update root: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	store = openTestStore(t, dir)
	defer store.Close()
	got, err := store.Get(ctx, "verifier-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.ExpectedRoot.Equal(testRoot) || got.Version != 1 || got.Owner != "0xowner" {
		t.Fatalf("unexpected record after reopen %+v", got)
	}
	if !got.UpdatedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected updated_at %s", got.UpdatedAt)
	}
}

func TestStoreVersionChecks(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, t.TempDir())
	defer store.Close()

	record := domain.VerifierRecord{ID: "verifier-1", Owner: "0xowner"}
	if err := store.Create(ctx, record); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, record); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate, got %v", err)
	}
	if err := store.UpdateRoot(ctx, "verifier-1", testRoot, 2, time.Now()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict for skipped version, got %v", err)
	}
	if err := store.UpdateRoot(ctx, "missing", testRoot, 1, time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := store.Get(ctx, "verifier-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Armed() {
		t.Fatal("failed updates must not arm the verifier")
	}
}

func TestStoreAuditChainOrdering(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	emitter := usecase.NewAuditEmitter(store, nil)

	// More than nine events so lexical key order is exercised past one digit.
	for i := int64(1); i <= 12; i++ {
		if err := emitter.EmitRootSet(ctx, "verifier-1", "0xowner", testRoot, i, domain.AuditResultSuccess, ""); err != nil {
			t.Fatalf("emit %d: %v", i, err)
		}
	}
	if err := emitter.EmitVerifierCreated(ctx, "verifier-10", "0xowner", "sha256"); err != nil {
		t.Fatalf("emit: %v", err)
	}

	events, err := store.ListByVerifier(ctx, "verifier-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 12 {
		t.Fatalf("expected 12 events for verifier-1, got %d", len(events))
	}
	for i, event := range events {
		if event.Seq != int64(i+1) {
			t.Fatalf("event %d has seq %d", i, event.Seq)
		}
	}
	requireValidChain(t, ctx, store, "verifier-1")
	requireValidChain(t, ctx, store, "verifier-10")
}

func TestStoreAuditIsolatesSlashIDs(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t, t.TempDir())
	defer store.Close()
	emitter := usecase.NewAuditEmitter(store, nil)

	for _, id := range []string{"v", "v/x", "v/x/1"} {
		if err := emitter.EmitVerifierCreated(ctx, id, "0xowner", "sha256"); err != nil {
			t.Fatalf("emit %s: %v", id, err)
		}
	}
	if err := emitter.EmitRootSet(ctx, "v/x", "0xowner", testRoot, 1, domain.AuditResultSuccess, ""); err != nil {
		t.Fatalf("emit root set: %v", err)
	}

	for id, want := range map[string]int{"v": 1, "v/x": 2, "v/x/1": 1} {
		events, err := store.ListByVerifier(ctx, id)
		if err != nil {
			t.Fatalf("list %s: %v", id, err)
		}
		if len(events) != want {
			t.Fatalf("verifier %q: expected %d events, got %d", id, want, len(events))
		}
		requireValidChain(t, ctx, store, id)
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func requireValidChain(t *testing.T, ctx context.Context, repo usecase.AuditEventRepository, verifierID string) {
	t.Helper()
	events, err := repo.ListByVerifier(ctx, verifierID)
	if err != nil {
		t.Fatalf("list audit %s: %v", verifierID, err)
	}
	if err := usecase.VerifyAuditEvents(verifierID, events); err != nil {
		t.Fatalf("verify chain %s: %v", verifierID, err)
	}
}
