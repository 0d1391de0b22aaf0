package oidc

import (
	"context"
	"crypto/rsa"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeySet_KidMissRefreshes(t *testing.T) {
	pub := &signingKey(t).PublicKey
	first := buildJWKS(t, pub, "kid-1")
	second := buildJWKS(t, pub, "kid-2")
	var calls int32
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return jsonResponse(http.StatusOK, first), nil
			}
			return jsonResponse(http.StatusOK, second), nil
		}),
	}
	keys := newKeySet(testJWKSURL, client)

	if _, err := keys.key(context.Background(), "kid-1"); err != nil {
		t.Fatalf("get kid-1: %v", err)
	}
	if _, err := keys.key(context.Background(), "kid-2"); err != nil {
		t.Fatalf("get kid-2: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("expected refresh on kid miss, got %d fetches", got)
	}
}

func TestKeySet_StaleKeysUsedUntilMaxStale(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return nil, errors.New("fetch failed")
		}),
	}
	keys := newKeySet(testJWKSURL, client)
	var mu sync.Mutex
	now := time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC)
	keys.now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	keys.keys = map[string]*rsa.PublicKey{"kid-1": &signingKey(t).PublicKey}
	keys.freshUntil = now.Add(-time.Minute)
	keys.staleUntil = now.Add(10 * time.Minute)

	if _, err := keys.key(context.Background(), "kid-1"); err != nil {
		t.Fatalf("expected stale key to be served: %v", err)
	}

	mu.Lock()
	now = now.Add(20 * time.Minute)
	mu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := keys.key(ctx, "kid-1"); err == nil {
		t.Fatal("expected error after max stale window")
	}
}

func TestKeySet_RefreshSingleflight(t *testing.T) {
	jwks := buildJWKS(t, &signingKey(t).PublicKey, "kid-1")
	var calls int32
	release := make(chan struct{})
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			atomic.AddInt32(&calls, 1)
			<-release
			return jsonResponse(http.StatusOK, jwks), nil
		}),
	}
	keys := newKeySet(testJWKSURL, client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := keys.key(ctx, "kid-1"); err != nil {
				t.Errorf("get key: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected single fetch, got %d", got)
	}
}

func TestKeySet_SkipsEncryptionKeys(t *testing.T) {
	client := &http.Client{
		Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusOK, `{"keys":[{"kty":"RSA","kid":"enc","use":"enc","n":"AQAB","e":"AQAB"}]}`), nil
		}),
	}
	keys := newKeySet(testJWKSURL, client)
	if _, err := keys.key(context.Background(), "enc"); err == nil {
		t.Fatal("expected encryption-only key to be ignored")
	}
}
