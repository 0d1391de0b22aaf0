package oidc

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

const (
	jwksTTL           = 5 * time.Minute
	jwksMaxStale      = 15 * time.Minute
	jwksFetchTimeout  = 5 * time.Second
	jwksFetchAttempts = 3
	jwksBackoffBase   = 200 * time.Millisecond
	jwksBackoffMax    = 2 * time.Second
)

var errKeyNotFound = errors.New("jwks key not found")

// keySet is an RSA signing key cache for one JWKS endpoint. Keys past
// their TTL are still served until maxStale while a background refresh
// runs; a kid miss forces a synchronous refresh shared by all waiters.
type keySet struct {
	url    string
	client *http.Client
	now    func() time.Time

	ttl      time.Duration
	maxStale time.Duration

	mu         sync.RWMutex
	keys       map[string]*rsa.PublicKey
	freshUntil time.Time
	staleUntil time.Time

	flightMu sync.Mutex
	flight   *refreshCall
}

type refreshCall struct {
	done chan struct{}
	err  error
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func newKeySet(url string, client *http.Client) *keySet {
	return &keySet{
		url:      url,
		client:   client,
		now:      time.Now,
		ttl:      jwksTTL,
		maxStale: jwksMaxStale,
		keys:     map[string]*rsa.PublicKey{},
	}
}

func (k *keySet) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return nil, errors.New("kid is required")
	}
	key, fresh := k.cached(kid, k.now())
	if key != nil {
		if !fresh {
			k.refreshInBackground()
		}
		return key, nil
	}
	if err := k.refresh(ctx); err != nil {
		return nil, err
	}
	if key, _ := k.cached(kid, k.now()); key != nil {
		return key, nil
	}
	return nil, errKeyNotFound
}

// cached returns the key for kid while it is usable, and whether it is
// still inside its TTL.
func (k *keySet) cached(kid string, now time.Time) (*rsa.PublicKey, bool) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	key, ok := k.keys[kid]
	switch {
	case !ok:
		return nil, false
	case now.Before(k.freshUntil):
		return key, true
	case now.Before(k.staleUntil):
		return key, false
	default:
		return nil, false
	}
}

func (k *keySet) refreshInBackground() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), jwksFetchTimeout)
		defer cancel()
		_ = k.refresh(ctx)
	}()
}

func (k *keySet) refresh(ctx context.Context) error {
	k.flightMu.Lock()
	if call := k.flight; call != nil {
		k.flightMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	call := &refreshCall{done: make(chan struct{})}
	k.flight = call
	k.flightMu.Unlock()

	call.err = k.load(ctx)

	k.flightMu.Lock()
	k.flight = nil
	k.flightMu.Unlock()
	close(call.done)
	return call.err
}

func (k *keySet) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, jwksFetchTimeout)
	defer cancel()

	var (
		keys map[string]*rsa.PublicKey
		err  error
	)
	backoff := jwksBackoffBase
	for attempt := 0; attempt < jwksFetchAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff = min(backoff*2, jwksBackoffMax)
		}
		if keys, err = k.fetch(ctx); err == nil {
			break
		}
	}
	if err != nil {
		return err
	}

	now := k.now()
	k.mu.Lock()
	k.keys = keys
	k.freshUntil = now.Add(k.ttl)
	k.staleUntil = k.freshUntil.Add(k.maxStale)
	k.mu.Unlock()
	return nil
}

func (k *keySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := k.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}
	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, entry := range set.Keys {
		if entry.Kty != "RSA" || entry.Kid == "" {
			continue
		}
		if entry.Use != "" && entry.Use != "sig" {
			continue
		}
		if entry.Alg != "" && entry.Alg != "RS256" {
			continue
		}
		pub, err := rsaPublicKey(entry)
		if err != nil {
			continue
		}
		keys[entry.Kid] = pub
	}
	if len(keys) == 0 {
		return nil, errors.New("jwks contains no usable signing keys")
	}
	return keys, nil
}

func rsaPublicKey(entry jwk) (*rsa.PublicKey, error) {
	if entry.N == "" || entry.E == "" {
		return nil, errors.New("missing rsa params")
	}
	n, err := base64.RawURLEncoding.DecodeString(entry.N)
	if err != nil {
		return nil, err
	}
	e, err := base64.RawURLEncoding.DecodeString(entry.E)
	if err != nil {
		return nil, err
	}
	exp := new(big.Int).SetBytes(e)
	if !exp.IsInt64() || exp.Int64() <= 1 || exp.Int64() > int64(^uint32(0)>>1) {
		return nil, errors.New("invalid rsa exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}
