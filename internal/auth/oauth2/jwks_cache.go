package oauth2

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"
)

// JWKSCache fetches and caches a JSON Web Key Set, re-fetching once its TTL
// has elapsed. Grounded, in shape, on the reference implementation's TLS
// certificate cache: a double-checked-locking RWMutex, with a read-fast-path
// on a non-expired cache hit and a write-lock upgrade (re-checking freshness
// after acquiring it, since another goroutine may have refreshed while this
// one waited) before doing the actual network fetch.
type JWKSCache struct {
	url string
	ttl time.Duration
	hc  *http.Client

	mu        sync.RWMutex
	keys      map[string]any // kid -> parsed public key
	fetchedAt time.Time
}

// NewJWKSCache creates a cache that fetches from url, treating a fetched
// set as fresh for ttl.
func NewJWKSCache(url string, ttl time.Duration, hc *http.Client) *JWKSCache {
	if hc == nil {
		hc = http.DefaultClient
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &JWKSCache{url: url, ttl: ttl, hc: hc, keys: make(map[string]any)}
}

type jwksDoc struct {
	Keys []json.RawMessage `json:"keys"`
}

// GetKey returns the public key for kid, refreshing the set if it is
// stale. Returns ErrUnknownKeyID if kid is still absent after that
// refresh; the caller (the oauth2 strategy) is responsible for the
// unknown-kid forced-retry this leaves room for, via ForceRefresh.
func (c *JWKSCache) GetKey(ctx context.Context, kid string) (any, error) {
	c.mu.RLock()
	fresh := time.Since(c.fetchedAt) < c.ttl
	key, ok := c.keys[kid]
	c.mu.RUnlock()
	if ok && fresh {
		return key, nil
	}

	if err := c.refresh(ctx, false); err != nil {
		return nil, err
	}

	key, ok = c.lookup(kid)
	if !ok {
		return nil, fmt.Errorf("%w: unknown key id %q", ErrUnknownKeyID, kid)
	}
	return key, nil
}

// ForceRefresh re-fetches the JWKS unconditionally, ignoring TTL
// freshness. Used once, by the strategy, when a token's kid was not found
// in an otherwise-fresh cache.
func (c *JWKSCache) ForceRefresh(ctx context.Context) error {
	return c.refresh(ctx, true)
}

func (c *JWKSCache) lookup(kid string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	key, ok := c.keys[kid]
	return key, ok
}

func (c *JWKSCache) refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check: another goroutine may have refreshed while we were
	// waiting for the write lock.
	if !force && time.Since(c.fetchedAt) < c.ttl && len(c.keys) > 0 {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: building jwks request: %v", ErrJWKSFetch, err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: fetching jwks: %v", ErrJWKSFetch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: jwks endpoint returned status %d", ErrJWKSFetch, resp.StatusCode)
	}

	var doc jwksDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("%w: decoding jwks: %v", ErrJWKSFetch, err)
	}

	keys := make(map[string]any, len(doc.Keys))
	for _, raw := range doc.Keys {
		var jwk struct {
			Kid string `json:"kid"`
			Kty string `json:"kty"`
			N   string `json:"n"`
			E   string `json:"e"`
		}
		if err := json.Unmarshal(raw, &jwk); err != nil || jwk.Kid == "" || jwk.Kty != "RSA" {
			continue
		}
		key, err := rsaPublicKeyFromJWK(jwk.N, jwk.E)
		if err != nil {
			continue
		}
		keys[jwk.Kid] = key
	}

	c.keys = keys
	c.fetchedAt = time.Now()
	return nil
}

// rsaPublicKeyFromJWK reconstructs an RSA public key from its base64url
// modulus (n) and exponent (e), the representation a JWKS endpoint serves.
func rsaPublicKeyFromJWK(n, e string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(n)
	if err != nil {
		return nil, fmt.Errorf("decoding modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(e)
	if err != nil {
		return nil, fmt.Errorf("decoding exponent: %w", err)
	}

	eInt := 0
	for _, b := range eBytes {
		eInt = eInt<<8 | int(b)
	}
	if eInt == 0 {
		return nil, fmt.Errorf("zero exponent")
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: eInt,
	}, nil
}
