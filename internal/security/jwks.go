package security

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
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

// ErrUnknownKey is returned when no JWKS key matches the token's kid.
var ErrUnknownKey = errors.New("unknown signing key")

const (
	defaultJWKSTTL = 10 * time.Minute
	// minRefreshInterval bounds refetches triggered by unknown kids.
	minRefreshInterval = 30 * time.Second
)

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

// JWKS is a KeySource backed by a remote JSON Web Key Set, such as
// <SUPABASE_URL>/auth/v1/.well-known/jwks.json. Keys are cached by kid.
type JWKS struct {
	url    string
	client *http.Client
	ttl    time.Duration

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
}

// NewJWKS returns a JWKS source. client may be nil; ttl <= 0 uses 10 minutes.
func NewJWKS(url string, client *http.Client, ttl time.Duration) *JWKS {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if ttl <= 0 {
		ttl = defaultJWKSTTL
	}
	return &JWKS{url: url, client: client, ttl: ttl, keys: map[string]crypto.PublicKey{}}
}

// PublicKey implements KeySource. The set is refetched when stale or when kid is
// unknown (at most once per minRefreshInterval). An empty kid matches a single-key set.
func (j *JWKS) PublicKey(ctx context.Context, kid string) (crypto.PublicKey, error) {
	j.mu.RLock()
	key, ok := j.lookup(kid)
	stale := time.Since(j.fetchedAt) > j.ttl
	recent := time.Since(j.fetchedAt) < minRefreshInterval
	j.mu.RUnlock()
	if ok && !stale {
		return key, nil
	}
	if !ok && recent && !stale {
		return nil, ErrUnknownKey
	}
	if err := j.Refresh(ctx); err != nil {
		if ok {
			// serve the stale key rather than failing every request
			return key, nil
		}
		return nil, err
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	if key, ok := j.lookup(kid); ok {
		return key, nil
	}
	return nil, ErrUnknownKey
}

func (j *JWKS) lookup(kid string) (crypto.PublicKey, bool) {
	if kid == "" && len(j.keys) == 1 {
		for _, k := range j.keys {
			return k, true
		}
	}
	k, ok := j.keys[kid]
	return k, ok
}

// Refresh fetches the key set and replaces the cache.
func (j *JWKS) Refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.url, nil)
	if err != nil {
		return fmt.Errorf("jwks request: %w", err)
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("jwks fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch: status %d", resp.StatusCode)
	}
	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("jwks decode: %w", err)
	}
	keys := make(map[string]crypto.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			continue
		}
		keys[k.Kid] = pub
	}
	j.mu.Lock()
	j.keys = keys
	j.fetchedAt = time.Now()
	j.mu.Unlock()
	return nil
}

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := decodeB64Int(k.N)
		if err != nil {
			return nil, err
		}
		e, err := decodeB64Int(k.E)
		if err != nil {
			return nil, err
		}
		if !e.IsInt64() || e.Int64() <= 1 {
			return nil, ErrInvalidKey
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		if k.Crv != "P-256" {
			return nil, ErrInvalidKey
		}
		x, err := decodeB64Int(k.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeB64Int(k.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
	default:
		return nil, ErrInvalidKey
	}
}

func decodeB64Int(s string) (*big.Int, error) {
	if s == "" {
		return nil, ErrInvalidKey
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrInvalidKey
	}
	return new(big.Int).SetBytes(b), nil
}
