package idp

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// JWKSConfig configures the JWKS key provider.
type JWKSConfig struct {
	// URL is the JWKS endpoint URL.
	URL string

	// CacheTTL is how long fetched keys are trusted before a refetch.
	// Default: 1 hour
	CacheTTL time.Duration

	// MinRefreshInterval bounds how often an unknown key ID can trigger a
	// refetch while the cache is still fresh.
	// Default: 1 minute
	MinRefreshInterval time.Duration

	// HTTPClient is the HTTP client to use for requests.
	// If nil, a default client with 30s timeout is used.
	HTTPClient *http.Client
}

// JWKSKeyProvider retrieves RSA and EC signing keys from a JWKS endpoint and
// caches them. When a refetch fails, keys from earlier successful fetches
// keep being served.
type JWKSKeyProvider struct {
	config JWKSConfig

	mu        sync.RWMutex
	keys      map[string]crypto.PublicKey
	fetchedAt time.Time
	fallback  map[string]crypto.PublicKey
	flight    singleflight.Group
}

// NewJWKSKeyProvider creates a new JWKS key provider.
func NewJWKSKeyProvider(config JWKSConfig) *JWKSKeyProvider {
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Hour
	}
	if config.MinRefreshInterval == 0 {
		config.MinRefreshInterval = time.Minute
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	return &JWKSKeyProvider{
		config:   config,
		keys:     make(map[string]crypto.PublicKey),
		fallback: make(map[string]crypto.PublicKey),
	}
}

// GetKey returns the key for the given key ID.
// If keyID is empty and there's exactly one key, that key is returned.
func (p *JWKSKeyProvider) GetKey(ctx context.Context, keyID string) (any, error) {
	p.mu.RLock()
	age := time.Since(p.fetchedAt)
	key := lookup(p.keys, keyID)
	p.mu.RUnlock()

	if key != nil && age < p.config.CacheTTL {
		return key, nil
	}
	if key == nil && age < p.config.MinRefreshInterval {
		return nil, ErrKeyNotFound
	}

	// Concurrent callers share one fetch, detached from the first caller's
	// cancellation.
	_, err, _ := p.flight.Do("refresh", func() (any, error) {
		return nil, p.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		p.mu.RLock()
		key := lookup(p.keys, keyID)
		if key == nil {
			key = lookup(p.fallback, keyID)
		}
		p.mu.RUnlock()

		if key != nil {
			return key, nil
		}
		return nil, err
	}

	p.mu.RLock()
	key = lookup(p.keys, keyID)
	p.mu.RUnlock()

	if key == nil {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// lookup finds a key by ID. An empty ID matches only a single-key set.
func lookup(keys map[string]crypto.PublicKey, keyID string) crypto.PublicKey {
	if keyID == "" {
		if len(keys) != 1 {
			return nil
		}
		for _, key := range keys {
			return key
		}
	}
	return keys[keyID]
}

// refresh fetches keys from the JWKS endpoint.
func (p *JWKSKeyProvider) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.URL, nil)
	if err != nil {
		return fmt.Errorf("idp: jwks request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.config.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("idp: fetch jwks: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("idp: fetch jwks: unexpected status %d", resp.StatusCode)
	}

	var set jwkSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("idp: decode jwks: %w", err)
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

	p.mu.Lock()
	p.keys = keys
	p.fetchedAt = time.Now()
	for kid, key := range keys {
		p.fallback[kid] = key
	}
	p.mu.Unlock()

	return nil
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

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

func (k jwk) publicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		n, err := decodeB64Int("n", k.N)
		if err != nil {
			return nil, err
		}
		e, err := decodeB64Int("e", k.E)
		if err != nil {
			return nil, err
		}
		return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
	case "EC":
		var curve elliptic.Curve
		switch k.Crv {
		case "P-256":
			curve = elliptic.P256()
		case "P-384":
			curve = elliptic.P384()
		default:
			return nil, fmt.Errorf("unsupported curve %q", k.Crv)
		}
		x, err := decodeB64Int("x", k.X)
		if err != nil {
			return nil, err
		}
		y, err := decodeB64Int("y", k.Y)
		if err != nil {
			return nil, err
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	default:
		return nil, fmt.Errorf("unsupported key type %q", k.Kty)
	}
}

func decodeB64Int(name, s string) (*big.Int, error) {
	if s == "" {
		return nil, fmt.Errorf("missing %s parameter", name)
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, err)
	}
	return new(big.Int).SetBytes(b), nil
}

var _ KeyProvider = (*JWKSKeyProvider)(nil)
