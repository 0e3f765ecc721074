package idp

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// IntrospectionConfig configures an IntrospectionVerifier.
type IntrospectionConfig struct {
	// Endpoint is the RFC 7662 introspection URL.
	Endpoint string

	// ClientID and ClientSecret authenticate this client to the endpoint.
	ClientID     string
	ClientSecret string

	// ClientAuthMethod is "client_secret_basic" (default) or
	// "client_secret_post".
	ClientAuthMethod string

	// CacheTTL bounds how long an active result is reused. A result is
	// never reused past the token's own expiry. Default: 1 minute.
	// Negative disables caching.
	CacheTTL time.Duration

	// Claims maps introspection fields to identity fields.
	Claims ClaimNames

	// HTTPClient is the HTTP client to use. If nil, a client with a 10s
	// timeout is used.
	HTTPClient *http.Client
}

// IntrospectionVerifier validates opaque access tokens by asking the
// authorization server about them.
type IntrospectionVerifier struct {
	config     IntrospectionConfig
	httpClient *http.Client

	mu    sync.RWMutex
	cache map[string]introspectionEntry
}

type introspectionEntry struct {
	verified Verified
	until    time.Time
}

// NewIntrospectionVerifier creates an introspection verifier.
func NewIntrospectionVerifier(config IntrospectionConfig) (*IntrospectionVerifier, error) {
	if config.Endpoint == "" {
		return nil, ErrNoEndpoint
	}
	if config.ClientAuthMethod == "" {
		config.ClientAuthMethod = "client_secret_basic"
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = time.Minute
	}
	config.Claims = config.Claims.withDefaults()

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &IntrospectionVerifier{
		config:     config,
		httpClient: httpClient,
		cache:      make(map[string]introspectionEntry),
	}, nil
}

// Verify implements ClaimsVerifier.
func (v *IntrospectionVerifier) Verify(ctx context.Context, token string) (*Verified, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	key := hashToken(token)
	if cached, ok := v.cached(key); ok {
		return &cached, nil
	}

	claims, err := v.introspect(ctx, token)
	if err != nil {
		return nil, err
	}
	if active, _ := claims["active"].(bool); !active {
		return nil, ErrTokenInactive
	}

	verified, err := verifiedFromClaims(claims, v.config.Claims)
	if err != nil {
		return nil, err
	}
	v.store(key, *verified)
	return verified, nil
}

func (v *IntrospectionVerifier) introspect(ctx context.Context, token string) (map[string]any, error) {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", "access_token")
	if v.config.ClientAuthMethod == "client_secret_post" {
		form.Set("client_id", v.config.ClientID)
		form.Set("client_secret", v.config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.config.Endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntrospectionFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if v.config.ClientAuthMethod == "client_secret_basic" {
		req.SetBasicAuth(url.QueryEscape(v.config.ClientID), url.QueryEscape(v.config.ClientSecret))
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIntrospectionFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrIntrospectionFailed, resp.StatusCode)
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("%w: decode: %w", ErrIntrospectionFailed, err)
	}
	return claims, nil
}

func (v *IntrospectionVerifier) cached(key string) (Verified, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	entry, ok := v.cache[key]
	if !ok || !time.Now().Before(entry.until) {
		return Verified{}, false
	}
	return entry.verified, true
}

func (v *IntrospectionVerifier) store(key string, verified Verified) {
	if v.config.CacheTTL < 0 {
		return
	}
	now := time.Now()
	until := now.Add(v.config.CacheTTL)
	if !verified.ExpiresAt.IsZero() && verified.ExpiresAt.Before(until) {
		until = verified.ExpiresAt
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for k, entry := range v.cache {
		if !now.Before(entry.until) {
			delete(v.cache, k)
		}
	}
	v.cache[key] = introspectionEntry{verified: verified, until: until}
}

// hashToken keys the cache so raw tokens are never held as map keys.
func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

var _ ClaimsVerifier = (*IntrospectionVerifier)(nil)
