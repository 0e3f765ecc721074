package idp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures a JWTVerifier.
type JWTConfig struct {
	// Issuer is the expected iss claim. Empty skips the check.
	Issuer string

	// Audience is the expected aud claim. Empty skips the check.
	Audience string

	// Methods lists acceptable signing algorithms.
	// Default: RS256, ES256, HS256.
	Methods []string

	// Leeway tolerates clock skew on exp, nbf and iat.
	Leeway time.Duration

	// Claims maps token claims to identity fields.
	Claims ClaimNames

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// KeyProvider retrieves signing keys for JWT validation.
type KeyProvider interface {
	// GetKey returns the key for the given key ID. An empty keyID asks for
	// the provider's only key.
	GetKey(ctx context.Context, keyID string) (any, error)
}

// StaticKeyProvider serves one fixed key, typically an HMAC secret or a
// public key loaded at startup.
type StaticKeyProvider struct {
	key any
}

// NewStaticKeyProvider creates a static key provider. A []byte key is used
// for HMAC methods; *rsa.PublicKey and *ecdsa.PublicKey for the others.
func NewStaticKeyProvider(key any) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// GetKey returns the static key.
func (p *StaticKeyProvider) GetKey(_ context.Context, _ string) (any, error) {
	if p.key == nil {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// JWTVerifier validates self-contained JWT access tokens.
type JWTVerifier struct {
	keys   KeyProvider
	claims ClaimNames
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier. It panics if keys is nil.
func NewJWTVerifier(cfg JWTConfig, keys KeyProvider) *JWTVerifier {
	if keys == nil {
		panic(ErrNoKeyProvider)
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = []string{"RS256", "ES256", "HS256"}
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods(cfg.Methods),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	if cfg.Now != nil {
		opts = append(opts, jwt.WithTimeFunc(cfg.Now))
	}

	return &JWTVerifier{
		keys:   keys,
		claims: cfg.Claims.withDefaults(),
		parser: jwt.NewParser(opts...),
	}
}

// Verify implements ClaimsVerifier.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (*Verified, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.keys.GetKey(ctx, kid)
	})
	if err != nil {
		return nil, classifyJWTError(err)
	}
	return verifiedFromClaims(claims, v.claims)
}

// classifyJWTError separates refusals from failures to obtain a key.
func classifyJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	case errors.Is(err, ErrKeyNotFound):
		return fmt.Errorf("%w: %w", ErrKeyNotFound, err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("idp: signing key: %w", err)
	default:
		return fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
}

var (
	_ ClaimsVerifier = (*JWTVerifier)(nil)
	_ KeyProvider    = (*StaticKeyProvider)(nil)
)
