package idp

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCConfig configures ID token verification.
type OIDCConfig struct {
	// ClientID is the expected audience of ID tokens.
	ClientID string

	// SkipClientIDCheck accepts tokens issued to any audience.
	SkipClientIDCheck bool

	// Claims maps ID token claims to identity fields.
	Claims ClaimNames

	// HTTPClient is used for discovery and key fetches. If nil,
	// http.DefaultClient is used.
	HTTPClient *http.Client

	// Now overrides the clock. Default: time.Now.
	Now func() time.Time
}

// OIDCVerifier validates OpenID Connect ID tokens.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
	claims   ClaimNames
}

// NewOIDCVerifier wraps an ID token verifier. Use DiscoverOIDC to build one
// from an issuer URL, or oidc.NewVerifier with a static key set.
func NewOIDCVerifier(v *oidc.IDTokenVerifier, names ClaimNames) *OIDCVerifier {
	return &OIDCVerifier{verifier: v, claims: names.withDefaults()}
}

// Verify implements ClaimsVerifier. Signature, issuer, audience and expiry
// are checked by go-oidc; every failure other than expiry is reported as
// ErrTokenInvalid.
func (v *OIDCVerifier) Verify(ctx context.Context, token string) (*Verified, error) {
	if token == "" {
		return nil, ErrTokenMalformed
	}

	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenMalformed, err)
	}
	verified, err := verifiedFromClaims(claims, v.claims)
	if err != nil {
		return nil, err
	}
	verified.ExpiresAt = idToken.Expiry
	return verified, nil
}

// Discovery is what an OpenID Connect issuer advertises.
type Discovery struct {
	Verifier      *OIDCVerifier
	Endpoint      oauth2.Endpoint
	JWKSURL       string
	RevocationURL string
	UserInfoURL   string
}

// DiscoverOIDC fetches the issuer's discovery document and builds an ID
// token verifier from it.
func DiscoverOIDC(ctx context.Context, issuer string, cfg OIDCConfig) (*Discovery, error) {
	if issuer == "" {
		return nil, ErrNoEndpoint
	}
	if cfg.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, cfg.HTTPClient)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("idp: discover %s: %w", issuer, err)
	}

	var extra struct {
		JWKSURL       string `json:"jwks_uri"`
		RevocationURL string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return nil, fmt.Errorf("idp: discovery document: %w", err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:          cfg.ClientID,
		SkipClientIDCheck: cfg.SkipClientIDCheck,
		Now:               cfg.Now,
	})

	return &Discovery{
		Verifier:      NewOIDCVerifier(verifier, cfg.Claims),
		Endpoint:      provider.Endpoint(),
		JWKSURL:       extra.JWKSURL,
		RevocationURL: extra.RevocationURL,
		UserInfoURL:   provider.UserInfoEndpoint(),
	}, nil
}

var _ ClaimsVerifier = (*OIDCVerifier)(nil)
