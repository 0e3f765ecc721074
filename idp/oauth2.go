package idp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/jonwraymond/apisession/session"
)

// OAuth2Config configures an OAuth2Provider.
type OAuth2Config struct {
	// Endpoint holds the token URL. AuthURL is not used.
	Endpoint oauth2.Endpoint

	// ClientID and ClientSecret identify this application.
	ClientID     string
	ClientSecret string

	// Scopes requested at sign-in.
	Scopes []string

	// RevocationURL is the RFC 7009 endpoint. Empty disables revocation.
	RevocationURL string

	// Verifier checks access tokens. It derives the identity at sign-in
	// when no IDTokenVerifier is set, and validates persisted sessions.
	Verifier ClaimsVerifier

	// IDTokenVerifier checks the id_token returned at sign-in. Optional.
	IDTokenVerifier ClaimsVerifier

	// HTTPClient is used for all calls to the authorization server.
	// If nil, a client with a 30s timeout is used.
	HTTPClient *http.Client
}

// OAuth2Provider implements session.IdentityProvider with the OAuth 2.0
// password and refresh grants.
type OAuth2Provider struct {
	oauth         oauth2.Config
	revocationURL string
	verifier      ClaimsVerifier
	idVerifier    ClaimsVerifier
	httpClient    *http.Client
}

// NewOAuth2Provider validates cfg and returns a provider.
func NewOAuth2Provider(cfg OAuth2Config) (*OAuth2Provider, error) {
	if cfg.Endpoint.TokenURL == "" {
		return nil, ErrNoTokenURL
	}
	if cfg.Verifier == nil {
		return nil, ErrNoVerifier
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &OAuth2Provider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     cfg.Endpoint,
			Scopes:       cfg.Scopes,
		},
		revocationURL: cfg.RevocationURL,
		verifier:      cfg.Verifier,
		idVerifier:    cfg.IDTokenVerifier,
		httpClient:    httpClient,
	}, nil
}

// withClient routes x/oauth2 traffic through the provider's HTTP client.
func (p *OAuth2Provider) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// SignIn implements session.IdentityProvider using the resource owner
// password grant. Credentials.Extra is not sent.
func (p *OAuth2Provider) SignIn(ctx context.Context, creds session.Credentials) (*session.Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return nil, ErrMissingCredentials
	}

	tok, err := p.oauth.PasswordCredentialsToken(p.withClient(ctx), creds.Username, creds.Password)
	if err != nil {
		return nil, tokenError(err)
	}

	verifier, raw := p.verifier, tok.AccessToken
	if idToken, ok := tok.Extra("id_token").(string); ok && idToken != "" && p.idVerifier != nil {
		verifier, raw = p.idVerifier, idToken
	}
	verified, err := verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("idp: sign-in token: %w", err)
	}

	var accessExpiry time.Time
	if raw == tok.AccessToken {
		accessExpiry = verified.ExpiresAt
	}
	return &session.Session{
		Identity: verified.Identity,
		Tokens:   tokensFrom(tok, accessExpiry),
	}, nil
}

// Refresh implements session.IdentityProvider.
func (p *OAuth2Provider) Refresh(ctx context.Context, refreshToken string) (*session.Tokens, error) {
	if refreshToken == "" {
		return nil, session.ErrNoRefreshToken
	}

	src := p.oauth.TokenSource(p.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(err)
	}
	tokens := tokensFrom(tok, time.Time{})
	return &tokens, nil
}

// SignOut implements session.IdentityProvider. It revokes the refresh token
// when there is one, the access token otherwise.
func (p *OAuth2Provider) SignOut(ctx context.Context, tokens session.Tokens) error {
	if p.revocationURL == "" {
		return nil
	}

	token, hint := tokens.RefreshToken, "refresh_token"
	if token == "" {
		token, hint = tokens.AccessToken, "access_token"
	}
	if token == "" {
		return nil
	}
	return p.revoke(ctx, token, hint)
}

func (p *OAuth2Provider) revoke(ctx context.Context, token, hint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", hint)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevocationFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(url.QueryEscape(p.oauth.ClientID), url.QueryEscape(p.oauth.ClientSecret))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRevocationFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRevocationFailed, resp.StatusCode)
	}
	return nil
}

// RehydratedSession implements session.IdentityProvider. The persisted
// access token must still verify and name the persisted identity; the
// refreshed identity claims replace the persisted ones.
func (p *OAuth2Provider) RehydratedSession(ctx context.Context, snap session.Snapshot) (*session.Session, error) {
	if !snap.IsAuthenticated || snap.Identity == nil || snap.Tokens == nil {
		return nil, nil
	}

	verified, err := p.verifier.Verify(ctx, snap.Tokens.AccessToken)
	if Rejected(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("idp: rehydrate: %w", err)
	}
	if verified.Identity.ID != snap.Identity.ID {
		return nil, nil
	}

	tokens := *snap.Tokens
	if tokens.ExpiresAt.IsZero() {
		tokens.ExpiresAt = verified.ExpiresAt
	}
	return &session.Session{Identity: verified.Identity, Tokens: tokens}, nil
}

// tokensFrom converts a token response. fallbackExpiry is used when the
// response has no expires_in.
func tokensFrom(tok *oauth2.Token, fallbackExpiry time.Time) session.Tokens {
	expires := tok.Expiry
	if expires.IsZero() {
		expires = fallbackExpiry
	}
	return session.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expires,
	}
}

// tokenError maps a token endpoint refusal to ErrInvalidGrant, which also
// wraps session.ErrRejected. Transport failures and 5xx answers are passed
// through wrapped.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil && re.Response.StatusCode < http.StatusInternalServerError {
		code := re.ErrorCode
		if code == "" {
			code = re.Response.Status
		}
		return fmt.Errorf("%w: %w: %s", ErrInvalidGrant, session.ErrRejected, code)
	}
	return fmt.Errorf("idp: token endpoint: %w", err)
}

var _ session.IdentityProvider = (*OAuth2Provider)(nil)
