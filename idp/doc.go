// Package idp implements session.IdentityProvider against OAuth 2.0 and
// OpenID Connect servers.
//
// OAuth2Provider performs the password and refresh grants and, when a
// revocation endpoint is configured, revokes tokens on sign-out. It derives
// the signed-in identity from token claims through a ClaimsVerifier:
//
//   - JWTVerifier checks self-contained JWT access tokens against a
//     KeyProvider (StaticKeyProvider or JWKSKeyProvider).
//   - IntrospectionVerifier asks the server about opaque access tokens
//     (RFC 7662).
//   - OIDCVerifier checks OpenID Connect ID tokens.
//
// A typical OpenID Connect setup verifies the ID token at sign-in and the
// access token on restart:
//
//	d, err := idp.DiscoverOIDC(ctx, issuer, idp.OIDCConfig{ClientID: id})
//	p, err := idp.NewOAuth2Provider(idp.OAuth2Config{
//		Endpoint:        d.Endpoint,
//		RevocationURL:   d.RevocationURL,
//		ClientID:        id,
//		IDTokenVerifier: d.Verifier,
//		Verifier:        idp.NewJWTVerifier(idp.JWTConfig{Issuer: issuer}, idp.NewJWKSKeyProvider(idp.JWKSConfig{URL: d.JWKSURL})),
//	})
package idp
