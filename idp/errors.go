package idp

import "errors"

// Errors returned by this package.
var (
	// Token rejections. A verifier returning one of these has decided the
	// token is not acceptable; see Rejected.
	ErrTokenExpired   = errors.New("idp: token expired")
	ErrTokenMalformed = errors.New("idp: token malformed")
	ErrTokenInvalid   = errors.New("idp: token invalid")
	ErrTokenInactive  = errors.New("idp: token inactive")
	ErrMissingSubject = errors.New("idp: token has no subject")
	ErrKeyNotFound    = errors.New("idp: signing key not found")

	// Failures to decide.
	ErrIntrospectionFailed = errors.New("idp: introspection failed")
	ErrRevocationFailed    = errors.New("idp: revocation failed")

	// Sign-in and configuration errors.
	ErrInvalidGrant       = errors.New("idp: credentials rejected")
	ErrMissingCredentials = errors.New("idp: username and password are required")
	ErrNoTokenURL         = errors.New("idp: token endpoint is required")
	ErrNoVerifier         = errors.New("idp: claims verifier is required")
	ErrNoKeyProvider      = errors.New("idp: key provider is required")
	ErrNoEndpoint         = errors.New("idp: endpoint URL is required")
)

// Rejected reports whether err means a token was examined and refused, as
// opposed to the verifier being unable to reach a decision.
func Rejected(err error) bool {
	for _, target := range []error{
		ErrTokenExpired, ErrTokenMalformed, ErrTokenInvalid,
		ErrTokenInactive, ErrMissingSubject, ErrKeyNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
