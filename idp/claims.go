package idp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jonwraymond/apisession/session"
)

// ClaimsVerifier checks a token and maps its claims to an identity.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Errors: a token that was examined and refused yields an error for
//     which Rejected is true. Any other error means no decision was made.
type ClaimsVerifier interface {
	Verify(ctx context.Context, token string) (*Verified, error)
}

// Verified is the outcome of a successful verification. ExpiresAt is zero
// when the token carries no expiry.
type Verified struct {
	Identity  session.Identity
	ExpiresAt time.Time
}

// ClaimNames selects which claims populate an Identity.
type ClaimNames struct {
	// ID is the subject claim. Default: "sub".
	ID string

	// Email default: "email".
	Email string

	// Name default: "name".
	Name string

	// Role may be a string or an array of strings; the first entry wins.
	// Default: "role".
	Role string
}

func (n ClaimNames) withDefaults() ClaimNames {
	if n.ID == "" {
		n.ID = "sub"
	}
	if n.Email == "" {
		n.Email = "email"
	}
	if n.Name == "" {
		n.Name = "name"
	}
	if n.Role == "" {
		n.Role = "role"
	}
	return n
}

// verifiedFromClaims builds a Verified from decoded claims.
func verifiedFromClaims(claims map[string]any, names ClaimNames) (*Verified, error) {
	id := stringClaim(claims, names.ID)
	if id == "" {
		return nil, ErrMissingSubject
	}
	return &Verified{
		Identity: session.Identity{
			ID:          id,
			Email:       stringClaim(claims, names.Email),
			DisplayName: stringClaim(claims, names.Name),
			Role:        stringClaim(claims, names.Role),
		},
		ExpiresAt: timeClaim(claims, "exp"),
	}, nil
}

func stringClaim(claims map[string]any, name string) string {
	switch v := claims[name].(type) {
	case string:
		return v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				return s
			}
		}
	case []string:
		if len(v) > 0 {
			return v[0]
		}
	}
	return ""
}

func timeClaim(claims map[string]any, name string) time.Time {
	var secs int64
	switch v := claims[name].(type) {
	case float64:
		secs = int64(v)
	case int64:
		secs = v
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return time.Time{}
		}
		secs = n
	}
	if secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
