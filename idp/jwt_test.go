package idp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTVerifier_Verify(t *testing.T) {
	v := NewJWTVerifier(JWTConfig{Issuer: testIssuer, Audience: "api"}, NewStaticKeyProvider(hmacSecret))

	tests := []struct {
		name     string
		claims   func(jwt.MapClaims)
		raw      bool
		token    string
		wantErr  error
		rejected bool
	}{
		{name: "valid"},
		{
			name:     "expired",
			claims:   func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() },
			wantErr:  ErrTokenExpired,
			rejected: true,
		},
		{
			name:     "no expiry",
			claims:   func(c jwt.MapClaims) { delete(c, "exp") },
			wantErr:  ErrTokenInvalid,
			rejected: true,
		},
		{
			name:     "wrong issuer",
			claims:   func(c jwt.MapClaims) { c["iss"] = "https://other.example.com" },
			wantErr:  ErrTokenInvalid,
			rejected: true,
		},
		{
			name:     "wrong audience",
			claims:   func(c jwt.MapClaims) { c["aud"] = []any{"web"} },
			wantErr:  ErrTokenInvalid,
			rejected: true,
		},
		{
			name:     "missing subject",
			claims:   func(c jwt.MapClaims) { delete(c, "sub") },
			wantErr:  ErrMissingSubject,
			rejected: true,
		},
		{
			name:     "malformed",
			raw:      true,
			token:    "not.a.jwt",
			wantErr:  ErrTokenMalformed,
			rejected: true,
		},
		{
			name:     "empty",
			raw:      true,
			wantErr:  ErrTokenMalformed,
			rejected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := tt.token
			if !tt.raw {
				claims := claimsFor("u-1")
				if tt.claims != nil {
					tt.claims(claims)
				}
				token = signHS256(t, claims)
			}

			got, err := v.Verify(context.Background(), token)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Verify() error = %v, want %v", err, tt.wantErr)
				}
				if Rejected(err) != tt.rejected {
					t.Errorf("Rejected(%v) = %v, want %v", err, !tt.rejected, tt.rejected)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if got.Identity.ID != "u-1" || got.Identity.Email != "u-1@example.com" {
				t.Errorf("Identity = %+v", got.Identity)
			}
			if got.Identity.DisplayName != "User u-1" || got.Identity.Role != "member" {
				t.Errorf("Identity = %+v", got.Identity)
			}
			if got.ExpiresAt.IsZero() {
				t.Error("ExpiresAt is zero")
			}
		})
	}
}

func TestJWTVerifier_CustomClaimNames(t *testing.T) {
	v := NewJWTVerifier(JWTConfig{
		Claims: ClaimNames{ID: "uid", Name: "preferred_username", Role: "roles"},
	}, NewStaticKeyProvider(hmacSecret))

	claims := claimsFor("ignored")
	claims["uid"] = "42"
	claims["preferred_username"] = "ada"
	claims["roles"] = []any{"admin", "user"}

	got, err := v.Verify(context.Background(), signHS256(t, claims))
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Identity.ID != "42" {
		t.Errorf("ID = %v, want 42", got.Identity.ID)
	}
	if got.Identity.DisplayName != "ada" {
		t.Errorf("DisplayName = %v, want ada", got.Identity.DisplayName)
	}
	if got.Identity.Role != "admin" {
		t.Errorf("Role = %v, want admin", got.Identity.Role)
	}
}

func TestJWTVerifier_WrongKey(t *testing.T) {
	v := NewJWTVerifier(JWTConfig{}, NewStaticKeyProvider([]byte("another-secret-another-secret-xx")))
	_, err := v.Verify(context.Background(), signHS256(t, claimsFor("u-1")))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

func TestJWTVerifier_DisallowedMethod(t *testing.T) {
	v := NewJWTVerifier(JWTConfig{Methods: []string{"RS256"}}, NewStaticKeyProvider(hmacSecret))
	_, err := v.Verify(context.Background(), signHS256(t, claimsFor("u-1")))
	if !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify() error = %v, want ErrTokenInvalid", err)
	}
}

func TestJWTVerifier_Leeway(t *testing.T) {
	claims := claimsFor("u-1")
	claims["exp"] = time.Now().Add(-10 * time.Second).Unix()
	token := signHS256(t, claims)

	strict := NewJWTVerifier(JWTConfig{}, NewStaticKeyProvider(hmacSecret))
	if _, err := strict.Verify(context.Background(), token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("strict Verify() error = %v, want ErrTokenExpired", err)
	}

	lenient := NewJWTVerifier(JWTConfig{Leeway: time.Minute}, NewStaticKeyProvider(hmacSecret))
	if _, err := lenient.Verify(context.Background(), token); err != nil {
		t.Errorf("lenient Verify() error = %v", err)
	}
}

type failingKeys struct{ err error }

func (f failingKeys) GetKey(context.Context, string) (any, error) { return nil, f.err }

func TestJWTVerifier_KeyFailureIsNotRejection(t *testing.T) {
	down := errors.New("jwks unreachable")
	v := NewJWTVerifier(JWTConfig{}, failingKeys{err: down})

	_, err := v.Verify(context.Background(), signHS256(t, claimsFor("u-1")))
	if !errors.Is(err, down) {
		t.Fatalf("Verify() error = %v, want %v", err, down)
	}
	if Rejected(err) {
		t.Error("Rejected() = true for a key fetch failure")
	}
}

func TestJWTVerifier_UnknownKeyIsRejection(t *testing.T) {
	v := NewJWTVerifier(JWTConfig{}, failingKeys{err: ErrKeyNotFound})
	_, err := v.Verify(context.Background(), signHS256(t, claimsFor("u-1")))
	if !Rejected(err) {
		t.Errorf("Rejected(%v) = false, want true", err)
	}
}

func TestNewJWTVerifier_NilKeysPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("NewJWTVerifier(nil) did not panic")
		}
	}()
	NewJWTVerifier(JWTConfig{}, nil)
}

func TestStaticKeyProvider_Empty(t *testing.T) {
	if _, err := NewStaticKeyProvider(nil).GetKey(context.Background(), ""); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("GetKey() error = %v, want ErrKeyNotFound", err)
	}
}
