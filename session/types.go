package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Tokens is a bearer credential pair. A zero ExpiresAt means the access
// token carries no known expiry.
//
// Tokens never print their secrets: String, GoString, LogValue and Redacted
// all mask them. JSON encoding is the persistence format and is not masked.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

type tokensJSON struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresAtMS  int64  `json:"expires_at_ms,omitempty"`
}

// MarshalJSON encodes ExpiresAt as epoch milliseconds.
func (t Tokens) MarshalJSON() ([]byte, error) {
	out := tokensJSON{AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
	if !t.ExpiresAt.IsZero() {
		out.ExpiresAtMS = t.ExpiresAt.UnixMilli()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the format written by MarshalJSON.
func (t *Tokens) UnmarshalJSON(data []byte) error {
	var in tokensJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*t = Tokens{AccessToken: in.AccessToken, RefreshToken: in.RefreshToken}
	if in.ExpiresAtMS > 0 {
		t.ExpiresAt = time.UnixMilli(in.ExpiresAtMS)
	}
	return nil
}

// Stale reports whether the access token has expired at now. Stale tokens
// must be refreshed before they are trusted.
func (t Tokens) Stale(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && !t.ExpiresAt.After(now)
}

// CanRefresh reports whether a refresh token is present.
func (t Tokens) CanRefresh() bool {
	return t.RefreshToken != ""
}

// merge applies a refresh result. Providers may omit the refresh token when
// it is not rotated; the previous one is kept in that case.
func (t Tokens) merge(next Tokens) Tokens {
	if next.RefreshToken == "" {
		next.RefreshToken = t.RefreshToken
	}
	return next
}

func (t Tokens) String() string {
	return fmt.Sprintf("Tokens{access:%s refresh:%s expires:%s}",
		mask(t.AccessToken), mask(t.RefreshToken), formatExpiry(t.ExpiresAt))
}

// GoString masks secrets under %#v as well.
func (t Tokens) GoString() string {
	return "session." + t.String()
}

// LogValue implements slog.LogValuer.
func (t Tokens) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("access_token", mask(t.AccessToken)),
		slog.String("refresh_token", mask(t.RefreshToken)),
		slog.String("expires_at", formatExpiry(t.ExpiresAt)),
	)
}

// Redacted implements observe.Redactor.
func (t Tokens) Redacted() any {
	return map[string]any{
		"access_token":  mask(t.AccessToken),
		"refresh_token": mask(t.RefreshToken),
		"expires_at":    formatExpiry(t.ExpiresAt),
	}
}

func mask(s string) string {
	if s == "" {
		return "<none>"
	}
	return "<redacted>"
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}

// Identity describes the signed-in principal.
type Identity struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Session is what an identity provider returns for a successful sign-in or
// rehydration.
type Session struct {
	Identity Identity
	Tokens   Tokens
}

// Credentials are passed to the identity provider on sign-in. Extra carries
// provider-specific fields such as an MFA code.
type Credentials struct {
	Username string
	Password string
	Extra    map[string]string
}

func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{username:%s password:%s}", c.Username, mask(c.Password))
}

// GoString masks the password under %#v.
func (c Credentials) GoString() string {
	return "session." + c.String()
}

// Redacted implements observe.Redactor.
func (c Credentials) Redacted() any {
	return map[string]any{"username": c.Username, "password": mask(c.Password)}
}

// Snapshot is the persisted part of a session. IsAuthenticated is true
// exactly when both Identity and Tokens are set.
type Snapshot struct {
	Identity        *Identity `json:"identity"`
	Tokens          *Tokens   `json:"tokens"`
	IsAuthenticated bool      `json:"is_authenticated"`
}

// NewSnapshot builds a snapshot, deriving IsAuthenticated.
func NewSnapshot(identity *Identity, tokens *Tokens) Snapshot {
	return Snapshot{
		Identity:        identity,
		Tokens:          tokens,
		IsAuthenticated: identity != nil && tokens != nil,
	}
}

// Consistent reports whether IsAuthenticated agrees with the presence of
// Identity and Tokens. Inconsistent snapshots are discarded on load.
func (s Snapshot) Consistent() bool {
	return s.IsAuthenticated == (s.Identity != nil && s.Tokens != nil)
}

// MarshalSnapshot encodes a snapshot in its persisted form.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	s.IsAuthenticated = s.Identity != nil && s.Tokens != nil
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a persisted snapshot and checks its invariant.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptSnapshot, err)
	}
	if !s.Consistent() {
		return nil, fmt.Errorf("%w: is_authenticated disagrees with identity and tokens", ErrCorruptSnapshot)
	}
	return &s, nil
}
