package session

import "context"

// IdentityProvider performs credential exchanges against the remote identity
// service.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: implementations must honor cancellation.
//   - Errors: RehydratedSession returns (nil, nil) when the snapshot no
//     longer describes a valid session; errors are reserved for failures to
//     decide.
type IdentityProvider interface {
	// SignIn exchanges credentials for a session.
	SignIn(ctx context.Context, creds Credentials) (*Session, error)

	// Refresh exchanges a refresh token for new tokens. An error that
	// wraps ErrRejected means the refresh token will never work again.
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)

	// SignOut invalidates the remote session. It is best-effort.
	SignOut(ctx context.Context, tokens Tokens) error

	// RehydratedSession validates a persisted snapshot and returns the
	// session it describes, or (nil, nil) when the snapshot is no longer
	// valid. An error means validity could not be decided.
	RehydratedSession(ctx context.Context, snap Snapshot) (*Session, error)
}

// Persistence stores one session snapshot under a single key.
//
// Contract:
//   - Load returns (nil, nil) when nothing is stored.
//   - Save replaces the stored snapshot atomically: a reader never sees
//     identity without tokens or the reverse.
//   - Clear is idempotent.
type Persistence interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap Snapshot) error
	Clear(ctx context.Context) error
}
