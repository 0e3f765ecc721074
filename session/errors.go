package session

import "errors"

// CodeAuthExpired is the Fault code set on 401 faults by the manager's error
// interceptor.
const CodeAuthExpired = "auth_expired"

var (
	// ErrAuthExpired is wrapped by faults for calls rejected with 401.
	ErrAuthExpired = errors.New("session: authentication expired")

	// ErrNotAuthenticated is returned by operations that need a session.
	ErrNotAuthenticated = errors.New("session: not authenticated")

	// ErrNoRefreshToken is returned by Refresh when the session has no
	// refresh token.
	ErrNoRefreshToken = errors.New("session: no refresh token")

	// ErrRefreshFailed wraps the provider error of a failed refresh. The
	// session has been logged out when it is returned.
	ErrRefreshFailed = errors.New("session: refresh failed")

	// ErrSessionChanged is returned by a refresh whose session was replaced
	// by a login or logout while the provider call was in flight.
	ErrSessionChanged = errors.New("session: session changed during refresh")

	// ErrInvalidSession is returned when a provider hands back a session
	// without an access token or identity.
	ErrInvalidSession = errors.New("session: provider returned an invalid session")

	// ErrRejected is wrapped by providers when the identity service
	// refused a token or grant outright. Other provider errors are treated
	// as temporary: the persisted session is kept for the next start.
	ErrRejected = errors.New("session: rejected by identity provider")

	// ErrStaleSession is reported when a persisted session has expired and
	// cannot be refreshed.
	ErrStaleSession = errors.New("session: persisted session is stale")

	// ErrCorruptSnapshot is returned when a persisted snapshot cannot be
	// decoded or violates its invariant.
	ErrCorruptSnapshot = errors.New("session: corrupt snapshot")

	// ErrNoProvider and ErrNoPersistence are configuration errors.
	ErrNoProvider    = errors.New("session: identity provider is required")
	ErrNoPersistence = errors.New("session: persistence is required")
)
