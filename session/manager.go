package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/apisession/client"
	"github.com/jonwraymond/apisession/observe"
)

// State is the manager's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateUnauthenticated
	StateAuthenticated
	// StateRefreshing is a sub-state of StateAuthenticated: a refresh is in
	// flight and the current access token is still sent.
	StateRefreshing
	// StateExpired means the backend rejected the access token and no
	// refresh is possible. Identity and tokens are kept until Logout.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateRefreshing:
		return "refreshing"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Operation names recorded in session metrics.
const (
	OpRehydrate = "rehydrate"
	OpLogin     = "login"
	OpLogout    = "logout"
	OpRefresh   = "refresh"
)

const refreshKey = "refresh"

// Config configures a Manager.
type Config struct {
	// Provider performs credential exchanges. Required.
	Provider IdentityProvider

	// Persistence stores the session snapshot. Required.
	Persistence Persistence

	// Store holds the live tokens. Default: a new TokenStore.
	Store *TokenStore

	// RefreshOnUnauthorized starts a background refresh when a call is
	// rejected with 401 and a refresh token is available.
	RefreshOnUnauthorized bool

	// Logger receives lifecycle logs. Default: observe.NopLogger().
	Logger observe.Logger

	// Metrics records lifecycle operations. Default: no-op.
	Metrics observe.SessionMetrics

	// Now is the clock used for expiry checks. Default: time.Now.
	Now func() time.Time
}

// Manager owns the session: the token store, the current identity and the
// persisted snapshot.
//
// Contract:
//   - Concurrency: all methods are safe for concurrent use. At most one
//     refresh reaches the provider at a time; concurrent callers share its
//     result.
//   - Errors: Initialize never fails. Logout returns only local persistence
//     errors.
//   - Persistence: writes happen only on transitions that change identity,
//     tokens or the authenticated flag, and always store the state current
//     at write time.
type Manager struct {
	provider IdentityProvider
	persist  Persistence
	store    *TokenStore
	logger   observe.Logger
	metrics  observe.SessionMetrics
	now      func() time.Time
	autoRef  bool

	mu       sync.RWMutex
	state    State
	identity *Identity
	lastErr  error
	loading  bool
	closed   bool
	// gen changes whenever the session is replaced or torn down, so a
	// refresh that started under an older session does not apply its result.
	gen uint64

	persistMu sync.Mutex
	flight    singleflight.Group
	events    broadcaster
	bg        sync.WaitGroup
}

// NewManager creates a Manager in StateUninitialized.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Provider == nil {
		return nil, ErrNoProvider
	}
	if cfg.Persistence == nil {
		return nil, ErrNoPersistence
	}
	if cfg.Store == nil {
		cfg.Store = NewTokenStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = observe.NopLogger()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.NopSessionMetrics()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{
		provider: cfg.Provider,
		persist:  cfg.Persistence,
		store:    cfg.Store,
		logger:   cfg.Logger.With(observe.F("component", "session")),
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		autoRef:  cfg.RefreshOnUnauthorized,
	}, nil
}

// Store returns the token store the manager writes to.
func (m *Manager) Store() *TokenStore {
	return m.store
}

// Attach registers the token interceptor and the 401 interceptor on c.
func (m *Manager) Attach(c *client.Client) {
	c.UseRequest(m.store.Interceptor())
	c.UseError(m.ErrorInterceptor())
}

// Initialize rehydrates the persisted session. It never fails: any problem
// leaves the manager unauthenticated, and is logged and available from
// LastError. The persisted snapshot is cleared only when it is known to be
// unusable (corrupt, rejected, or stale with no way to refresh); after a
// provider outage it is kept for the next start. Calls after the first are
// no-ops.
func (m *Manager) Initialize(ctx context.Context) {
	m.mu.Lock()
	if m.state != StateUninitialized {
		m.mu.Unlock()
		return
	}
	m.state = StateInitializing
	m.loading = true
	m.mu.Unlock()

	snap, sess, err := m.rehydrate(ctx)
	m.metrics.RecordSession(ctx, OpRehydrate, err)

	m.mu.Lock()
	m.loading = false
	m.lastErr = err
	if sess != nil {
		m.store.Set(sess.Tokens)
		id := sess.Identity
		m.identity = &id
		m.state = StateAuthenticated
	} else {
		m.store.Clear()
		m.identity = nil
		m.state = StateUnauthenticated
	}
	m.gen++
	m.mu.Unlock()

	if err != nil {
		m.logger.Warn(ctx, "session rehydration failed", observe.F("error", err))
	}

	// Write back only when rehydration changed what is stored. A snapshot
	// whose validity could not be decided is kept for the next start.
	kept := err != nil && !discardable(err)
	changed := (sess == nil && !kept && (snap != nil || err != nil)) ||
		(sess != nil && !sameSession(snap, sess))
	if changed {
		if serr := m.sync(ctx); serr != nil {
			m.logger.Error(ctx, "persist rehydrated session", observe.F("error", serr))
		}
	}
	if sess != nil {
		m.logger.Info(ctx, "session rehydrated", observe.F("user_id", sess.Identity.ID))
		m.emit(EventRehydrated, nil)
	}
}

// discardable reports whether a rehydration error proves the persisted
// snapshot can never become valid.
func discardable(err error) bool {
	for _, target := range []error{ErrCorruptSnapshot, ErrInvalidSession, ErrRejected, ErrNoRefreshToken} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func sameSession(snap *Snapshot, sess *Session) bool {
	if snap == nil || snap.Identity == nil || snap.Tokens == nil {
		return false
	}
	t := *snap.Tokens
	return *snap.Identity == sess.Identity &&
		t.AccessToken == sess.Tokens.AccessToken &&
		t.RefreshToken == sess.Tokens.RefreshToken &&
		t.ExpiresAt.Equal(sess.Tokens.ExpiresAt)
}

// rehydrate returns the stored snapshot and the validated session, which is
// nil when there is none.
func (m *Manager) rehydrate(ctx context.Context) (*Snapshot, *Session, error) {
	snap, err := m.persist.Load(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load snapshot: %w", err)
	}
	if snap == nil {
		return nil, nil, nil
	}
	sess, err := m.validate(ctx, snap)
	return snap, sess, err
}

func (m *Manager) validate(ctx context.Context, snap *Snapshot) (*Session, error) {
	if !snap.IsAuthenticated || !snap.Consistent() {
		return nil, nil
	}

	tokens := *snap.Tokens
	if tokens.Stale(m.now()) {
		if !tokens.CanRefresh() {
			return nil, fmt.Errorf("%w: %w", ErrStaleSession, ErrNoRefreshToken)
		}
		fresh, err := m.provider.Refresh(ctx, tokens.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrStaleSession, err)
		}
		if fresh == nil || fresh.AccessToken == "" {
			return nil, ErrInvalidSession
		}
		tokens = tokens.merge(*fresh)
	}

	sess, err := m.provider.RehydratedSession(ctx, NewSnapshot(snap.Identity, &tokens))
	if err != nil {
		return nil, fmt.Errorf("validate snapshot: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	if sess.Tokens.AccessToken == "" {
		sess.Tokens = tokens
	}
	if sess.Tokens.Stale(m.now()) {
		return nil, fmt.Errorf("%w: %w", ErrStaleSession, ErrInvalidSession)
	}
	return sess, nil
}

// Login signs in through the provider. On failure the previous state is
// kept, the error is recorded in LastError and returned.
func (m *Manager) Login(ctx context.Context, creds Credentials) error {
	m.setLoading(true)
	sess, err := m.provider.SignIn(ctx, creds)
	if err == nil && (sess == nil || sess.Tokens.AccessToken == "" || sess.Identity.ID == "") {
		err = ErrInvalidSession
	}
	m.metrics.RecordSession(ctx, OpLogin, err)

	if err != nil {
		m.mu.Lock()
		m.loading = false
		m.lastErr = err
		m.mu.Unlock()
		m.logger.Warn(ctx, "login failed", observe.F("username", creds.Username), observe.F("error", err))
		return fmt.Errorf("session: login: %w", err)
	}

	m.mu.Lock()
	m.store.Set(sess.Tokens)
	id := sess.Identity
	m.identity = &id
	m.state = StateAuthenticated
	m.lastErr = nil
	m.loading = false
	m.gen++
	m.mu.Unlock()

	if serr := m.sync(ctx); serr != nil {
		m.logger.Error(ctx, "persist session after login", observe.F("error", serr))
		m.setLastErr(serr)
	}
	m.logger.Info(ctx, "logged in", observe.F("user_id", id.ID))
	m.emit(EventLoggedIn, nil)
	return nil
}

// Logout signs out remotely on a best-effort basis, then always clears the
// token store, the identity and the persisted snapshot. A remote failure is
// logged and recorded in LastError but not returned.
func (m *Manager) Logout(ctx context.Context) error {
	var remoteErr error
	if t := m.store.load(); t != nil {
		remoteErr = m.provider.SignOut(ctx, *t)
		if remoteErr != nil {
			m.logger.Warn(ctx, "remote sign-out failed", observe.F("error", remoteErr))
		}
	}

	m.mu.Lock()
	m.teardownLocked(remoteErr)
	m.mu.Unlock()

	err := m.sync(ctx)
	m.metrics.RecordSession(ctx, OpLogout, err)
	m.logger.Info(ctx, "logged out")
	m.emit(EventLoggedOut, remoteErr)
	if err != nil {
		return fmt.Errorf("session: logout: %w", err)
	}
	return nil
}

// Refresh exchanges the refresh token for new tokens. Concurrent calls
// share a single provider call and its result. The provider call is not
// cancelled when one caller's ctx is; that caller stops waiting instead.
//
// On provider failure the session is logged out and the returned error
// wraps ErrRefreshFailed.
func (m *Manager) Refresh(ctx context.Context) (Tokens, error) {
	ch := m.flight.DoChan(refreshKey, func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return Tokens{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Tokens{}, res.Err
		}
		return res.Val.(Tokens), nil
	}
}

func (m *Manager) refresh(ctx context.Context) (Tokens, error) {
	m.mu.Lock()
	cur := m.store.load()
	switch {
	case m.identity == nil || cur == nil:
		m.mu.Unlock()
		return Tokens{}, ErrNotAuthenticated
	case !cur.CanRefresh():
		m.mu.Unlock()
		return Tokens{}, ErrNoRefreshToken
	}
	gen := m.gen
	m.state = StateRefreshing
	m.loading = true
	m.mu.Unlock()

	fresh, err := m.provider.Refresh(ctx, cur.RefreshToken)
	if err == nil && (fresh == nil || fresh.AccessToken == "") {
		err = ErrInvalidSession
	}

	m.mu.Lock()
	if m.gen != gen {
		m.mu.Unlock()
		m.metrics.RecordSession(ctx, OpRefresh, ErrSessionChanged)
		return Tokens{}, ErrSessionChanged
	}
	if err != nil {
		m.teardownLocked(err)
		m.mu.Unlock()

		m.metrics.RecordSession(ctx, OpRefresh, err)
		m.logger.Warn(ctx, "refresh failed, session logged out", observe.F("error", err))
		if serr := m.sync(ctx); serr != nil {
			m.logger.Error(ctx, "clear session after failed refresh", observe.F("error", serr))
		}
		m.emit(EventRefreshFailed, err)
		return Tokens{}, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	next := cur.merge(*fresh)
	m.store.Set(next)
	m.state = StateAuthenticated
	m.lastErr = nil
	m.loading = false
	m.mu.Unlock()

	m.metrics.RecordSession(ctx, OpRefresh, nil)
	if serr := m.sync(ctx); serr != nil {
		m.logger.Error(ctx, "persist refreshed session", observe.F("error", serr))
	}
	m.logger.Debug(ctx, "session refreshed", observe.F("tokens", next))
	m.emit(EventRefreshed, nil)
	return next, nil
}

// ErrorInterceptor returns the client error interceptor that handles 401
// responses. The fault is replaced with one whose Code is CodeAuthExpired
// and which wraps ErrAuthExpired; the original request is not replayed.
// With RefreshOnUnauthorized and a refresh token, a background refresh is
// started; otherwise the session moves to StateExpired.
func (m *Manager) ErrorInterceptor() client.ErrorInterceptor {
	return func(ctx context.Context, f *client.Fault, _ client.Request) *client.Fault {
		if f == nil || f.Status != http.StatusUnauthorized {
			return nil
		}

		m.mu.Lock()
		active := m.state == StateAuthenticated || m.state == StateRefreshing || m.state == StateExpired
		tokens := m.store.load()
		refresh := active && m.autoRef && tokens != nil && tokens.CanRefresh()
		if active && !refresh {
			m.state = StateExpired
			m.lastErr = ErrAuthExpired
		}
		// No background work starts once Shutdown has begun.
		refresh = refresh && !m.closed
		if refresh {
			m.bg.Add(1)
		}
		m.mu.Unlock()

		out := *f
		out.Code = CodeAuthExpired
		out.Err = errors.Join(ErrAuthExpired, f.Err)

		if !active {
			return &out
		}
		m.emit(EventAuthExpired, ErrAuthExpired)
		if refresh {
			go func() {
				defer m.bg.Done()
				if _, err := m.Refresh(context.WithoutCancel(ctx)); err != nil {
					m.logger.Warn(ctx, "background refresh after 401 failed", observe.F("error", err))
				}
			}()
		}
		return &out
	}
}

// Shutdown waits for background refreshes, clears the token store and
// closes subscriber channels. The persisted snapshot is kept for the next
// process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.bg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	m.mu.Lock()
	m.store.Clear()
	m.gen++
	m.mu.Unlock()

	m.events.close()
	return err
}

// Subscribe returns a channel of session events and a function that
// cancels the subscription. Events are dropped for a subscriber whose
// buffer is full.
func (m *Manager) Subscribe(buffer int) (<-chan Event, func()) {
	return m.events.subscribe(buffer)
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsAuthenticated reports whether both an identity and tokens are held.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.identity != nil && m.store.load() != nil
}

// CurrentIdentity returns a copy of the signed-in identity, or nil.
func (m *Manager) CurrentIdentity() *Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return nil
	}
	id := *m.identity
	return &id
}

// LastError returns the error recorded by the last lifecycle operation.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// Loading reports whether a lifecycle operation is in progress.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Snapshot returns the persistable view of the session.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	var id *Identity
	if m.identity != nil {
		cp := *m.identity
		id = &cp
	}
	return NewSnapshot(id, m.store.load())
}

// teardownLocked drops the session. m.mu must be held.
func (m *Manager) teardownLocked(cause error) {
	m.store.Clear()
	m.identity = nil
	m.state = StateUnauthenticated
	m.lastErr = cause
	m.loading = false
	m.gen++
}

// sync writes the current session to persistence: a snapshot when
// authenticated, a clear otherwise. Writes are serialized and each one
// reads the state at write time, so the store converges on the latest
// transition.
func (m *Manager) sync(ctx context.Context) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	snap := m.Snapshot()
	if snap.IsAuthenticated {
		return m.persist.Save(ctx, snap)
	}
	return m.persist.Clear(ctx)
}

func (m *Manager) setLoading(v bool) {
	m.mu.Lock()
	m.loading = v
	m.mu.Unlock()
}

func (m *Manager) setLastErr(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) emit(t EventType, err error) {
	m.mu.RLock()
	ev := Event{Type: t, State: m.state, Err: err, At: m.now()}
	if m.identity != nil {
		id := *m.identity
		ev.Identity = &id
	}
	m.mu.RUnlock()
	m.events.publish(ev)
}
