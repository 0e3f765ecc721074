package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonwraymond/apisession/client"
)

func newTestManager(t *testing.T, p *fakeProvider, store *fakePersistence, opts ...func(*Config)) *Manager {
	t.Helper()
	cfg := Config{Provider: p, Persistence: store}
	for _, o := range opts {
		o(&cfg)
	}
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })
	return m
}

func login(t *testing.T, m *Manager) {
	t.Helper()
	if err := m.Login(context.Background(), Credentials{Username: "alice", Password: "hunter2"}); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
}

func TestNewManager_RequiresAdapters(t *testing.T) {
	if _, err := NewManager(Config{Persistence: &fakePersistence{}}); !errors.Is(err, ErrNoProvider) {
		t.Errorf("NewManager(no provider) error = %v, want ErrNoProvider", err)
	}
	if _, err := NewManager(Config{Provider: newFakeProvider()}); !errors.Is(err, ErrNoPersistence) {
		t.Errorf("NewManager(no persistence) error = %v, want ErrNoPersistence", err)
	}
}

func TestManager_LoginThenRestartRehydrates(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{}

	first := newTestManager(t, p, store)
	first.Initialize(context.Background())
	login(t, first)

	if !first.IsAuthenticated() {
		t.Fatal("IsAuthenticated() = false after login")
	}
	if first.State() != StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", first.State())
	}
	savesBefore, _ := store.writes()

	// A fresh manager over the same persistence simulates a restart.
	second := newTestManager(t, p, store)
	second.Initialize(context.Background())

	if !second.IsAuthenticated() {
		t.Fatalf("restarted IsAuthenticated() = false, LastError = %v", second.LastError())
	}
	if got := second.CurrentIdentity(); got == nil || *got != alice {
		t.Errorf("CurrentIdentity() = %+v, want %+v", got, alice)
	}
	if h, _ := second.Store().AuthorizationHeader(); h != "Bearer a1" {
		t.Errorf("AuthorizationHeader() = %q, want Bearer a1", h)
	}

	signIns, _, _, rehydrates := p.counts()
	if signIns != 1 {
		t.Errorf("SignIn calls = %d, want 1", signIns)
	}
	if rehydrates != 1 {
		t.Errorf("RehydratedSession calls = %d, want 1", rehydrates)
	}
	if saves, _ := store.writes(); saves != savesBefore {
		t.Errorf("unchanged rehydration wrote the snapshot (%d saves, want %d)", saves, savesBefore)
	}
}

func TestManager_InitializeWithoutSnapshot(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{}
	m := newTestManager(t, p, store)

	if m.State() != StateUninitialized {
		t.Errorf("State() = %v before Initialize", m.State())
	}
	m.Initialize(context.Background())

	if m.State() != StateUnauthenticated {
		t.Errorf("State() = %v, want unauthenticated", m.State())
	}
	if m.LastError() != nil {
		t.Errorf("LastError() = %v, want nil", m.LastError())
	}
	if _, _, _, rehydrates := p.counts(); rehydrates != 0 {
		t.Errorf("RehydratedSession calls = %d, want 0", rehydrates)
	}
	if saves, clears := store.writes(); saves+clears != 0 {
		t.Errorf("writes = %d saves, %d clears, want none", saves, clears)
	}
}

func TestManager_InitializeNeverFails(t *testing.T) {
	valid := Tokens{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}
	stale := Tokens{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Minute)}

	tests := []struct {
		name     string
		setup    func(*fakeProvider, *fakePersistence)
		wantKept bool
		silent   bool
	}{
		{
			name: "load error",
			setup: func(_ *fakeProvider, s *fakePersistence) {
				s.loadErr = errors.New("disk on fire")
			},
		},
		{
			name: "corrupt snapshot",
			setup: func(_ *fakeProvider, s *fakePersistence) {
				s.data = []byte("not json")
			},
		},
		{
			name: "provider rejects",
			setup: func(p *fakeProvider, s *fakePersistence) {
				seed(s, valid)
				p.rehydrate = func(Snapshot) (*Session, error) { return nil, nil }
			},
			silent: true,
		},
		{
			name: "provider unreachable",
			setup: func(p *fakeProvider, s *fakePersistence) {
				seed(s, valid)
				p.rehydrate = func(Snapshot) (*Session, error) { return nil, errDown }
			},
			wantKept: true,
		},
		{
			name: "provider returns expired session",
			setup: func(p *fakeProvider, s *fakePersistence) {
				seed(s, valid)
				p.rehydrate = func(s Snapshot) (*Session, error) {
					return &Session{Identity: *s.Identity, Tokens: Tokens{AccessToken: "a1", ExpiresAt: time.Now().Add(-time.Second)}}, nil
				}
			},
		},
		{
			name: "stale without refresh token",
			setup: func(_ *fakeProvider, s *fakePersistence) {
				seed(s, Tokens{AccessToken: "a1", ExpiresAt: time.Now().Add(-time.Minute)})
			},
		},
		{
			name: "stale and refresh rejected",
			setup: func(p *fakeProvider, s *fakePersistence) {
				seed(s, stale)
				p.refresh = func(context.Context, string) (*Tokens, error) {
					return nil, fmt.Errorf("invalid_grant: %w", ErrRejected)
				}
			},
		},
		{
			name: "stale and refresh unreachable",
			setup: func(p *fakeProvider, s *fakePersistence) {
				seed(s, stale)
				p.refresh = func(context.Context, string) (*Tokens, error) { return nil, errDown }
			},
			wantKept: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newFakeProvider()
			store := &fakePersistence{}
			tt.setup(p, store)
			m := newTestManager(t, p, store)

			m.Initialize(context.Background())

			if m.State() != StateUnauthenticated {
				t.Errorf("State() = %v, want unauthenticated", m.State())
			}
			if m.IsAuthenticated() {
				t.Error("IsAuthenticated() = true")
			}
			if m.LastError() == nil && !tt.silent {
				t.Error("LastError() = nil")
			}
			if _, ok := m.Store().AuthorizationHeader(); ok {
				t.Error("token store populated")
			}
			if kept := store.stored() != nil; kept != tt.wantKept {
				t.Errorf("snapshot kept = %v, want %v", kept, tt.wantKept)
			}
		})
	}
}

func TestManager_RestartAfterOutageRehydrates(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{}
	seed(store, Tokens{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)})

	p.rehydrate = func(Snapshot) (*Session, error) { return nil, errDown }
	during := newTestManager(t, p, store)
	during.Initialize(context.Background())
	if during.IsAuthenticated() {
		t.Fatal("IsAuthenticated() = true while the provider is down")
	}
	if !errors.Is(during.LastError(), errDown) {
		t.Errorf("LastError() = %v, want errDown", during.LastError())
	}
	if _, clears := store.writes(); clears != 0 {
		t.Errorf("Clear calls = %d, want 0", clears)
	}

	p.mu.Lock()
	p.rehydrate = func(s Snapshot) (*Session, error) {
		return &Session{Identity: *s.Identity, Tokens: *s.Tokens}, nil
	}
	p.mu.Unlock()

	after := newTestManager(t, p, store)
	after.Initialize(context.Background())
	if !after.IsAuthenticated() {
		t.Fatalf("IsAuthenticated() after recovery = false, LastError = %v", after.LastError())
	}
	if got := after.CurrentIdentity(); got == nil || *got != alice {
		t.Errorf("CurrentIdentity() = %+v, want %+v", got, alice)
	}
	if h, _ := after.Store().AuthorizationHeader(); h != "Bearer a1" {
		t.Errorf("AuthorizationHeader() = %q, want Bearer a1", h)
	}
}

func seed(s *fakePersistence, tokens Tokens) {
	id := alice
	_ = s.Save(context.Background(), NewSnapshot(&id, &tokens))
	s.saves = 0
}

func TestManager_InitializeRefreshesStaleTokens(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{}
	seed(store, Tokens{AccessToken: "old", RefreshToken: "r1", ExpiresAt: time.Now().Add(-time.Minute)})

	var validated Snapshot
	p.rehydrate = func(s Snapshot) (*Session, error) {
		validated = s
		return &Session{Identity: *s.Identity, Tokens: *s.Tokens}, nil
	}

	m := newTestManager(t, p, store)
	m.Initialize(context.Background())

	if !m.IsAuthenticated() {
		t.Fatalf("IsAuthenticated() = false, LastError = %v", m.LastError())
	}
	if validated.Tokens == nil || validated.Tokens.AccessToken != "a2-r1" {
		t.Errorf("provider validated stale tokens: %v", validated.Tokens)
	}
	if validated.Tokens != nil && validated.Tokens.RefreshToken != "r1" {
		t.Errorf("refresh token not kept across refresh: %v", validated.Tokens)
	}
	got := store.stored()
	if got == nil || got.Tokens.AccessToken != "a2-r1" {
		t.Errorf("persisted tokens = %v, want refreshed", got)
	}
}

func TestManager_InitializeDiscardsInconsistentSnapshot(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{data: []byte(`{"identity":{"id":"u-1"},"tokens":null,"is_authenticated":true}`)}
	m := newTestManager(t, p, store)

	m.Initialize(context.Background())

	if m.State() != StateUnauthenticated {
		t.Errorf("State() = %v, want unauthenticated", m.State())
	}
	if !errors.Is(m.LastError(), ErrCorruptSnapshot) {
		t.Errorf("LastError() = %v, want ErrCorruptSnapshot", m.LastError())
	}
	if store.stored() != nil {
		t.Error("corrupt snapshot not cleared")
	}
}

func TestManager_InitializeOnce(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{}
	m := newTestManager(t, p, store)
	m.Initialize(context.Background())
	login(t, m)

	m.Initialize(context.Background())
	if !m.IsAuthenticated() {
		t.Error("second Initialize reset the session")
	}
}

func TestManager_LoginFailure(t *testing.T) {
	p := newFakeProvider()
	store := &fakePersistence{}
	m := newTestManager(t, p, store)
	m.Initialize(context.Background())

	err := m.Login(context.Background(), Credentials{Username: "alice", Password: "wrong"})
	if err == nil {
		t.Fatal("Login() error = nil")
	}
	if m.State() != StateUnauthenticated {
		t.Errorf("State() = %v, want unauthenticated", m.State())
	}
	if m.LastError() == nil {
		t.Error("LastError() = nil after failed login")
	}
	if m.Loading() {
		t.Error("Loading() = true after login returned")
	}
	if saves, _ := store.writes(); saves != 0 {
		t.Errorf("saves = %d, want 0", saves)
	}
}

func TestManager_LoginRejectsEmptySession(t *testing.T) {
	p := newFakeProvider()
	p.signIn = func(Credentials) (*Session, error) { return &Session{Identity: alice}, nil }
	m := newTestManager(t, p, &fakePersistence{})

	err := m.Login(context.Background(), Credentials{Username: "alice"})
	if !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Login() error = %v, want ErrInvalidSession", err)
	}
}

func TestManager_Logout(t *testing.T) {
	for _, remote := range []error{nil, errDown} {
		name := "remote ok"
		if remote != nil {
			name = "remote fails"
		}
		t.Run(name, func(t *testing.T) {
			p := newFakeProvider()
			p.signOut = remote
			store := &fakePersistence{}
			m := newTestManager(t, p, store)
			m.Initialize(context.Background())
			login(t, m)

			if err := m.Logout(context.Background()); err != nil {
				t.Fatalf("Logout() error = %v", err)
			}

			if m.IsAuthenticated() {
				t.Error("IsAuthenticated() = true after logout")
			}
			if m.CurrentIdentity() != nil {
				t.Error("CurrentIdentity() != nil after logout")
			}
			if _, ok := m.Store().AuthorizationHeader(); ok {
				t.Error("token store not cleared")
			}
			if store.stored() != nil {
				t.Error("persistence still returns a snapshot")
			}
			if _, _, signOuts, _ := p.counts(); signOuts != 1 {
				t.Errorf("SignOut calls = %d, want 1", signOuts)
			}
			if !errors.Is(m.LastError(), remote) {
				t.Errorf("LastError() = %v, want %v", m.LastError(), remote)
			}
		})
	}
}

func TestManager_ConcurrentRefreshCoalesces(t *testing.T) {
	p := newFakeProvider()
	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	p.refresh = func(_ context.Context, rt string) (*Tokens, error) {
		once.Do(func() { close(entered) })
		<-release
		return &Tokens{AccessToken: "fresh", RefreshToken: "r2"}, nil
	}

	store := &fakePersistence{}
	m := newTestManager(t, p, store)
	login(t, m)

	var wg sync.WaitGroup
	results := make([]Tokens, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = m.Refresh(context.Background())
		}()
	}

	<-entered
	if m.State() != StateRefreshing {
		t.Errorf("State() = %v during refresh, want refreshing", m.State())
	}
	if h, _ := m.Store().AuthorizationHeader(); h != "Bearer a1" {
		t.Errorf("old token not served during refresh: %q", h)
	}
	time.Sleep(50 * time.Millisecond) // let the second caller join
	close(release)
	wg.Wait()

	for i := range 2 {
		if errs[i] != nil {
			t.Fatalf("Refresh()[%d] error = %v", i, errs[i])
		}
	}
	if results[0] != results[1] {
		t.Errorf("callers got different tokens: %v vs %v", results[0], results[1])
	}
	if _, refreshes, _, _ := p.counts(); refreshes != 1 {
		t.Errorf("provider Refresh calls = %d, want 1", refreshes)
	}
	if m.State() != StateAuthenticated {
		t.Errorf("State() = %v, want authenticated", m.State())
	}
	if got := store.stored(); got == nil || got.Tokens.AccessToken != "fresh" {
		t.Errorf("persisted tokens = %v, want fresh", got)
	}
}

func TestManager_RefreshFailureLogsOut(t *testing.T) {
	p := newFakeProvider()
	p.refresh = func(context.Context, string) (*Tokens, error) { return nil, errDown }
	store := &fakePersistence{}
	m := newTestManager(t, p, store)
	login(t, m)

	events, cancel := m.Subscribe(4)
	defer cancel()

	_, err := m.Refresh(context.Background())
	if !errors.Is(err, ErrRefreshFailed) || !errors.Is(err, errDown) {
		t.Errorf("Refresh() error = %v, want ErrRefreshFailed wrapping provider error", err)
	}
	if m.State() != StateUnauthenticated {
		t.Errorf("State() = %v, want unauthenticated", m.State())
	}
	if store.stored() != nil {
		t.Error("persisted state not cleared")
	}
	select {
	case ev := <-events:
		if ev.Type != EventRefreshFailed {
			t.Errorf("event = %v, want refresh_failed", ev.Type)
		}
	default:
		t.Error("no event published")
	}
}

func TestManager_RefreshRequiresSession(t *testing.T) {
	p := newFakeProvider()
	m := newTestManager(t, p, &fakePersistence{})

	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Refresh() error = %v, want ErrNotAuthenticated", err)
	}

	p.signIn = func(Credentials) (*Session, error) {
		return &Session{Identity: alice, Tokens: Tokens{AccessToken: "a1"}}, nil
	}
	login(t, m)
	if _, err := m.Refresh(context.Background()); !errors.Is(err, ErrNoRefreshToken) {
		t.Errorf("Refresh() error = %v, want ErrNoRefreshToken", err)
	}
	if !m.IsAuthenticated() {
		t.Error("missing refresh token logged the session out")
	}
}

func TestManager_LogoutDuringRefreshWins(t *testing.T) {
	p := newFakeProvider()
	entered := make(chan struct{})
	release := make(chan struct{})
	p.refresh = func(context.Context, string) (*Tokens, error) {
		close(entered)
		<-release
		return &Tokens{AccessToken: "late"}, nil
	}
	store := &fakePersistence{}
	m := newTestManager(t, p, store)
	login(t, m)

	errc := make(chan error, 1)
	go func() {
		_, err := m.Refresh(context.Background())
		errc <- err
	}()

	<-entered
	if err := m.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrSessionChanged) {
		t.Errorf("Refresh() error = %v, want ErrSessionChanged", err)
	}
	if m.IsAuthenticated() {
		t.Error("late refresh resurrected the session")
	}
	if store.stored() != nil {
		t.Error("late refresh re-persisted the session")
	}
}

func TestManager_RefreshCallerCancel(t *testing.T) {
	p := newFakeProvider()
	release := make(chan struct{})
	p.refresh = func(ctx context.Context, _ string) (*Tokens, error) {
		<-release
		return &Tokens{AccessToken: "fresh", RefreshToken: "r2"}, ctx.Err()
	}
	m := newTestManager(t, p, &fakePersistence{})
	login(t, m)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Refresh(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Refresh(cancelled) error = %v, want context.Canceled", err)
	}

	close(release)
	got, err := m.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got.AccessToken != "fresh" {
		t.Errorf("AccessToken = %q, want fresh", got.AccessToken)
	}
}

// backend answers 401 to any token other than want.
func backend(t *testing.T, want *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+want.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"token expired"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ok":true}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestManager_UnauthorizedTriggersBackgroundRefresh(t *testing.T) {
	var valid atomic.Value
	valid.Store("a2-r1")
	srv := backend(t, &valid)

	p := newFakeProvider()
	m := newTestManager(t, p, &fakePersistence{}, func(c *Config) { c.RefreshOnUnauthorized = true })
	c, err := client.New(client.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	m.Attach(c)
	login(t, m)

	events, cancel := m.Subscribe(8)
	defer cancel()

	_, err = c.Get(context.Background(), "/me")
	f, ok := client.AsFault(err)
	if !ok {
		t.Fatalf("Get() error = %v, want *client.Fault", err)
	}
	if f.Status != http.StatusUnauthorized || f.Code != CodeAuthExpired {
		t.Errorf("fault = {Status:%d Code:%q}, want {401 %q}", f.Status, f.Code, CodeAuthExpired)
	}
	if !errors.Is(err, ErrAuthExpired) {
		t.Error("errors.Is(err, ErrAuthExpired) = false")
	}

	waitFor(t, events, EventRefreshed)

	resp, err := c.Get(context.Background(), "/me")
	if err != nil {
		t.Fatalf("Get() after refresh error = %v", err)
	}
	if resp.Status != http.StatusOK {
		t.Errorf("Status = %d, want 200", resp.Status)
	}
}

func TestManager_UnauthorizedWithoutRefreshExpires(t *testing.T) {
	var valid atomic.Value
	valid.Store("nobody")
	srv := backend(t, &valid)

	p := newFakeProvider()
	m := newTestManager(t, p, &fakePersistence{})
	c, err := client.New(client.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	m.Attach(c)
	login(t, m)

	_, err = c.Get(context.Background(), "/me")
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("Get() error = %v, want ErrAuthExpired", err)
	}
	if m.State() != StateExpired {
		t.Errorf("State() = %v, want expired", m.State())
	}
	if !m.IsAuthenticated() {
		t.Error("expired session dropped identity before logout")
	}
	if _, refreshes, _, _ := p.counts(); refreshes != 0 {
		t.Errorf("Refresh calls = %d, want 0", refreshes)
	}
}

func TestManager_UnauthorizedWhileAnonymous(t *testing.T) {
	var valid atomic.Value
	valid.Store("nobody")
	srv := backend(t, &valid)

	m := newTestManager(t, newFakeProvider(), &fakePersistence{})
	c, _ := client.New(client.WithBaseURL(srv.URL))
	m.Attach(c)
	m.Initialize(context.Background())

	_, err := c.Get(context.Background(), "/me")
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("Get() error = %v, want ErrAuthExpired", err)
	}
	if m.State() != StateUnauthenticated {
		t.Errorf("State() = %v, want unauthenticated", m.State())
	}
}

func TestManager_UnauthorizedDuringShutdownStartsNoRefresh(t *testing.T) {
	var valid atomic.Value
	valid.Store("nobody")
	srv := backend(t, &valid)

	p := newFakeProvider()
	m := newTestManager(t, p, &fakePersistence{}, func(c *Config) { c.RefreshOnUnauthorized = true })
	c, err := client.New(client.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	m.Attach(c)
	login(t, m)

	// Shutdown has begun but has not yet cleared the tokens.
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	if _, err := c.Get(context.Background(), "/me"); !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("Get() error = %v, want ErrAuthExpired", err)
	}
	m.bg.Wait()
	if _, refreshes, _, _ := p.counts(); refreshes != 0 {
		t.Errorf("Refresh calls = %d, want 0", refreshes)
	}
}

func TestManager_ShutdownRacesUnauthorized(t *testing.T) {
	var valid atomic.Value
	valid.Store("nobody")
	srv := backend(t, &valid)

	m := newTestManager(t, newFakeProvider(), &fakePersistence{}, func(c *Config) { c.RefreshOnUnauthorized = true })
	c, err := client.New(client.WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	m.Attach(c)
	login(t, m)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Get(context.Background(), "/me")
		}()
	}
	if err := m.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	wg.Wait()
	m.bg.Wait()
}

func TestManager_ShutdownClearsTokens(t *testing.T) {
	store := &fakePersistence{}
	m := newTestManager(t, newFakeProvider(), store)
	login(t, m)
	events, _ := m.Subscribe(1)

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if _, ok := m.Store().AuthorizationHeader(); ok {
		t.Error("token store not cleared")
	}
	if _, open := <-events; open {
		t.Error("subscriber channel not closed")
	}
	if store.stored() == nil {
		t.Error("Shutdown removed the persisted snapshot")
	}
}

func TestManager_SnapshotInvariant(t *testing.T) {
	m := newTestManager(t, newFakeProvider(), &fakePersistence{})
	if s := m.Snapshot(); s.IsAuthenticated || s.Identity != nil || s.Tokens != nil {
		t.Errorf("Snapshot() = %+v before login", s)
	}
	login(t, m)
	s := m.Snapshot()
	if !s.IsAuthenticated || s.Identity == nil || s.Tokens == nil {
		t.Errorf("Snapshot() = %+v after login", s)
	}
}

func waitFor(t *testing.T, events <-chan Event, want EventType) {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatalf("event channel closed before %v", want)
			}
			if ev.Type == want {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %v", want)
		}
	}
}
