package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	alice   = Identity{ID: "u-1", Email: "alice@example.com", DisplayName: "Alice", Role: "admin"}
	errDown = errors.New("identity service down")
)

// fakeProvider counts calls and lets tests replace each exchange.
type fakeProvider struct {
	mu sync.Mutex

	signIn    func(Credentials) (*Session, error)
	refresh   func(context.Context, string) (*Tokens, error)
	rehydrate func(Snapshot) (*Session, error)
	signOut   error

	signIns, refreshes, signOuts, rehydrates int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		signIn: func(c Credentials) (*Session, error) {
			if c.Password != "hunter2" {
				return nil, errors.New("invalid credentials")
			}
			return &Session{
				Identity: alice,
				Tokens:   Tokens{AccessToken: "a1", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		},
		refresh: func(_ context.Context, rt string) (*Tokens, error) {
			return &Tokens{AccessToken: "a2-" + rt, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		rehydrate: func(s Snapshot) (*Session, error) {
			return &Session{Identity: *s.Identity, Tokens: *s.Tokens}, nil
		},
	}
}

func (p *fakeProvider) SignIn(_ context.Context, c Credentials) (*Session, error) {
	p.mu.Lock()
	p.signIns++
	fn := p.signIn
	p.mu.Unlock()
	return fn(c)
}

func (p *fakeProvider) Refresh(ctx context.Context, rt string) (*Tokens, error) {
	p.mu.Lock()
	p.refreshes++
	fn := p.refresh
	p.mu.Unlock()
	return fn(ctx, rt)
}

func (p *fakeProvider) SignOut(context.Context, Tokens) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.signOuts++
	return p.signOut
}

func (p *fakeProvider) RehydratedSession(_ context.Context, s Snapshot) (*Session, error) {
	p.mu.Lock()
	p.rehydrates++
	fn := p.rehydrate
	p.mu.Unlock()
	return fn(s)
}

func (p *fakeProvider) counts() (signIns, refreshes, signOuts, rehydrates int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signIns, p.refreshes, p.signOuts, p.rehydrates
}

// fakePersistence stores the encoded snapshot, as a durable store would.
type fakePersistence struct {
	mu      sync.Mutex
	data    []byte
	loadErr error
	saves   int
	clears  int
}

func (p *fakePersistence) Load(context.Context) (*Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.loadErr != nil {
		return nil, p.loadErr
	}
	if p.data == nil {
		return nil, nil
	}
	return UnmarshalSnapshot(p.data)
}

func (p *fakePersistence) Save(_ context.Context, s Snapshot) error {
	data, err := MarshalSnapshot(s)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = data
	p.saves++
	return nil
}

func (p *fakePersistence) Clear(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data = nil
	p.loadErr = nil
	p.clears++
	return nil
}

func (p *fakePersistence) stored() *Snapshot {
	s, _ := p.Load(context.Background())
	return s
}

func (p *fakePersistence) writes() (saves, clears int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves, p.clears
}
