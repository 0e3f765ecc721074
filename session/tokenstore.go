package session

import (
	"context"
	"sync/atomic"

	"github.com/jonwraymond/apisession/client"
)

// TokenStore holds the current credential pair as one atomic value, so a
// reader never sees an access token from one pair with the refresh token of
// another.
//
// The only read path outside this package is AuthorizationHeader; the
// Interceptor is the single place the header is attached to requests.
type TokenStore struct {
	current atomic.Pointer[Tokens]
}

// NewTokenStore returns an empty store.
func NewTokenStore() *TokenStore {
	return &TokenStore{}
}

// Set replaces the stored pair.
func (s *TokenStore) Set(t Tokens) {
	s.current.Store(&t)
}

// Clear empties the store.
func (s *TokenStore) Clear() {
	s.current.Store(nil)
}

// AuthorizationHeader returns "Bearer <access token>", or false when the
// store is empty.
func (s *TokenStore) AuthorizationHeader() (string, bool) {
	t := s.current.Load()
	if t == nil || t.AccessToken == "" {
		return "", false
	}
	return "Bearer " + t.AccessToken, true
}

func (s *TokenStore) load() *Tokens {
	t := s.current.Load()
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

// Interceptor returns a request interceptor that sets Authorization from the
// store at send time. An empty store leaves the request as the caller built
// it.
func (s *TokenStore) Interceptor() client.RequestInterceptor {
	return func(_ context.Context, req client.Request) (client.Request, error) {
		if h, ok := s.AuthorizationHeader(); ok {
			return req.WithHeader("Authorization", h), nil
		}
		return req, nil
	}
}
