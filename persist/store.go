package persist

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/apisession/session"
)

// DefaultKey is the namespaced key a snapshot is stored under.
const DefaultKey = "apisession:session"

// Errors returned by this package.
var (
	ErrEmptyKey     = errors.New("persist: key is required")
	ErrEmptyPath    = errors.New("persist: file path is required")
	ErrNilBackend   = errors.New("persist: nil backend")
	ErrSealKey      = errors.New("persist: seal key must not be empty")
	ErrSealedFormat = errors.New("persist: malformed sealed record")
	ErrUnseal       = errors.New("persist: cannot decrypt record")
)

// Backend is durable storage for one encoded snapshot.
//
// Contract:
//   - Get returns (nil, nil) when nothing is stored.
//   - Put replaces the stored bytes in one step.
//   - Delete is idempotent.
type Backend interface {
	Get(ctx context.Context) ([]byte, error)
	Put(ctx context.Context, data []byte) error
	Delete(ctx context.Context) error
}

// Store adapts a Backend to session.Persistence, encoding snapshots with
// session.MarshalSnapshot.
type Store struct {
	backend Backend
}

// NewStore wraps b.
func NewStore(b Backend) (*Store, error) {
	if b == nil {
		return nil, ErrNilBackend
	}
	return &Store{backend: b}, nil
}

// Load implements session.Persistence.
func (s *Store) Load(ctx context.Context) (*session.Snapshot, error) {
	data, err := s.backend.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("persist: load: %w", err)
	}
	if data == nil {
		return nil, nil
	}
	return session.UnmarshalSnapshot(data)
}

// Save implements session.Persistence.
func (s *Store) Save(ctx context.Context, snap session.Snapshot) error {
	data, err := session.MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.backend.Put(ctx, data); err != nil {
		return fmt.Errorf("persist: save: %w", err)
	}
	return nil
}

// Clear implements session.Persistence.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx); err != nil {
		return fmt.Errorf("persist: clear: %w", err)
	}
	return nil
}

var _ session.Persistence = (*Store)(nil)
