package persist

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed record layout: version | salt | nonce | ciphertext.
const (
	sealVersion = 1
	saltSize    = 16
)

// Argon2id parameters for deriving the record key from the passphrase.
const (
	argonTime    = 1
	argonMemory  = 19 * 1024
	argonThreads = 1
)

// Sealed wraps a Backend and encrypts everything written through it with
// XChaCha20-Poly1305. The key is derived from a passphrase with Argon2id;
// the salt is stored in each record. The Backend key name is used as
// additional data, so a record copied to another key fails to open.
type Sealed struct {
	inner      Backend
	passphrase []byte
	ad         []byte

	mu   sync.Mutex
	salt []byte
	key  []byte
}

// NewSealed wraps inner. label binds records to their location; pass the
// key or path the inner backend uses.
func NewSealed(inner Backend, passphrase []byte, label string) (*Sealed, error) {
	if inner == nil {
		return nil, ErrNilBackend
	}
	if len(passphrase) == 0 {
		return nil, ErrSealKey
	}
	return &Sealed{
		inner:      inner,
		passphrase: bytes.Clone(passphrase),
		ad:         []byte(label),
	}, nil
}

// Get implements Backend.
func (s *Sealed) Get(ctx context.Context) ([]byte, error) {
	rec, err := s.inner.Get(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	return s.open(rec)
}

// Put implements Backend.
func (s *Sealed) Put(ctx context.Context, data []byte) error {
	rec, err := s.seal(data)
	if err != nil {
		return err
	}
	return s.inner.Put(ctx, rec)
}

// Delete implements Backend.
func (s *Sealed) Delete(ctx context.Context) error {
	return s.inner.Delete(ctx)
}

func (s *Sealed) seal(plain []byte) ([]byte, error) {
	salt, key, err := s.currentKey()
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("persist: cipher: %w", err)
	}

	out := make([]byte, 0, 1+saltSize+aead.NonceSize()+len(plain)+aead.Overhead())
	out = append(out, sealVersion)
	out = append(out, salt...)

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("persist: nonce: %w", err)
	}
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plain, s.ad), nil
}

func (s *Sealed) open(rec []byte) ([]byte, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	if len(rec) < 1+saltSize+nonceSize+chacha20poly1305.Overhead || rec[0] != sealVersion {
		return nil, ErrSealedFormat
	}
	salt := rec[1 : 1+saltSize]
	nonce := rec[1+saltSize : 1+saltSize+nonceSize]
	ciphertext := rec[1+saltSize+nonceSize:]

	aead, err := chacha20poly1305.NewX(s.keyFor(salt))
	if err != nil {
		return nil, fmt.Errorf("persist: cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, s.ad)
	if err != nil {
		return nil, ErrUnseal
	}
	return plain, nil
}

// currentKey returns the salt and key used for writes, deriving them on
// first use.
func (s *Sealed) currentKey() ([]byte, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		salt := make([]byte, saltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("persist: salt: %w", err)
		}
		s.salt = salt
		s.key = derive(s.passphrase, salt)
	}
	return s.salt, s.key, nil
}

// keyFor returns the key for a record's salt. Records written by this
// process reuse the cached key; others are derived on demand.
func (s *Sealed) keyFor(salt []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key != nil && bytes.Equal(s.salt, salt) {
		return s.key
	}
	key := derive(s.passphrase, salt)
	if s.key == nil {
		s.salt = bytes.Clone(salt)
		s.key = key
	}
	return key
}

func derive(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

var _ Backend = (*Sealed)(nil)
