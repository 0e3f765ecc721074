package secret

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Provider resolves secrets by reference string.
//
// Implementations must be safe for concurrent use and must not log secret values.
type Provider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
	Close() error
}

// EnvProvider resolves "secretref:env:NAME" from the process environment.
type EnvProvider struct{}

// Name returns "env".
func (EnvProvider) Name() string { return "env" }

// Resolve returns the value of the environment variable ref.
func (EnvProvider) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("%w: env %s", ErrNotFound, ref)
	}
	return v, nil
}

// Close is a no-op.
func (EnvProvider) Close() error { return nil }

// FileProvider resolves "secretref:file:PATH" to the file's contents with
// trailing newlines removed. Relative paths are taken from Dir.
type FileProvider struct {
	Dir string
}

// Name returns "file".
func (FileProvider) Name() string { return "file" }

// Resolve reads the file named by ref.
func (p FileProvider) Resolve(_ context.Context, ref string) (string, error) {
	path := ref
	if !filepath.IsAbs(path) && p.Dir != "" {
		path = filepath.Join(p.Dir, path)
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", fmt.Errorf("%w: file %s", ErrNotFound, ref)
	}
	if err != nil {
		return "", fmt.Errorf("secret: read %s: %w", ref, err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Close is a no-op.
func (FileProvider) Close() error { return nil }

var (
	_ Provider = EnvProvider{}
	_ Provider = FileProvider{}
)
