package persist

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// File is a Backend holding the snapshot in a single file. Writes go to a
// temporary file in the same directory which is then renamed over the
// target, so a reader sees either the old or the new snapshot.
type File struct {
	path string
	perm fs.FileMode
}

// NewFile returns a File backend at path. The file is created with mode
// 0600 since it holds credentials.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	return &File{path: path, perm: 0o600}, nil
}

// Path returns the snapshot file path.
func (f *File) Path() string {
	return f.path
}

// Get implements Backend.
func (f *File) Get(context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put implements Backend.
func (f *File) Put(_ context.Context, data []byte) (err error) {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if err := tmp.Chmod(f.perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (f *File) Delete(context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
