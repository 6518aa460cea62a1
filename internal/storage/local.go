package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// tempPattern names in-flight writes; the reconciler skips them.
const tempPattern = ".archive-*.tmp"

// LocalStore keeps archived jobs under a directory on disk, one
// subdirectory per day.
type LocalStore struct {
	dir string
}

func NewLocalStore(dir string) *LocalStore {
	return &LocalStore{dir: dir}
}

// Save writes data to key atomically. contentType is ignored.
func (s *LocalStore) Save(_ context.Context, key string, data []byte, _ string) error {
	return writeFileAtomic(s.path(key), data)
}

func (s *LocalStore) Exists(_ context.Context, key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}

func (s *LocalStore) Type() string { return "local" }

func (s *LocalStore) Dir() string { return s.dir }

func (s *LocalStore) path(key string) string {
	return filepath.Join(s.dir, filepath.FromSlash(key))
}

func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("archive dir: %w", err)
	}
	f, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return fmt.Errorf("archive temp file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()
	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("archive write %s: %w", filepath.Base(path), err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("archive write %s: %w", filepath.Base(path), err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("archive commit %s: %w", filepath.Base(path), err)
	}
	return nil
}
