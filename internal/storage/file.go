package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/parley/internal/fsutil"
)

// FileStore keeps each blob in its own JSON file under a directory, written
// atomically so a crash mid-write never corrupts the previous snapshot.
type FileStore struct {
	dir string
}

// NewFileStore creates a store rooted at dir, creating it if needed
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Get reads the blob for key
func (s *FileStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}

// Put writes the blob for key atomically
func (s *FileStore) Put(key string, data []byte) error {
	if err := fsutil.AtomicWrite(s.path(key), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", key, err)
	}
	return nil
}

// Close is a no-op for the file store
func (s *FileStore) Close() error {
	return nil
}

func (s *FileStore) path(key string) string {
	// Keys are internal constants, but keep them filesystem-safe anyway
	name := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(s.dir, name+".json")
}
