package filesystemStore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"image-registry/store"
)

// FilesystemStore keeps rendered files in a directory tree under a single
// root.
type FilesystemStore struct {
	baseDir string
}

// New creates a new filesystem-based store
func New(baseDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

func (s *FilesystemStore) fullPath(path string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(path))
}

func (s *FilesystemStore) Write(_ context.Context, path string, data []byte) error {
	fullPath := s.fullPath(path)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return nil
}

func (s *FilesystemStore) Read(_ context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, store.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

func (s *FilesystemStore) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(s.fullPath(path))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat file: %w", err)
	}

	return true, nil
}

func (s *FilesystemStore) Delete(_ context.Context, path string) error {
	if err := os.Remove(s.fullPath(path)); err != nil {
		if os.IsNotExist(err) {
			return store.ErrFileNotFound
		}
		return fmt.Errorf("failed to remove file: %w", err)
	}

	return nil
}
