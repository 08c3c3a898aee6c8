package memoryStore

import (
	"context"
	"sync"

	"image-registry/store"
)

// MemoryStore implements the store interface using in-memory storage.
// Used only for testing.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string][]byte

	// FailDelete can be set by tests to make Delete fail for given paths.
	FailDelete map[string]bool
}

// New creates a new memory-based store
func New() *MemoryStore {
	return &MemoryStore{
		files:      make(map[string][]byte),
		FailDelete: make(map[string]bool),
	}
}

func (s *MemoryStore) Write(_ context.Context, path string, data []byte) error {
	content := make([]byte, len(data))
	copy(content, data)

	s.mu.Lock()
	s.files[path] = content
	s.mu.Unlock()

	return nil
}

func (s *MemoryStore) Read(_ context.Context, path string) ([]byte, error) {
	s.mu.RLock()
	content, exists := s.files[path]
	s.mu.RUnlock()

	if !exists {
		return nil, store.ErrFileNotFound
	}

	// Return a copy to prevent external modifications
	result := make([]byte, len(content))
	copy(result, content)

	return result, nil
}

func (s *MemoryStore) Exists(_ context.Context, path string) (bool, error) {
	s.mu.RLock()
	_, exists := s.files[path]
	s.mu.RUnlock()

	return exists, nil
}

func (s *MemoryStore) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailDelete[path] {
		return &DeleteRefusedError{Path: path}
	}

	if _, exists := s.files[path]; !exists {
		return store.ErrFileNotFound
	}

	delete(s.files, path)

	return nil
}

// Clear removes all files from memory (useful for testing)
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	s.files = make(map[string][]byte)
	s.mu.Unlock()
}

// Count returns the number of files stored (useful for testing)
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.files)
}

// Paths returns every stored path (useful for testing)
func (s *MemoryStore) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.files))
	for path := range s.files {
		paths = append(paths, path)
	}

	return paths
}

// DeleteRefusedError is returned when a test has marked a path as failing.
type DeleteRefusedError struct {
	Path string
}

func (e *DeleteRefusedError) Error() string {
	return "delete refused for path: " + e.Path
}
