package store

import (
	"context"
	"errors"
)

// ErrFileNotFound is returned when a stored file is not found
var ErrFileNotFound = errors.New("file not found")

// Store is the blob storage backend holding the rendered image files. Paths
// are slash-separated and relative to the backend's root.
type Store interface {
	Write(ctx context.Context, path string, data []byte) error
	Read(ctx context.Context, path string) ([]byte, error)
	Exists(ctx context.Context, path string) (bool, error)
	Delete(ctx context.Context, path string) error
}
