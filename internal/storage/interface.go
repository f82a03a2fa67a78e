package storage

import (
	"context"
	"errors"
	"io"
)

// ErrObjectNotFound is returned by Open and Size when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// FileStore holds uploaded catalog files addressed by key.
type FileStore interface {
	// Save writes size bytes from reader under key
	Save(ctx context.Context, key string, reader io.Reader, size int64) error

	// Open returns a reader positioned at the start of the object
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists checks if an object exists
	Exists(ctx context.Context, key string) (bool, error)

	// Size returns the object's length in bytes
	Size(ctx context.Context, key string) (int64, error)

	// Delete deletes an object from storage
	Delete(ctx context.Context, key string) error
}
