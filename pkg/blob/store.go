// Package blob stores opaque snapshot archives under string keys.
package blob

import (
	"context"
	"io"
)

// Store is the archive backend used for history snapshots.
type Store interface {
	// Put writes content under key, replacing any previous blob.
	Put(ctx context.Context, key string, r io.Reader) error
	// Get opens the blob. Missing keys return a NotFound domain error.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes a blob. Missing keys return a NotFound domain error.
	Delete(ctx context.Context, key string) error
}
