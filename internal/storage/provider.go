// Package storage defines the blob store contract shared by the snapshot
// persister and the run log. Implementations live in the gcs, local, and
// memory subpackages.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by GetObject when no blob exists at the path.
var ErrNotFound = errors.New("object not found")

// BlobStore reads and overwrites whole objects by path.
type BlobStore interface {
	// PutObject writes r to path, replacing any existing object, and returns its URI.
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	// GetObject returns the full contents at path or an error wrapping ErrNotFound.
	GetObject(ctx context.Context, path string) ([]byte, error)
}
