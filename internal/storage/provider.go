// Package storage defines where SURT prefix dumps are written. Backends
// live in the subpackages: local disk, Google Cloud Storage and memory.
package storage

import (
	"context"
	"io"
)

// ContentTypeSurts is the media type of a prefix dump.
const ContentTypeSurts = "text/plain; charset=utf-8"

// BlobStore writes one object and returns a URI that locates it.
type BlobStore interface {
	PutObject(ctx context.Context, path, contentType string, r io.Reader) (string, error)
}

// NoOpStore discards everything it is given. It backs dry runs.
type NoOpStore struct{}

// PutObject drains r and returns a "noop://" URI.
func (NoOpStore) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	return "noop://" + path, nil
}
