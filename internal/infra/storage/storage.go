// Package storage abstracts the feature export destination so the export
// tasklet can target the local file system or a GCS bucket through one API.
package storage

import (
	"context"
	"io"
)

// ObjectStore is the write side of a storage backend. Keys are slash-separated
// relative paths; the backend maps them onto its own namespace.
type ObjectStore interface {
	// Upload writes the data stream under key, creating intermediate
	// directories or object prefixes as needed.
	Upload(ctx context.Context, key string, data io.Reader, contentType string) error
	// Download opens the object at key. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// List calls fn for every key under prefix.
	List(ctx context.Context, prefix string, fn func(key string) error) error
	// Delete removes the object at key.
	Delete(ctx context.Context, key string) error
	// Type identifies the backend ("local" or "gcs").
	Type() string
	// Close releases backend resources.
	Close() error
}
