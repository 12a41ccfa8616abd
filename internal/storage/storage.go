// Package storage provides the uploads directory where every request artifact
// lives, and publishing of finished videos. It defines the Storage interface
// (port) and implementations for local disk and S3.
package storage

import (
	"context"
	"io"
)

// Storage defines the interface for request artifacts and published outputs.
type Storage interface {
	// Dir returns the uploads directory. All artifact paths live inside it.
	Dir() string

	// Save writes data to path, which must be inside Dir and must not exist.
	Save(ctx context.Context, path string, data io.Reader) error

	// Cleanup removes the specified files. Files that do not exist are not
	// an error. It continues cleanup even if some files fail to delete.
	Cleanup(ctx context.Context, paths []string) error

	// Publish makes a finished output available and returns its URL.
	Publish(ctx context.Context, path string) (url string, err error)
}
