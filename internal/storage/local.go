package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/samber/lo"
)

// Static errors for storage operations.
var (
	// ErrOutsideDir is returned when a path escapes the uploads directory.
	ErrOutsideDir = errors.New("path is outside the uploads directory")
)

// DefaultPublicPrefix is the URL prefix under which local outputs are served.
const DefaultPublicPrefix = "/uploads"

// LocalStorage implements the Storage interface using local disk.
// Published outputs stay in the uploads directory and are served by the
// HTTP layer under the public prefix.
type LocalStorage struct {
	dir          string
	publicPrefix string
}

// NewLocalStorage creates a new LocalStorage instance.
// If dir is empty, a directory under os.TempDir() is used. If publicPrefix is
// empty, DefaultPublicPrefix is used. The directory is created if it doesn't
// exist.
func NewLocalStorage(dir, publicPrefix string) (*LocalStorage, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "narration-video", "uploads")
	}
	if publicPrefix == "" {
		publicPrefix = DefaultPublicPrefix
	}

	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve uploads directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}

	return &LocalStorage{
		dir:          abs,
		publicPrefix: "/" + strings.Trim(publicPrefix, "/"),
	}, nil
}

// Dir returns the uploads directory path.
func (s *LocalStorage) Dir() string {
	return s.dir
}

// Save writes data to a new file at path.
func (s *LocalStorage) Save(ctx context.Context, path string, data io.Reader) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := s.checkInside(path); err != nil {
		return err
	}

	// #nosec G304 - path is built from the uploads directory and a token
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close file: %w", err)
	}

	return nil
}

// Cleanup removes the specified files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) Cleanup(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range lo.Uniq(lo.Compact(paths)) {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Publish returns the public URL of an output kept in the uploads directory.
func (s *LocalStorage) Publish(ctx context.Context, p string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := s.checkInside(p); err != nil {
		return "", err
	}
	if _, err := os.Stat(p); err != nil {
		return "", fmt.Errorf("stat output: %w", err)
	}
	return path.Join(s.publicPrefix, filepath.Base(p)), nil
}

// checkInside rejects paths that do not resolve to a direct child of dir.
func (s *LocalStorage) checkInside(p string) error {
	abs, err := filepath.Abs(p)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrOutsideDir, p)
	}
	if filepath.Dir(abs) != s.dir {
		return fmt.Errorf("%w: %s", ErrOutsideDir, p)
	}
	return nil
}

// Verify interface implementation at compile time.
var _ Storage = (*LocalStorage)(nil)
