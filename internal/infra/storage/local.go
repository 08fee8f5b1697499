package storage

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pedalmetry/pedalmetry/internal/support/exception"
	"github.com/pedalmetry/pedalmetry/internal/support/logger"
)

const moduleName = "storage"

// LocalStore implements ObjectStore on a directory tree.
type LocalStore struct {
	baseDir string
}

var _ ObjectStore = (*LocalStore)(nil)

// NewLocalStore creates a LocalStore rooted at baseDir, creating the directory
// when missing.
func NewLocalStore(baseDir string) (*LocalStore, error) {
	if baseDir == "" {
		return nil, exception.NewBatchError(moduleName, "local storage requires a base path", nil, false, false)
	}

	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, exception.NewBatchError(moduleName, "failed to stat base path", err, false, false)
		}
		if err := os.MkdirAll(baseDir, 0755); err != nil {
			return nil, exception.NewBatchError(moduleName, "failed to create base path", err, false, false)
		}
	} else if !info.IsDir() {
		return nil, exception.NewBatchErrorf(moduleName, "base path '%s' is not a directory", baseDir)
	}

	return &LocalStore{baseDir: baseDir}, nil
}

// resolve joins key onto the base directory, refusing keys that escape it.
func (s *LocalStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) || filepath.IsAbs(cleaned) {
		return "", exception.NewBatchErrorf(moduleName, "key '%s' escapes the storage root", key)
	}
	return filepath.Join(s.baseDir, cleaned), nil
}

func (s *LocalStore) Upload(ctx context.Context, key string, data io.Reader, contentType string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return exception.NewBatchError(moduleName, "failed to create directory", err, false, false)
	}

	file, err := os.Create(fullPath)
	if err != nil {
		return exception.NewBatchError(moduleName, "failed to create file", err, false, false)
	}
	defer file.Close()

	if _, err := io.Copy(file, data); err != nil {
		return exception.NewBatchError(moduleName, "failed to write file", err, false, false)
	}
	logger.Debugf("Wrote '%s' to local storage.", fullPath)
	return nil
}

func (s *LocalStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to open file", err, false, false)
	}
	return file, nil
}

func (s *LocalStore) List(ctx context.Context, prefix string, fn func(key string) error) error {
	root, err := s.resolve(prefix)
	if err != nil {
		return err
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		return fn(filepath.ToSlash(rel))
	})
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	fullPath, err := s.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		return exception.NewBatchError(moduleName, "failed to delete file", err, false, false)
	}
	return nil
}

func (s *LocalStore) Type() string { return "local" }

func (s *LocalStore) Close() error { return nil }
