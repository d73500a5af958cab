package objectstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/praeco/internal/interfaces"
)

// LocalStore stores objects as files under a base directory. Keys use
// forward slashes and map directly to subdirectories.
type LocalStore struct {
	baseDir string
	logger  arbor.ILogger
}

var _ interfaces.ObjectStore = (*LocalStore)(nil)

// NewLocalStore creates a filesystem-backed object store rooted at dir.
func NewLocalStore(dir string, logger arbor.ILogger) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory %s: %w", abs, err)
	}
	return &LocalStore{baseDir: abs, logger: logger}, nil
}

// resolve maps a key to an absolute path and rejects keys that would
// escape the base directory.
func (s *LocalStore) resolve(key string) (string, error) {
	path := filepath.Join(s.baseDir, filepath.FromSlash(key))
	path = filepath.Clean(path)
	if path != s.baseDir && !strings.HasPrefix(path, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid object key %q: escapes storage directory", key)
	}
	return path, nil
}

// Exists reports whether a file is stored under key.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return true, nil
}

// Put writes data under key, creating parent directories as needed.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	path, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", key, err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Object stored")

	return path, nil
}

// Get reads the file stored under key.
func (s *LocalStore) Get(ctx context.Context, key string) ([]byte, error) {
	path, err := s.resolve(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return data, nil
}
