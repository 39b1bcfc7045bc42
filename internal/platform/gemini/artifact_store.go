package gemini

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ArtifactStore persists generated bytes and returns a locator for them.
type ArtifactStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// FileStore writes artifacts under a directory and serves them from baseURL.
type FileStore struct {
	dir     string
	baseURL string
}

// NewFileStore creates the directory if needed and returns a FileStore.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: artifact directory cannot be empty", ErrInvalidConfig)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Save writes data to name inside the store directory.
func (s *FileStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean := filepath.Base(filepath.Clean("/" + name))
	if clean == "/" || clean == "." {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	if err := os.WriteFile(filepath.Join(s.dir, clean), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact %s: %w", clean, err)
	}
	return s.baseURL + "/" + clean, nil
}
