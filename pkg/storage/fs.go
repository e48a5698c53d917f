package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// FS stores blobs on the local filesystem, mainly for development and
// tests.
type FS struct {
	dir string
}

// NewFS creates a filesystem store rooted at dir.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir %s: %w", dir, err)
	}
	return &FS{dir: dir}, nil
}

// Store implements Store. The locator is a path relative to the root.
func (f *FS) Store(_ context.Context, data []byte, filename string) (Object, error) {
	name := uuid.NewString() + "_" + filepath.Base(filename)
	if err := os.WriteFile(filepath.Join(f.dir, name), data, 0o644); err != nil {
		return Object{}, fmt.Errorf("storage: write %s: %w", name, err)
	}
	return Object{Locator: name, SizeBytes: int64(len(data))}, nil
}

// Fetch implements Store.
func (f *FS) Fetch(_ context.Context, locator string) ([]byte, error) {
	if strings.Contains(locator, "..") {
		return nil, fmt.Errorf("storage: malformed locator %q", locator)
	}
	data, err := os.ReadFile(filepath.Join(f.dir, locator))
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", locator, err)
	}
	return data, nil
}
