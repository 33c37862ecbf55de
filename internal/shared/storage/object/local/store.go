package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"skinscan-backend/internal/shared/storage/object"
	"skinscan-backend/internal/shared/util"
)

// Store implements ImageArchive using the local filesystem.
type Store struct {
	baseDir string
}

// New creates a new local archive rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Put writes the image under a directory derived from the clinic id.
func (s *Store) Put(ctx context.Context, tenantID, analysisID string, image []byte) (string, error) {
	name, err := util.ObjectName(analysisID)
	if err != nil {
		return "", fmt.Errorf("sanitize analysis id: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ext, _ := object.Extension(image)
	tenantKey := util.HashKey(tenantID)
	dirPath := filepath.Join(s.baseDir, tenantKey)
	if err := os.MkdirAll(dirPath, 0o755); err != nil {
		return "", fmt.Errorf("mkdir: %w", err)
	}

	relPath := filepath.Join(tenantKey, name+ext)
	if err := os.WriteFile(filepath.Join(s.baseDir, relPath), image, 0o644); err != nil {
		return "", fmt.Errorf("write image: %w", err)
	}
	return filepath.ToSlash(relPath), nil
}

// Open opens a stored image for reading.
func (s *Store) Open(ctx context.Context, storageKey string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.Contains(storageKey, "..") {
		return nil, fmt.Errorf("invalid storage key")
	}
	fullPath := filepath.Join(s.baseDir, filepath.FromSlash(storageKey))
	f, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return f, nil
}

var _ object.ImageArchive = (*Store)(nil)
