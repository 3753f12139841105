package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileFetcher resolves storage URIs against a base directory on the local
// filesystem. Production deployments swap in an object-storage fetcher; the
// CLI and tests use this one.
//
// Reads go through os.Root so a storage URI can never escape the base
// directory via .. or symlinks.
type FileFetcher struct {
	baseDir string
}

// NewFileFetcher creates a fetcher rooted at baseDir.
func NewFileFetcher(baseDir string) (*FileFetcher, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}
	return &FileFetcher{baseDir: abs}, nil
}

// Fetch reads the file named by storageURI, relative to the base directory.
// A "file://" prefix is accepted and stripped.
func (f *FileFetcher) Fetch(ctx context.Context, storageURI string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel := strings.TrimPrefix(storageURI, "file://")
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return nil, fmt.Errorf("empty storage URI")
	}

	root, err := os.OpenRoot(f.baseDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage root: %w", err)
	}
	defer func() {
		_ = root.Close()
	}()

	data, err := root.ReadFile(rel)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", storageURI, err)
	}
	return data, nil
}
