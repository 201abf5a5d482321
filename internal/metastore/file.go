package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"apkd/internal/models"
)

// FileStore keeps the record as an indented JSON document on disk.
type FileStore struct {
	path string
	// mu serializes the create-on-first-read path inside one process.
	mu sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store for the JSON file at path.
func NewFileStore(path string) (*FileStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("metadata path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: abs}, nil
}

// Path returns the absolute location of the metadata file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) Read(ctx context.Context) (models.Release, error) {
	if err := ctx.Err(); err != nil {
		return models.Release{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		release := models.DefaultRelease()
		if err := s.writeLocked(release); err != nil {
			return models.Release{}, err
		}
		return release, nil
	}
	if err != nil {
		return models.Release{}, fmt.Errorf("read metadata %s: %w", s.path, err)
	}

	var release models.Release
	if err := json.Unmarshal(data, &release); err != nil {
		return models.Release{}, fmt.Errorf("decode metadata %s: %w", s.path, err)
	}
	return release, nil
}

func (s *FileStore) Write(ctx context.Context, release models.Release) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := release.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked(release)
}

func (s *FileStore) Close() error {
	return nil
}

// writeLocked replaces the file atomically via a sibling temp file.
func (s *FileStore) writeLocked(release models.Release) error {
	data, err := json.MarshalIndent(release, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".meta-*")
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", s.path, err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write metadata %s: %w", s.path, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync metadata %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace metadata %s: %w", s.path, err)
	}
	return nil
}
