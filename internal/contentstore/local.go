package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const tmpDirName = ".tmp"

// Local stores artifacts as plain files in a single directory.
type Local struct {
	root string
}

var _ Store = (*Local)(nil)

// NewLocal creates a directory store rooted at root.
func NewLocal(root string) (*Local, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("content directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(abs, tmpDirName), 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute store directory.
func (l *Local) Root() string {
	return l.root
}

// Save streams r into a temp file and renames it over the final name.
func (l *Local) Save(ctx context.Context, rawName string, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := Sanitize(rawName)
	dst, err := l.pathFor(name)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Join(l.root, tmpDirName), "save-*")
	if err != nil {
		return "", err
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := io.Copy(tmp, r); err != nil {
		cleanup()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		cleanup()
		return "", err
	}
	return name, nil
}

// Open returns the artifact as an *os.File, which supports seeking.
func (l *Local) Open(ctx context.Context, name string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name = Sanitize(name)
	path, err := l.pathFor(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if !info.Mode().IsRegular() {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return &Object{
		ObjectInfo: ObjectInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()},
		Body:       f,
	}, nil
}

// Stat reports size and modification time of an artifact.
func (l *Local) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}
	name = Sanitize(name)
	path, err := l.pathFor(name)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ObjectInfo{}, fmt.Errorf("%s: %w", name, ErrNotFound)
		}
		return ObjectInfo{}, err
	}
	if !info.Mode().IsRegular() {
		return ObjectInfo{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return ObjectInfo{Name: name, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Close is a no-op for directory stores.
func (l *Local) Close() error {
	return nil
}

func (l *Local) pathFor(name string) (string, error) {
	joined := filepath.Join(l.root, name)
	rel, err := filepath.Rel(l.root, joined)
	if err != nil {
		return "", err
	}
	if rel == "." || rel == tmpDirName || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("invalid artifact name %q", name)
	}
	return joined, nil
}
