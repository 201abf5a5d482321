// Package contentstore holds uploaded artifact files keyed by sanitized
// filename.
package contentstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when no artifact exists under the requested name.
var ErrNotFound = errors.New("artifact not found")

// ObjectInfo describes one stored artifact.
type ObjectInfo struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Object is an opened artifact. Callers must close Body.
// Body implements io.ReadSeeker when the backend supports random access.
type Object struct {
	ObjectInfo
	Body io.ReadCloser
}

// Store is the artifact storage abstraction used by the release service.
type Store interface {
	// Save writes r under the sanitized form of rawName, replacing any
	// existing artifact with that name, and returns the name used.
	Save(ctx context.Context, rawName string, r io.Reader) (string, error)
	Open(ctx context.Context, name string) (*Object, error)
	Stat(ctx context.Context, name string) (ObjectInfo, error)
	Close() error
}
