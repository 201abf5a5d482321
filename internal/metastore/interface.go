// Package metastore persists the single release record.
package metastore

import (
	"context"

	"apkd/internal/models"
)

// Store reads and overwrites the release record as a whole.
type Store interface {
	// Read returns the record, persisting models.DefaultRelease first when
	// nothing has been stored yet.
	Read(ctx context.Context) (models.Release, error)
	// Write replaces the stored record. Invalid records are rejected.
	Write(ctx context.Context, release models.Release) error
	Close() error
}
