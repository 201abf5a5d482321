package metastore

import (
	"context"
	"sync"

	"apkd/internal/models"
)

// MemoryStore keeps the record in process memory.
type MemoryStore struct {
	mu      sync.Mutex
	release *models.Release
	writes  int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Read(ctx context.Context) (models.Release, error) {
	if err := ctx.Err(); err != nil {
		return models.Release{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.release == nil {
		release := models.DefaultRelease()
		m.release = &release
	}
	return *m.release, nil
}

func (m *MemoryStore) Write(ctx context.Context, release models.Release) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := release.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release = &release
	m.writes++
	return nil
}

// Writes returns how many successful writes the store has accepted.
func (m *MemoryStore) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *MemoryStore) Close() error {
	return nil
}
