package contentstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Memory keeps artifacts in process memory.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	data    []byte
	modTime time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject), now: time.Now}
}

func (m *Memory) Save(ctx context.Context, rawName string, r io.Reader) (string, error) {
	if r == nil {
		return "", fmt.Errorf("reader is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	name := Sanitize(rawName)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = memoryObject{data: data, modTime: m.now().UTC()}
	return name, nil
}

func (m *Memory) Open(ctx context.Context, name string) (*Object, error) {
	info, obj, err := m.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return &Object{ObjectInfo: info, Body: readSeekNopCloser{bytes.NewReader(obj.data)}}, nil
}

func (m *Memory) Stat(ctx context.Context, name string) (ObjectInfo, error) {
	info, _, err := m.lookup(ctx, name)
	return info, err
}

func (m *Memory) Close() error {
	return nil
}

// Names returns the stored artifact names.
func (m *Memory) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.objects))
	for name := range m.objects {
		names = append(names, name)
	}
	return names
}

func (m *Memory) lookup(ctx context.Context, name string) (ObjectInfo, memoryObject, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, memoryObject{}, err
	}
	name = Sanitize(name)

	m.mu.RLock()
	obj, ok := m.objects[name]
	m.mu.RUnlock()
	if !ok {
		return ObjectInfo{}, memoryObject{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return ObjectInfo{Name: name, Size: int64(len(obj.data)), ModTime: obj.modTime}, obj, nil
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }
