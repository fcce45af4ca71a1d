package blob

import (
	"context"
	"sync"
)

// MemoryBaseURL prefixes URLs issued by the memory store.
const MemoryBaseURL = "mem://blobs"

// Memory is an in-process Store for tests and local runs. FailPut and
// FailDelete, when set, are returned by the next calls instead of touching
// the map.
type Memory struct {
	mu   sync.RWMutex
	objs map[string]memoryObject

	FailPut    error
	FailDelete error
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemory returns an empty in-memory blob store.
func NewMemory() *Memory {
	return &Memory{objs: make(map[string]memoryObject)}
}

// Driver returns DriverMemory.
func (m *Memory) Driver() Driver { return DriverMemory }

// Put stores a copy of data.
func (m *Memory) Put(_ context.Context, key string, data []byte, contentType string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut != nil {
		return "", m.FailPut
	}
	m.objs[key] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return joinURL(MemoryBaseURL, key), nil
}

// Delete removes the blob behind url.
func (m *Memory) Delete(_ context.Context, url string) error {
	key, err := keyFromURL(MemoryBaseURL, url)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete != nil {
		return m.FailDelete
	}
	delete(m.objs, key)
	return nil
}

// Get returns the bytes and content type stored behind url.
func (m *Memory) Get(url string) ([]byte, string, bool) {
	key, err := keyFromURL(MemoryBaseURL, url)
	if err != nil {
		return nil, "", false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objs[key]
	return obj.data, obj.contentType, ok
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objs)
}
