package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"sync"
)

// MemoryStore keeps objects in process memory. It backs the "memory"
// deployment mode and stands in for real storage in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data []byte
	meta Metadata
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (s *MemoryStore) Name() string {
	return "memory"
}

func (s *MemoryStore) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	s.mu.Lock()
	s.objects[key] = memoryObject{data: bytes.Clone(data), meta: meta}
	s.mu.Unlock()

	return s.URL(ctx, key)
}

func (s *MemoryStore) URL(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	_, ok := s.objects[key]
	s.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return "mem://" + Namespace + "/" + url.PathEscape(key), nil
}

// Get returns a copy of the payload and metadata stored under key.
func (s *MemoryStore) Get(key string) ([]byte, Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, Metadata{}, false
	}
	return bytes.Clone(obj.data), obj.meta, true
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
