package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
)

// InlineStore persists nothing. It encodes each payload as a data URI and
// hands that back as the object's URL. It is the degraded mode used when
// the durable store cannot be constructed, and it only remembers the URIs
// it produced for as long as the instance lives.
type InlineStore struct {
	mu   sync.Mutex
	uris map[string]string
}

// NewInlineStore returns an empty InlineStore.
func NewInlineStore() *InlineStore {
	return &InlineStore{uris: make(map[string]string)}
}

func (s *InlineStore) Name() string {
	return "inline"
}

// DataURI encodes data as a base64 data URI of the given MIME type.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func (s *InlineStore) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	uri := DataURI(meta.ContentType, data)

	s.mu.Lock()
	s.uris[key] = uri
	s.mu.Unlock()

	return uri, nil
}

func (s *InlineStore) URL(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uri, ok := s.uris[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return uri, nil
}
