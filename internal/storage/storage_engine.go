package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key has no stored object.
var ErrNotFound = errors.New("object not found")

// Namespace is the logical directory every upload is stored under.
const Namespace = "uploads"

// Metadata is persisted alongside each stored object.
type Metadata struct {
	OriginalName string    `json:"originalName"`
	ContentType  string    `json:"contentType"`
	Size         int64     `json:"size"`
	IngestedAt   time.Time `json:"ingestedAt"`
	Digest       string    `json:"digest,omitempty"`
}

// StoredObjectRef describes an object after it has been persisted. It
// outlives the request that created it.
type StoredObjectRef struct {
	Key          string    `json:"key"`
	URL          string    `json:"url"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"contentType"`
	OriginalName string    `json:"originalName"`
	IngestedAt   time.Time `json:"ingestedAt"`
	Backend      string    `json:"backend"`
	Digest       string    `json:"digest,omitempty"`
}

// Backend persists upload payloads under unique keys and resolves them to
// dereferenceable URLs. Implementations must tolerate concurrent Put calls
// with distinct keys.
type Backend interface {
	// Name identifies the backend in logs and metadata.
	Name() string

	// Put stores data under key and returns its URL. The object is durable
	// by the time Put returns.
	Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error)

	// URL returns the dereferenceable URL of a previously stored key.
	URL(ctx context.Context, key string) (string, error)
}
