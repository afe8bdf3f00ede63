package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
)

// metaDir holds the JSON sidecars, one <key>.json per object. Keys never
// start with a dot, so it cannot collide with an object.
const metaDir = ".meta"

// LocalFileStorage is a Backend that writes uploads below
// <dataDir>/uploads and serves them from <siteURL>/uploads/<key>. Each
// object gets a JSON sidecar under <dataDir>/uploads/.meta.
type LocalFileStorage struct {
	dataDir string
	siteURL string
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at dataDir,
// producing URLs under siteURL.
func NewLocalFileStorage(dataDir string, siteURL string) *LocalFileStorage {
	return &LocalFileStorage{
		dataDir: dataDir,
		siteURL: strings.TrimRight(siteURL, "/"),
	}
}

func (s *LocalFileStorage) Name() string {
	return "local"
}

// ObjectPath computes the full filesystem path for key. Keys must be a
// single path segment not starting with a dot.
func (s *LocalFileStorage) ObjectPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, ".") || strings.ContainsAny(key, `/\`) {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(s.dataDir, Namespace, key), nil
}

// MetadataPath is where the sidecar for key lives.
func (s *LocalFileStorage) MetadataPath(key string) (string, error) {
	if _, err := s.ObjectPath(key); err != nil {
		return "", err
	}
	return filepath.Join(s.dataDir, Namespace, metaDir, key+".json"), nil
}

func (s *LocalFileStorage) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	objPath, err := s.ObjectPath(key)
	if err != nil {
		return "", err
	}
	metaPath, err := s.MetadataPath(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	if err := atomic.WriteFile(objPath, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("write object %q: %w", key, err)
	}

	if err := atomic.WriteFile(metaPath, bytes.NewReader(sidecar)); err != nil {
		// An object without its sidecar is still served, but clean up so
		// that a failed Put leaves nothing behind.
		_ = os.Remove(objPath)
		return "", fmt.Errorf("write metadata for %q: %w", key, err)
	}

	return s.URL(ctx, key)
}

func (s *LocalFileStorage) URL(ctx context.Context, key string) (string, error) {
	if _, err := s.ObjectPath(key); err != nil {
		return "", err
	}
	return s.siteURL + "/" + Namespace + "/" + url.PathEscape(key), nil
}

// Open returns the stored payload and metadata for key.
func (s *LocalFileStorage) Open(key string) (*os.File, Metadata, error) {
	objPath, err := s.ObjectPath(key)
	if err != nil {
		return nil, Metadata{}, ErrNotFound
	}
	metaPath, _ := s.MetadataPath(key)

	var meta Metadata
	raw, err := os.ReadFile(metaPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Objects copied in by hand have no sidecar; serve them anyway.
	case err != nil:
		return nil, Metadata{}, fmt.Errorf("read metadata for %q: %w", key, err)
	default:
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, Metadata{}, fmt.Errorf("decode metadata for %q: %w", key, err)
		}
	}

	f, err := os.Open(objPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Metadata{}, ErrNotFound
	}
	if err != nil {
		return nil, Metadata{}, err
	}

	return f, meta, nil
}
