package storage_test

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stash/internal/storage"

	"github.com/stretchr/testify/require"
)

func testMetadata(name string, contentType string, size int) storage.Metadata {
	return storage.Metadata{
		OriginalName: name,
		ContentType:  contentType,
		Size:         int64(size),
		IngestedAt:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Digest:       "abc",
	}
}

func TestLocalFileStoragePutAndOpen(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	engine := storage.NewLocalFileStorage(dataDir, "http://localhost:8888/")

	payload := []byte("hello local storage")
	key := "1714564800000-hello.txt"

	url, err := engine.Put(t.Context(), key, payload, testMetadata("hello.txt", "text/plain", len(payload)))
	require.NoError(t, err, "Put error")
	require.Equal(t, "http://localhost:8888/uploads/1714564800000-hello.txt", url)

	objPath := filepath.Join(dataDir, "uploads", key)
	got, err := os.ReadFile(objPath)
	require.NoError(t, err, "expected object file to exist")
	require.Equal(t, payload, got, "payload mismatch")

	raw, err := os.ReadFile(filepath.Join(dataDir, "uploads", ".meta", key+".json"))
	require.NoError(t, err, "expected metadata sidecar")
	var meta storage.Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	require.Equal(t, "hello.txt", meta.OriginalName)
	require.Equal(t, "text/plain", meta.ContentType)
	require.EqualValues(t, len(payload), meta.Size)

	f, openedMeta, err := engine.Open(key)
	require.NoError(t, err, "Open error")
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	require.Equal(t, payload, body)
	require.Equal(t, meta, openedMeta)
}

func TestLocalFileStorageCreatesDirectoryOnDemand(t *testing.T) {
	t.Parallel()

	dataDir := filepath.Join(t.TempDir(), "does", "not", "exist")
	engine := storage.NewLocalFileStorage(dataDir, "http://example.test")

	_, err := engine.Put(t.Context(), "1-a.bin", []byte{1, 2, 3}, testMetadata("a.bin", "application/octet-stream", 3))
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dataDir, "uploads"))
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalFileStorageInvalidKey(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir(), "http://example.test")

	for _, key := range []string{"", "..", ".meta", "a/b", `a\b`} {
		_, err := engine.Put(t.Context(), key, []byte("data"), storage.Metadata{})
		require.Errorf(t, err, "expected error for key %q", key)

		_, _, err = engine.Open(key)
		require.ErrorIsf(t, err, storage.ErrNotFound, "expected not found for key %q", key)
	}
}

func TestLocalFileStorageKeepsMetadataApart(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()
	engine := storage.NewLocalFileStorage(dataDir, "http://example.test")

	// An object named like a sidecar must not clash with the sidecar of
	// another object.
	first := "1-report"
	second := "1-report.json"
	_, err := engine.Put(t.Context(), first, []byte("one"), testMetadata("report", "text/plain", 3))
	require.NoError(t, err)
	_, err = engine.Put(t.Context(), second, []byte("two"), testMetadata("report.json", "application/json", 3))
	require.NoError(t, err)
	_, err = engine.Put(t.Context(), "1-x.meta.json", []byte("three"), testMetadata("x.meta.json", "application/json", 5))
	require.NoError(t, err)

	for key, want := range map[string]string{first: "one", second: "two", "1-x.meta.json": "three"} {
		f, meta, err := engine.Open(key)
		require.NoError(t, err)
		body, err := io.ReadAll(f)
		require.NoError(t, f.Close())
		require.NoError(t, err)
		require.Equal(t, want, string(body))
		require.EqualValues(t, len(want), meta.Size)
	}
}

func TestLocalFileStorageOpenMissing(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir(), "http://example.test")

	_, _, err := engine.Open("123-missing.txt")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLocalFileStorageEscapesURL(t *testing.T) {
	t.Parallel()

	engine := storage.NewLocalFileStorage(t.TempDir(), "https://site.example")

	url, err := engine.URL(t.Context(), "1-a b.txt")
	require.NoError(t, err)
	require.Equal(t, "https://site.example/uploads/1-a%20b.txt", url)
}
