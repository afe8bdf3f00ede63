package storage_test

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"stash/internal/storage"

	"github.com/stretchr/testify/require"
)

func TestInlineStoreDataURI(t *testing.T) {
	t.Parallel()

	engine := storage.NewInlineStore()
	payload := []byte("inline me")

	uri, err := engine.Put(t.Context(), "1-a.txt", payload, testMetadata("a.txt", "text/plain", len(payload)))
	require.NoError(t, err)
	require.Equal(t, "data:text/plain;base64,"+base64.StdEncoding.EncodeToString(payload), uri)

	again, err := engine.URL(t.Context(), "1-a.txt")
	require.NoError(t, err)
	require.Equal(t, uri, again)

	_, err = engine.URL(t.Context(), "2-unknown.txt")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDataURIDefaultsContentType(t *testing.T) {
	t.Parallel()

	require.Equal(t, "data:application/octet-stream;base64,AQI=", storage.DataURI("", []byte{1, 2}))
}

func TestMemoryStoreConcurrentPuts(t *testing.T) {
	t.Parallel()

	engine := storage.NewMemoryStore()

	var wg sync.WaitGroup
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := strings.Repeat("k", i+1)
			if _, err := engine.Put(context.Background(), key, []byte(key), storage.Metadata{Size: int64(i + 1)}); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 32, engine.Len())
	data, meta, ok := engine.Get("kkk")
	require.True(t, ok)
	require.Equal(t, []byte("kkk"), data)
	require.EqualValues(t, 3, meta.Size)

	url, err := engine.URL(t.Context(), "kkk")
	require.NoError(t, err)
	require.Equal(t, "mem://uploads/kkk", url)
}

func TestSelectorUsesPrimary(t *testing.T) {
	t.Parallel()

	primary := storage.NewMemoryStore()
	sel := storage.Selector{Primary: storage.Static(primary)}

	got := sel.Select(t.Context())
	require.False(t, got.Degraded)
	require.Same(t, primary, got.Backend)
}

func TestSelectorFallsBackOnConstructionFailure(t *testing.T) {
	t.Parallel()

	cause := errors.New("missing credentials")
	sel := storage.Selector{
		Primary: func(context.Context) (storage.Backend, error) { return nil, cause },
	}

	got := sel.Select(t.Context())
	require.True(t, got.Degraded)
	require.ErrorIs(t, got.Cause, cause)
	require.Equal(t, "inline", got.Backend.Name())
}

func TestSelectorBlobFactoryWithoutCredentials(t *testing.T) {
	t.Parallel()

	sel := storage.Selector{Primary: storage.BlobFactory(storage.BlobConfig{Endpoint: "localhost:9000", Bucket: "uploads"})}

	got := sel.Select(t.Context())
	require.True(t, got.Degraded)
	require.ErrorContains(t, got.Cause, "access key")
	require.Equal(t, "inline", got.Backend.Name())
}

func TestSelectorCustomFallback(t *testing.T) {
	t.Parallel()

	fallback := storage.NewMemoryStore()
	sel := storage.Selector{
		Primary:  func(context.Context) (storage.Backend, error) { return nil, errors.New("down") },
		Fallback: func() storage.Backend { return fallback },
	}

	require.Same(t, fallback, sel.Select(t.Context()).Backend)
}
