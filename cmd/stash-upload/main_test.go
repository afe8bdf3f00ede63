package main

import (
	"bytes"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"stash/internal/core"
	"stash/internal/storage"
)

func newStash(t *testing.T) (*storage.MemoryStore, *httptest.Server) {
	t.Helper()

	mem := storage.NewMemoryStore()
	srv, err := core.NewServer(core.NewConfig(core.WithBackend(mem)))
	require.NoError(t, err)

	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return mem, httpSrv
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestRunUploadsFiles(t *testing.T) {
	mem, httpSrv := newStash(t)

	a := writeFile(t, "a.txt", []byte("first"))
	b := writeFile(t, "b.txt", []byte("second"))

	var out bytes.Buffer
	err := Run(t.Context(), []string{"--server", httpSrv.URL, a, b}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	require.True(t, strings.HasSuffix(lines[0], "-a.txt"), "unexpected URL %q", lines[0])
	require.True(t, strings.HasSuffix(lines[1], "-b.txt"), "unexpected URL %q", lines[1])
	require.Equal(t, 2, mem.Len())
}

func TestRunUploadsImages(t *testing.T) {
	mem, httpSrv := newStash(t)

	png := writeFile(t, "dot.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))

	var out bytes.Buffer
	err := Run(t.Context(), []string{"--server", httpSrv.URL, "--image", png}, &out)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(strings.TrimSpace(out.String()), "-dot.png"))

	_, meta, ok := mem.Get(strings.TrimPrefix(strings.TrimSpace(out.String()), "mem://uploads/"))
	require.True(t, ok)
	require.Equal(t, "image/png", meta.ContentType)
}

func TestRunReportsServerErrors(t *testing.T) {
	_, httpSrv := newStash(t)

	empty := writeFile(t, "empty.txt", nil)

	var out bytes.Buffer
	err := Run(t.Context(), []string{"--server", httpSrv.URL, empty}, &out)
	require.ErrorContains(t, err, "Uploaded file is empty")
	require.Empty(t, out.String())
}

func TestRunRequiresFiles(t *testing.T) {
	err := Run(t.Context(), nil, &bytes.Buffer{})
	require.ErrorContains(t, err, "no files given")
}
