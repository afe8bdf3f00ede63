package core_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"stash/internal/core"
)

func TestRequestIDs(t *testing.T) {
	t.Parallel()

	var seen string
	h := core.RequestIDs(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = core.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	require.NoError(t, err, "generated request id should be a UUID")
	require.Equal(t, seen, rec.Header().Get(core.RequestIDHeader))

	inbound := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(core.RequestIDHeader, inbound)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, inbound, seen, "a valid inbound id should be kept")

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(core.RequestIDHeader, "not-a-uuid")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.NotEqual(t, "not-a-uuid", seen, "an invalid inbound id should be replaced")
}

func TestServerSetsRequestID(t *testing.T) {
	t.Parallel()

	_, httpSrv := newTestServer(t)

	resp := DoGet(t, httpSrv.URL+"/healthz")
	defer resp.Body.Close()
	require.NotEmpty(t, resp.Header.Get(core.RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	h := core.Recoverer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/upload", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"Internal Server Error"}`, rec.Body.String())
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSlashFix(t *testing.T) {
	t.Parallel()

	var got string
	h := core.SlashFix(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Path
	}))

	for in, want := range map[string]string{
		"/upload/":       "/upload",
		"//upload":       "/upload",
		"/":              "/",
		"/files//a.png/": "/files/a.png",
	} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, in, nil))
		require.Equalf(t, want, got, "path %q", in)
	}
}

func TestLogRequestRecordsStatus(t *testing.T) {
	t.Parallel()

	var wrapped *core.ResponseWriterWrapper
	h := core.LogRequest(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wrapped = w.(*core.ResponseWriterWrapper)
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusTeapot, rec.Code)
	require.Equal(t, http.StatusTeapot, wrapped.WrittenResponseCode)
	require.Equal(t, int64(len("short and stout")), wrapped.BytesWritten)
}
