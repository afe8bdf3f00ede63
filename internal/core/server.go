package core

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"stash/internal/metadata"
	"stash/internal/storage"
	"stash/internal/ui"
)

// Server exposes the upload pipeline over HTTP.
type Server struct {
	Config   Config
	Uploader *Uploader
}

// NewServer validates cfg and returns a new Server.
func NewServer(cfg Config) (*Server, error) {
	cfg.Policy = cfg.Policy.WithDefaults()
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}

	if cfg.Index == nil {
		cfg.Index = metadata.Nop{}
	}

	return &Server{Config: cfg, Uploader: NewUploader(cfg)}, nil
}

// Close closes any resources held by the Server.
func (s *Server) Close() error {
	return s.Config.Index.Close()
}

// Handler returns the http.Handler serving every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// The method check belongs to the upload pipeline, so these routes take
	// every method.
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/.netlify/functions/upload", s.handleUpload)
	mux.HandleFunc("/upload-image", s.handleUploadImage)

	mux.HandleFunc("GET /uploads/{key}", func(w http.ResponseWriter, r *http.Request) {
		s.handleLocalObject(w, r, r.PathValue("key"))
	})
	mux.HandleFunc("GET /files/{key}", func(w http.ResponseWriter, r *http.Request) {
		s.handleLookup(w, r, r.PathValue("key"))
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(http.StatusOK, map[string]string{"status": "ok"}).Write(w)
	})
	mux.HandleFunc("GET /{$}", s.handleIndexPage)

	return RequestIDs(LogRequest(Recoverer(SlashFix(mux))))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.HandleUpload(r.Context(), RequestFromHTTP(r)).Write(w)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	s.HandleUploadImage(r.Context(), RequestFromHTTP(r)).Write(w)
}

func writeNotFound(w http.ResponseWriter) {
	jsonResponse(http.StatusNotFound, ErrorResponse{Error: "Not Found"}).Write(w)
}

// handleLocalObject serves an object written by LocalFileStorage.
func (s *Server) handleLocalObject(w http.ResponseWriter, r *http.Request, key string) {
	if s.Config.LocalFiles == nil {
		writeNotFound(w)
		return
	}

	f, meta, err := s.Config.LocalFiles.Open(key)
	if errors.Is(err, storage.ErrNotFound) {
		writeNotFound(w)
		return
	} else if err != nil {
		slog.ErrorContext(r.Context(), "Failed to open stored object", "key", key, "err", err)
		ComposeError(errInternal).Write(w)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to stat stored object", "key", key, "err", err)
		ComposeError(errInternal).Write(w)
		return
	}

	if meta.ContentType != "" {
		w.Header().Set("Content-Type", meta.ContentType)
	}
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "sandbox")
	w.Header().Set("Access-Control-Allow-Origin", AllowOrigin)
	if !inlineSafe(meta.ContentType) {
		w.Header().Set("Content-Disposition", attachment(meta.OriginalName))
	}

	modTime := info.ModTime()
	if !meta.IngestedAt.IsZero() {
		modTime = meta.IngestedAt
	}
	http.ServeContent(w, r, key, modTime, f)
}

// inlineSafe reports whether contentType may be rendered by the browser.
// Raster images only; SVG can carry script.
func inlineSafe(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") && mediaType != "image/svg+xml"
}

func attachment(filename string) string {
	if filename != "" {
		if v := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); v != "" {
			return v
		}
	}
	return "attachment"
}

// handleLookup returns the index entry for key.
func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request, key string) {
	ref, err := s.Config.Index.Lookup(r.Context(), key)
	if errors.Is(err, metadata.ErrNotFound) {
		writeNotFound(w)
		return
	} else if err != nil {
		slog.ErrorContext(r.Context(), "Failed to look up upload", "key", key, "err", err)
		ComposeError(errInternal).Write(w)
		return
	}

	jsonResponse(http.StatusOK, ref).Write(w)
}

func (s *Server) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	page := ui.UploadPage(ui.UploadLimits{
		MaxBytesPerFile: s.Uploader.Policy.MaxBytesPerFile,
		MaxFiles:        s.Uploader.Policy.MaxFiles,
	})

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := page.Render(r.Context(), w); err != nil {
		slog.ErrorContext(r.Context(), "Failed to render upload page", "err", err)
	}
}

// HandleUpload runs req through the multipart pipeline and composes the
// response. It is the transport-independent entry used by adapters.
func (s *Server) HandleUpload(ctx context.Context, req UploadRequest) Response {
	return Compose(s.Uploader.Upload(ctx, req))
}

// HandleUploadImage is HandleUpload for JSON image bodies.
func (s *Server) HandleUploadImage(ctx context.Context, req UploadRequest) Response {
	return ComposeImage(s.Uploader.UploadImage(ctx, req))
}
