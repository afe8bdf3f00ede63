package core

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"stash/internal/ingest"
	"stash/internal/storage"
)

// CORS headers attached to every response.
const (
	AllowOrigin  = "*"
	AllowHeaders = "Content-Type"
	AllowMethods = "POST, OPTIONS"
)

// errInternal is reported for failures outside the upload pipeline.
var errInternal = &ingest.Error{Kind: ingest.KindStorageWriteFailure, Message: "Internal Server Error"}

// Response is a composed transport-level response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Compose maps the result of a multipart upload to its response.
func Compose(res Result) Response {
	return compose(res, func(ref *storage.StoredObjectRef) any {
		return UploadResponse{FileURL: ref.URL}
	})
}

// ComposeImage maps the result of an image upload to its response.
func ComposeImage(res Result) Response {
	return compose(res, func(ref *storage.StoredObjectRef) any {
		return ImageUploadResponse{URL: ref.URL}
	})
}

func compose(res Result, success func(*storage.StoredObjectRef) any) Response {
	switch {
	case res.Preflight:
		return Response{Status: http.StatusNoContent, Header: corsHeader()}
	case res.Err != nil:
		return ComposeError(res.Err)
	case res.Object != nil:
		return jsonResponse(http.StatusOK, success(res.Object))
	default:
		// A completed result without an object is a bug in the pipeline;
		// never answer it with an empty success.
		slog.Error("Upload finished without result", "stage", res.Stage)
		return ComposeError(ingest.ErrStorageWriteFailure)
	}
}

// ComposeError maps a pipeline error to its response.
func ComposeError(err *ingest.Error) Response {
	return jsonResponse(StatusFor(err.Kind), ErrorResponse{Error: err.Message})
}

// StatusFor returns the HTTP status reported for kind.
func StatusFor(kind ingest.ErrorKind) int {
	switch kind {
	case ingest.KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case ingest.KindStorageWriteFailure:
		return http.StatusInternalServerError
	case ingest.KindEmptyBody,
		ingest.KindMalformedMultipart,
		ingest.KindNoFilePresent,
		ingest.KindTooManyFiles,
		ingest.KindFileTooLarge,
		ingest.KindEmptyFileContent,
		ingest.KindInvalidPayload:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func corsHeader() http.Header {
	h := make(http.Header)
	h.Set("Access-Control-Allow-Origin", AllowOrigin)
	h.Set("Access-Control-Allow-Headers", AllowHeaders)
	h.Set("Access-Control-Allow-Methods", AllowMethods)
	return h
}

func jsonResponse(status int, v any) Response {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response body", "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"Internal Server Error"}`)
	}

	h := corsHeader()
	h.Set("Content-Type", "application/json")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	return Response{Status: status, Header: h, Body: body}
}

// Write sends the response on w.
func (r Response) Write(w http.ResponseWriter) {
	for key, values := range r.Header {
		for _, v := range values {
			w.Header().Add(key, v)
		}
	}
	w.WriteHeader(r.Status)
	if len(r.Body) > 0 {
		_, _ = w.Write(r.Body)
	}
}
