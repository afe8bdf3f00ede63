// Package ingest decodes multipart/form-data uploads incrementally and
// enforces upload limits while doing so.
//
// The decoder hands out one FilePart at a time. A part's body is pulled
// chunk by chunk, never more than ChunkSize bytes at once, and reading stops
// as soon as the configured per-file limit is crossed. The assembled buffer
// never grows past MaxBytesPerFile, so what a request holds is bounded by the
// limit plus one ChunkSize read buffer, no matter how large the client claims
// the body is.
package ingest
