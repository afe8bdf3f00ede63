package ingest

import (
	"encoding/hex"
	"errors"
	"io"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/zeebo/blake3"
)

// AssembledFile is a fully received upload held in memory.
type AssembledFile struct {
	FileName    string
	ContentType string
	Data        []byte
	Size        int64

	// Digest is the hex BLAKE3 hash of Data.
	Digest string
}

// Assemble pulls every chunk of part, in order, into one contiguous buffer
// whose capacity never exceeds the policy's per-file limit. A part that
// yields no bytes fails with EmptyFileContent; decode and limit errors raised
// by the part are returned unchanged.
func Assemble(part *FilePart) (*AssembledFile, error) {
	limit := part.policy.MaxBytesPerFile
	data := make([]byte, 0, min(int64(ChunkSize), limit))
	hasher := blake3.New()

	for {
		chunk, err := part.Next()
		if len(chunk) > 0 {
			data = appendBounded(data, chunk, limit)
			_, _ = hasher.Write(chunk)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	if len(data) == 0 {
		return nil, ErrEmptyFileContent
	}

	return &AssembledFile{
		FileName:    part.FileName,
		ContentType: ResolveContentType(part.ContentType, data),
		Data:        data,
		Size:        int64(len(data)),
		Digest:      hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

// appendBounded appends chunk to data, doubling capacity as needed but never
// past limit. FilePart has already refused any chunk that would cross it.
func appendBounded(data []byte, chunk []byte, limit int64) []byte {
	need := int64(len(data) + len(chunk))
	if need > int64(cap(data)) {
		size := max(min(2*int64(cap(data)), limit), need)
		grown := make([]byte, len(data), size)
		copy(grown, data)
		data = grown
	}
	return append(data, chunk...)
}

// NewAssembledFile wraps a buffer that was received by other means than a
// multipart part. An empty buffer fails with EmptyFileContent.
func NewAssembledFile(filename string, contentType string, data []byte) (*AssembledFile, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFileContent
	}

	sum := blake3.Sum256(data)
	return &AssembledFile{
		FileName:    filename,
		ContentType: ResolveContentType(contentType, data),
		Data:        data,
		Size:        int64(len(data)),
		Digest:      hex.EncodeToString(sum[:]),
	}, nil
}

// ResolveContentType returns declared unless it is missing or the generic
// octet-stream type, in which case the type is detected from data.
func ResolveContentType(declared string, data []byte) string {
	declared = strings.TrimSpace(declared)
	if declared != "" && !strings.EqualFold(declared, "application/octet-stream") {
		return declared
	}
	return mimetype.Detect(data).String()
}
