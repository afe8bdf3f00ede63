package ingest

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultMaxBytesPerFile is the per-file size limit applied when none is
	// configured.
	DefaultMaxBytesPerFile = int64(5 << 20)

	// DefaultMaxFiles is the number of file parts accepted per request.
	DefaultMaxFiles = 1

	// ChunkSize is the largest slice FilePart.Next hands out per pull.
	ChunkSize = 32 * 1024
)

// Policy holds the limits enforced while a request is decoded.
type Policy struct {
	MaxBytesPerFile int64
	MaxFiles        int
	AllowedMethods  []string
}

// DefaultPolicy returns the policy used when nothing is configured: a single
// file of at most 5 MiB, uploaded with POST.
func DefaultPolicy() Policy {
	return Policy{
		MaxBytesPerFile: DefaultMaxBytesPerFile,
		MaxFiles:        DefaultMaxFiles,
		AllowedMethods:  []string{http.MethodPost},
	}
}

// WithDefaults fills zero fields of p from DefaultPolicy.
func (p Policy) WithDefaults() Policy {
	def := DefaultPolicy()
	if p.MaxBytesPerFile <= 0 {
		p.MaxBytesPerFile = def.MaxBytesPerFile
	}
	if p.MaxFiles <= 0 {
		p.MaxFiles = def.MaxFiles
	}
	if len(p.AllowedMethods) == 0 {
		p.AllowedMethods = def.AllowedMethods
	}
	return p
}

// Validate reports configuration mistakes.
func (p Policy) Validate() error {
	if p.MaxBytesPerFile < 0 {
		return fmt.Errorf("max bytes per file must not be negative, got %d", p.MaxBytesPerFile)
	}
	if p.MaxFiles < 0 {
		return fmt.Errorf("max files must not be negative, got %d", p.MaxFiles)
	}
	for _, m := range p.AllowedMethods {
		if m == http.MethodOptions {
			return fmt.Errorf("OPTIONS is reserved for CORS preflight and cannot be an upload method")
		}
	}
	return nil
}

// Allows reports whether method may carry an upload.
func (p Policy) Allows(method string) bool {
	return slices.ContainsFunc(p.AllowedMethods, func(m string) bool {
		return strings.EqualFold(m, method)
	})
}

func (p Policy) fileTooLarge() *Error {
	return Errorf(KindFileTooLarge, "File exceeds the maximum size of %s", humanize.IBytes(uint64(p.MaxBytesPerFile)))
}

func (p Policy) tooManyFiles() *Error {
	if p.MaxFiles == 1 {
		return Errorf(KindTooManyFiles, "Too many files; only one file may be uploaded per request")
	}
	return Errorf(KindTooManyFiles, "Too many files; at most %d allowed", p.MaxFiles)
}

// CheckSize returns a FileTooLarge error when size exceeds the per-file
// limit.
func (p Policy) CheckSize(size int64) error {
	if size > p.MaxBytesPerFile {
		return p.fileTooLarge()
	}
	return nil
}
