package ingest

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// Decoder turns a multipart/form-data stream into file parts, one at a
// time, without buffering the request. It enforces the policy's file count
// while decoding; the per-file byte limit is enforced by each FilePart.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	policy Policy
	reader *multipart.Reader

	files   int
	current *FilePart
	err     error
}

// BoundaryFromContentType extracts the multipart boundary token from a
// Content-Type header value.
func BoundaryFromContentType(contentType string) (string, error) {
	if strings.TrimSpace(contentType) == "" {
		return "", Errorf(KindMalformedMultipart, "Missing Content-Type header")
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", NewError(KindMalformedMultipart, fmt.Errorf("parse content type: %w", err))
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return "", Errorf(KindMalformedMultipart, "Expected multipart/form-data, got %s", mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return "", Errorf(KindMalformedMultipart, "Missing multipart boundary")
	}

	return boundary, nil
}

// NewDecoder returns a Decoder reading body, whose boundary is taken from
// contentType. It fails with a MalformedMultipart error if the content type
// does not declare a usable boundary.
func NewDecoder(body io.Reader, contentType string, policy Policy) (*Decoder, error) {
	boundary, err := BoundaryFromContentType(contentType)
	if err != nil {
		return nil, err
	}

	return &Decoder{
		policy: policy.WithDefaults(),
		reader: multipart.NewReader(body, boundary),
	}, nil
}

// Files returns the number of file parts seen so far.
func (d *Decoder) Files() int {
	return d.files
}

// NextPart advances to the next part carrying a filename. Plain form fields
// are skipped. It returns io.EOF once the stream ends cleanly after at least
// one file part, and a NoFilePresent error if it ends without any.
//
// Calling NextPart abandons the previous FilePart; whatever remained of its
// body is discarded by the underlying reader.
func (d *Decoder) NextPart() (*FilePart, error) {
	if d.err != nil {
		return nil, d.err
	}

	if d.current != nil {
		// The previous part stopped on its size limit. Reading past it would
		// mean consuming the overflow we just refused to buffer.
		if err := d.current.err; err != nil && !errors.Is(err, io.EOF) {
			return nil, d.fail(err)
		}
		d.current.close()
		d.current = nil
	}

	for {
		part, err := d.reader.NextPart()
		if err == io.EOF {
			if d.files == 0 {
				return nil, d.fail(ErrNoFilePresent)
			}
			return nil, d.fail(io.EOF)
		}
		if err != nil {
			return nil, d.fail(NewError(KindMalformedMultipart, err))
		}

		filename := part.FileName()
		if filename == "" {
			continue
		}

		d.files++
		if d.files > d.policy.MaxFiles {
			return nil, d.fail(d.policy.tooManyFiles())
		}

		d.current = newFilePart(part, filename, d.policy)
		return d.current, nil
	}
}

// Drain reads the remaining parts without assembling them, so that count
// limits and structural errors later in the stream are reported. It
// returns nil when the stream ends cleanly.
func (d *Decoder) Drain() error {
	for {
		_, err := d.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (d *Decoder) fail(err error) error {
	d.err = err
	return err
}
