package ingest

import (
	"errors"
	"io"
	"mime/multipart"
)

// errPartClosed is returned by Next once the decoder has moved past the
// part.
var errPartClosed = errors.New("file part abandoned by decoder")

// FilePart is one uploaded file as it is being decoded. Its body is a
// forward-only sequence of chunks pulled with Next; it can be consumed
// exactly once.
type FilePart struct {
	FieldName   string
	FileName    string
	ContentType string

	src    io.Reader
	policy Policy
	read   int64
	buf    []byte
	err    error
}

func newFilePart(part *multipart.Part, filename string, policy Policy) *FilePart {
	return &FilePart{
		FieldName:   part.FormName(),
		FileName:    filename,
		ContentType: part.Header.Get("Content-Type"),
		src:         part,
		policy:      policy,
		buf:         make([]byte, ChunkSize),
	}
}

// Next returns the next chunk of the part body. The returned slice is only
// valid until the following call. At the end of the body Next returns
// io.EOF. If the running size exceeds the policy limit, Next returns a
// FileTooLarge error and stops reading. Once Next has returned an error,
// every later call returns the same error.
func (p *FilePart) Next() ([]byte, error) {
	if p.err != nil {
		return nil, p.err
	}

	for {
		n, err := p.src.Read(p.buf)
		if n > 0 {
			p.read += int64(n)
			if p.read > p.policy.MaxBytesPerFile {
				p.err = p.policy.fileTooLarge()
				p.buf = nil
				return nil, p.err
			}
			if errors.Is(err, io.EOF) {
				p.err = io.EOF
			} else if err != nil {
				p.err = NewError(KindMalformedMultipart, err)
			}
			return p.buf[:n], nil
		}

		if errors.Is(err, io.EOF) {
			p.err = io.EOF
			return nil, p.err
		}
		if err != nil {
			p.err = NewError(KindMalformedMultipart, err)
			return nil, p.err
		}
	}
}

// BytesRead returns how many body bytes have been pulled so far.
func (p *FilePart) BytesRead() int64 {
	return p.read
}

func (p *FilePart) close() {
	if p.err == nil {
		p.err = errPartClosed
	}
	p.buf = nil
}
