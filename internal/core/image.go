package core

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"stash/internal/ingest"
)

// jsonEnvelopeSlack allows for the JSON structure and filename around the
// base64 image in an image upload body.
const jsonEnvelopeSlack = 16 * 1024

// imageCodec decodes {"image": "data:<mime>;base64,...", "filename": "..."}
// bodies.
type imageCodec struct {
	policy ingest.Policy

	filename    string
	contentType string
	data        []byte
}

// maxBodyBytes is the largest JSON body that can still carry an image
// within the per-file limit once base64 encoded.
func (c *imageCodec) maxBodyBytes() int64 {
	return int64(base64.StdEncoding.EncodedLen(int(c.policy.MaxBytesPerFile))) + jsonEnvelopeSlack
}

func (c *imageCodec) Decode(ctx context.Context, body io.Reader, header http.Header) error {
	limited := &io.LimitedReader{R: body, N: c.maxBodyBytes() + 1}

	var req ImageUploadRequest
	if err := json.NewDecoder(limited).Decode(&req); err != nil {
		if limited.N <= 0 {
			return c.policy.CheckSize(c.policy.MaxBytesPerFile + 1)
		}
		return ingest.NewError(ingest.KindInvalidPayload, err)
	}

	if req.Image == "" || strings.TrimSpace(req.Filename) == "" {
		return ingest.Errorf(ingest.KindInvalidPayload, "Image and filename are required")
	}

	contentType, payload, err := parseDataURL(req.Image)
	if err != nil {
		return &ingest.Error{Kind: ingest.KindInvalidPayload, Message: "Invalid image data", Err: err}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return &ingest.Error{Kind: ingest.KindInvalidPayload, Message: "Invalid image data", Err: err}
	}
	if err := c.policy.CheckSize(int64(len(data))); err != nil {
		return err
	}

	c.filename = req.Filename
	c.contentType = contentType
	c.data = data
	return nil
}

func (c *imageCodec) Assemble(ctx context.Context) (*ingest.AssembledFile, error) {
	return ingest.NewAssembledFile(c.filename, c.contentType, c.data)
}

// parseDataURL splits "data:<mime>;base64,<payload>" into its MIME type and
// base64 payload. A value without the data: prefix is taken as bare base64
// of unknown type.
func parseDataURL(value string) (string, string, error) {
	if !strings.HasPrefix(value, "data:") {
		return "", strings.TrimSpace(value), nil
	}

	header, payload, ok := strings.Cut(strings.TrimPrefix(value, "data:"), ",")
	if !ok {
		return "", "", errors.New("data URL has no payload")
	}

	params := strings.Split(header, ";")
	if len(params) < 2 || !strings.EqualFold(params[len(params)-1], "base64") {
		return "", "", errors.New("data URL is not base64 encoded")
	}

	contentType := params[0]
	if contentType != "" {
		if _, _, err := mime.ParseMediaType(strings.Join(params[:len(params)-1], ";")); err != nil {
			return "", "", err
		}
	}

	return contentType, payload, nil
}
