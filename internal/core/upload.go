package core

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"stash/internal/ingest"
	"stash/internal/keys"
	"stash/internal/metadata"
	"stash/internal/storage"
)

// UploadRequest is the transport-neutral view of an inbound upload.
type UploadRequest struct {
	Method        string
	Header        http.Header
	Body          io.Reader
	ContentLength int64
}

// RequestFromHTTP adapts an *http.Request.
func RequestFromHTTP(r *http.Request) UploadRequest {
	return UploadRequest{
		Method:        r.Method,
		Header:        r.Header,
		Body:          r.Body,
		ContentLength: r.ContentLength,
	}
}

// Stage is a state of the per-request upload state machine.
type Stage int

const (
	StageAwaitingMethodCheck Stage = iota
	StageAwaitingBody
	StageDecoding
	StageAssembling
	StagePersisting
	StageCompleted
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageAwaitingMethodCheck:
		return "AwaitingMethodCheck"
	case StageAwaitingBody:
		return "AwaitingBody"
	case StageDecoding:
		return "Decoding"
	case StageAssembling:
		return "Assembling"
	case StagePersisting:
		return "Persisting"
	case StageCompleted:
		return "Completed"
	case StageFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

func (s Stage) terminal() bool {
	return s == StageCompleted || s == StageFailed
}

// Result is the outcome of one upload. Exactly one of Object and Err is
// set, except for a CORS preflight which carries neither.
type Result struct {
	Stage     Stage
	Preflight bool
	Object    *storage.StoredObjectRef
	Err       *ingest.Error

	// Degraded is set when the object went to the fallback backend.
	Degraded bool
}

// OK reports whether the upload completed and produced an object.
func (r Result) OK() bool {
	return r.Stage == StageCompleted && r.Object != nil
}

// Uploader runs uploads through decode, assembly and persistence.
type Uploader struct {
	Policy   ingest.Policy
	Selector storage.Selector
	Keys     *keys.Generator
	Index    metadata.Index
}

// NewUploader builds an Uploader from cfg, filling in defaults.
func NewUploader(cfg Config) *Uploader {
	u := &Uploader{
		Policy:   cfg.Policy.WithDefaults(),
		Selector: storage.Selector{Primary: cfg.Storage, Fallback: cfg.Fallback},
		Keys:     cfg.Keys,
		Index:    cfg.Index,
	}
	if u.Keys == nil {
		u.Keys = keys.NewGenerator(nil)
	}
	if u.Index == nil {
		u.Index = metadata.Nop{}
	}
	return u
}

// payloadCodec turns a request body into an assembled file. Decode runs in
// the Decoding stage and Assemble in the Assembling stage.
type payloadCodec interface {
	Decode(ctx context.Context, body io.Reader, header http.Header) error
	Assemble(ctx context.Context) (*ingest.AssembledFile, error)
}

// Upload processes a multipart upload request.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) Result {
	return u.run(ctx, req, &multipartCodec{policy: u.Policy})
}

// UploadImage processes a JSON data-URL image upload.
func (u *Uploader) UploadImage(ctx context.Context, req UploadRequest) Result {
	return u.run(ctx, req, &imageCodec{policy: u.Policy})
}

// upload is the state of one request moving through the stages.
type upload struct {
	u     *Uploader
	req   UploadRequest
	codec payloadCodec

	stage     Stage
	body      io.Reader
	file      *ingest.AssembledFile
	object    *storage.StoredObjectRef
	preflight bool
	degraded  bool
}

func (u *Uploader) run(ctx context.Context, req UploadRequest, codec payloadCodec) Result {
	up := &upload{u: u, req: req, codec: codec, stage: StageAwaitingMethodCheck}

	var failure error
	for !up.stage.terminal() {
		var (
			next Stage
			err  error
		)

		switch up.stage {
		case StageAwaitingMethodCheck:
			next, err = up.checkMethod()
		case StageAwaitingBody:
			next, err = up.awaitBody()
		case StageDecoding:
			next, err = up.decode(ctx)
		case StageAssembling:
			next, err = up.assemble(ctx)
		case StagePersisting:
			next, err = up.persist(ctx)
		}

		if err != nil {
			failure = err
			slog.DebugContext(ctx, "Upload failed", "stage", up.stage, "err", err)
			next = StageFailed
		}
		up.stage = next
	}

	if failure != nil {
		perr := ingest.AsError(failure)
		if perr.Kind == ingest.KindStorageWriteFailure {
			slog.ErrorContext(ctx, "Upload could not be stored", "err", perr)
		} else {
			slog.InfoContext(ctx, "Upload rejected", "kind", perr.Kind, "err", perr)
		}
		return Result{Stage: StageFailed, Err: perr}
	}

	return Result{
		Stage:     StageCompleted,
		Preflight: up.preflight,
		Object:    up.object,
		Degraded:  up.degraded,
	}
}

func (up *upload) checkMethod() (Stage, error) {
	switch {
	case up.req.Method == http.MethodOptions:
		up.preflight = true
		return StageCompleted, nil
	case !up.u.Policy.Allows(up.req.Method):
		return StageFailed, ingest.ErrMethodNotAllowed
	default:
		return StageAwaitingBody, nil
	}
}

func (up *upload) awaitBody() (Stage, error) {
	if up.req.Body == nil || up.req.ContentLength == 0 {
		return StageFailed, ingest.ErrEmptyBody
	}

	// Content-Length may be unknown (-1), so look for the first byte.
	br := bufio.NewReader(up.req.Body)
	if _, err := br.Peek(1); err != nil {
		if errors.Is(err, io.EOF) {
			return StageFailed, ingest.ErrEmptyBody
		}
		return StageFailed, ingest.NewError(ingest.KindEmptyBody, err)
	}

	up.body = br
	return StageDecoding, nil
}

func (up *upload) decode(ctx context.Context) (Stage, error) {
	if err := up.codec.Decode(ctx, up.body, up.req.Header); err != nil {
		return StageFailed, err
	}
	return StageAssembling, nil
}

func (up *upload) assemble(ctx context.Context) (Stage, error) {
	file, err := up.codec.Assemble(ctx)
	if err != nil {
		return StageFailed, err
	}
	up.file = file
	return StagePersisting, nil
}

func (up *upload) persist(ctx context.Context) (Stage, error) {
	ref, degraded, err := up.u.Store(ctx, up.file)
	if err != nil {
		return StageFailed, err
	}
	up.object = ref
	up.degraded = degraded
	return StageCompleted, nil
}

// Store writes an assembled file to the selected backend and records it in
// the index. Backend errors are reported as StorageWriteFailure; index
// errors are only logged since the object itself is already stored.
func (u *Uploader) Store(ctx context.Context, file *ingest.AssembledFile) (*storage.StoredObjectRef, bool, error) {
	key, ingestedAt := u.Keys.Key(file.FileName)

	selection := u.Selector.Select(ctx)
	backend := selection.Backend

	meta := storage.Metadata{
		OriginalName: file.FileName,
		ContentType:  file.ContentType,
		Size:         file.Size,
		IngestedAt:   ingestedAt,
		Digest:       file.Digest,
	}

	url, err := backend.Put(ctx, key, file.Data, meta)
	if err != nil {
		return nil, false, ingest.NewError(ingest.KindStorageWriteFailure, err)
	}

	ref := &storage.StoredObjectRef{
		Key:          key,
		URL:          url,
		Size:         file.Size,
		ContentType:  file.ContentType,
		OriginalName: file.FileName,
		IngestedAt:   ingestedAt,
		Backend:      backend.Name(),
		Digest:       file.Digest,
	}

	// Inline payloads are not stored anywhere, so there is nothing to
	// look up later.
	if !selection.Degraded {
		if err := u.Index.Record(ctx, *ref); err != nil {
			slog.WarnContext(ctx, "Failed to record upload metadata", "key", key, "err", err)
		}
	}

	slog.InfoContext(ctx, "Stored upload", "key", key, "backend", ref.Backend, "size", ref.Size, "content_type", ref.ContentType)
	return ref, selection.Degraded, nil
}

// multipartCodec reads the first file part of a multipart body.
type multipartCodec struct {
	policy  ingest.Policy
	decoder *ingest.Decoder
	part    *ingest.FilePart
}

func (c *multipartCodec) Decode(ctx context.Context, body io.Reader, header http.Header) error {
	decoder, err := ingest.NewDecoder(body, header.Get("Content-Type"), c.policy)
	if err != nil {
		return err
	}

	part, err := decoder.NextPart()
	if err != nil {
		return err
	}

	c.decoder = decoder
	c.part = part
	return nil
}

func (c *multipartCodec) Assemble(ctx context.Context) (*ingest.AssembledFile, error) {
	file, err := ingest.Assemble(c.part)
	if err != nil {
		return nil, err
	}

	// Later parts are never assembled, but the rest of the stream still
	// has to respect the file count and be well formed before anything is
	// persisted.
	if err := c.decoder.Drain(); err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "Assembled upload", "field", c.part.FieldName, "filename", file.FileName, "size", file.Size)
	return file, nil
}
