package ingest

import (
	"errors"
	"fmt"
)

// ErrorKind classifies why an upload could not be completed. Kinds are
// string based so they read naturally in logs and JSON.
type ErrorKind string

const (
	KindMethodNotAllowed    ErrorKind = "METHOD_NOT_ALLOWED"
	KindEmptyBody           ErrorKind = "EMPTY_BODY"
	KindMalformedMultipart  ErrorKind = "MALFORMED_MULTIPART"
	KindNoFilePresent       ErrorKind = "NO_FILE_PRESENT"
	KindTooManyFiles        ErrorKind = "TOO_MANY_FILES"
	KindFileTooLarge        ErrorKind = "FILE_TOO_LARGE"
	KindEmptyFileContent    ErrorKind = "EMPTY_FILE_CONTENT"
	KindStorageWriteFailure ErrorKind = "STORAGE_WRITE_FAILURE"

	// KindInvalidPayload covers request bodies that are not multipart, such
	// as the JSON image upload, and fail to decode.
	KindInvalidPayload ErrorKind = "INVALID_PAYLOAD"
)

// Sentinels for use with errors.Is. Any *Error matches the sentinel of the
// same kind regardless of its message.
var (
	ErrMethodNotAllowed    = &Error{Kind: KindMethodNotAllowed, Message: "Method Not Allowed"}
	ErrEmptyBody           = &Error{Kind: KindEmptyBody, Message: "No file data received"}
	ErrMalformedMultipart  = &Error{Kind: KindMalformedMultipart, Message: "Malformed multipart request"}
	ErrNoFilePresent       = &Error{Kind: KindNoFilePresent, Message: "No file found in request"}
	ErrTooManyFiles        = &Error{Kind: KindTooManyFiles, Message: "Too many files"}
	ErrFileTooLarge        = &Error{Kind: KindFileTooLarge, Message: "File too large"}
	ErrEmptyFileContent    = &Error{Kind: KindEmptyFileContent, Message: "Uploaded file is empty"}
	ErrStorageWriteFailure = &Error{Kind: KindStorageWriteFailure, Message: "Failed to store file"}
	ErrInvalidPayload      = &Error{Kind: KindInvalidPayload, Message: "Invalid request payload"}
)

// Error is the typed failure produced by every stage of the upload
// pipeline. Message is safe to show to the caller; Err carries the
// underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// NewError returns an Error of the given kind carrying the default message
// for that kind and wrapping cause.
func NewError(kind ErrorKind, cause error) *Error {
	return &Error{Kind: kind, Message: defaultMessage(kind), Err: cause}
}

// Errorf returns an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsError extracts the pipeline error from err. Errors that are not
// pipeline errors are reported as storage failures, since those are the
// only untyped errors the pipeline lets through.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return NewError(KindStorageWriteFailure, err)
}

func defaultMessage(kind ErrorKind) string {
	switch kind {
	case KindMethodNotAllowed:
		return ErrMethodNotAllowed.Message
	case KindEmptyBody:
		return ErrEmptyBody.Message
	case KindMalformedMultipart:
		return ErrMalformedMultipart.Message
	case KindNoFilePresent:
		return ErrNoFilePresent.Message
	case KindTooManyFiles:
		return ErrTooManyFiles.Message
	case KindFileTooLarge:
		return ErrFileTooLarge.Message
	case KindEmptyFileContent:
		return ErrEmptyFileContent.Message
	case KindInvalidPayload:
		return ErrInvalidPayload.Message
	default:
		return ErrStorageWriteFailure.Message
	}
}
