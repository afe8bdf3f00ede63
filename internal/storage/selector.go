package storage

import (
	"context"
	"log/slog"
)

// Factory constructs the backend for one request.
type Factory func(ctx context.Context) (Backend, error)

// Static returns a Factory that always yields b.
func Static(b Backend) Factory {
	return func(context.Context) (Backend, error) {
		return b, nil
	}
}

// BlobFactory returns a Factory that builds a BlobStore from cfg.
func BlobFactory(cfg BlobConfig) Factory {
	return func(context.Context) (Backend, error) {
		return NewBlobStore(cfg)
	}
}

// Selector picks the backend for a request: the primary backend when it
// can be constructed, otherwise the fallback. The upload is never dropped
// because the primary is misconfigured.
type Selector struct {
	Primary Factory

	// Fallback builds the degraded backend. Defaults to a fresh
	// InlineStore per request.
	Fallback func() Backend
}

// Selection is the outcome of a backend choice.
type Selection struct {
	Backend  Backend
	Degraded bool
	Cause    error
}

// Select runs the attempt-then-fallback decision once.
func (s Selector) Select(ctx context.Context) Selection {
	if s.Primary != nil {
		b, err := s.Primary(ctx)
		if err == nil && b != nil {
			return Selection{Backend: b}
		}
		if err != nil {
			slog.WarnContext(ctx, "Primary storage unavailable, falling back to inline data", "err", err)
		}
		return Selection{Backend: s.fallback(), Degraded: true, Cause: err}
	}

	return Selection{Backend: s.fallback(), Degraded: true}
}

func (s Selector) fallback() Backend {
	if s.Fallback != nil {
		return s.Fallback()
	}
	return NewInlineStore()
}
