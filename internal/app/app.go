// Package app wires a loaded configuration into a running server.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"stash/internal/config"
	"stash/internal/core"
	"stash/internal/metadata"
	"stash/internal/storage"
)

// SetupLogging installs a charmbracelet/log handler as the slog default.
func SetupLogging(w io.Writer, level log.Level) {
	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
		ReportCaller:    level == log.DebugLevel,
	})

	slog.SetDefault(slog.New(handler))
}

// NewServer builds a core.Server for cfg. The caller owns the server and
// must Close it.
func NewServer(ctx context.Context, cfg *config.Config) (*core.Server, error) {
	opts := []core.ConfigOption{core.WithPolicy(cfg.Policy())}

	backend, err := backendOption(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, backend)

	index, err := OpenIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, core.WithIndex(index))

	server, err := core.NewServer(core.NewConfig(opts...))
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("failed to create stash server: %w", err)
	}
	return server, nil
}

func backendOption(ctx context.Context, cfg *config.Config) (core.ConfigOption, error) {
	switch cfg.Backend {
	case config.BackendLocal:
		absDataDir, err := filepath.Abs(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve data directory: %w", err)
		}
		if err := os.MkdirAll(absDataDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		slog.Info("Storing uploads on disk", "dir", absDataDir, "site_url", cfg.SiteURL)
		return core.WithLocalFiles(storage.NewLocalFileStorage(absDataDir, cfg.SiteURL)), nil

	case config.BackendMemory:
		slog.Warn("Storing uploads in memory; they are lost on restart")
		return core.WithBackend(storage.NewMemoryStore()), nil

	default:
		prepareBucket(ctx, cfg.Blob)
		return core.WithStorageFactory(storage.BlobFactory(cfg.Blob)), nil
	}
}

// prepareBucket creates the upload bucket when it can. Failure is only
// logged: uploads then fall back to inline data until the store is usable.
func prepareBucket(ctx context.Context, blob storage.BlobConfig) {
	store, err := storage.NewBlobStore(blob)
	if err != nil {
		slog.Warn("Blob store is not configured; uploads will be returned inline", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := store.EnsureBucket(ctx); err != nil {
		slog.Warn("Could not prepare upload bucket", "bucket", blob.Bucket, "err", err)
		return
	}
	slog.Info("Storing uploads in bucket", "endpoint", blob.Endpoint, "bucket", blob.Bucket)
}

// OpenIndex opens the metadata index selected by cfg, or a no-op index
// when none is configured.
func OpenIndex(ctx context.Context, cfg *config.Config) (metadata.Index, error) {
	switch {
	case cfg.DynamoTable != "":
		index, err := metadata.OpenDynamo(ctx, cfg.DynamoTable)
		if err != nil {
			return nil, fmt.Errorf("failed to open dynamodb index: %w", err)
		}
		return index, nil

	case cfg.MetadataDB != "":
		index, err := metadata.OpenSQLite(ctx, cfg.MetadataDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open metadata database: %w", err)
		}
		return index, nil

	default:
		return metadata.Nop{}, nil
	}
}
