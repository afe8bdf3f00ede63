package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stash/internal/storage"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteIndex keeps upload metadata in a local SQLite database.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, errors.New("metadata database path must not be empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create metadata dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteIndex{db: db}, nil
}

func initSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS uploads (
			key TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			size INTEGER NOT NULL,
			content_type TEXT NOT NULL,
			original_name TEXT NOT NULL,
			backend TEXT NOT NULL,
			digest TEXT,
			ingested_at TIMESTAMP NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_uploads_ingested_at ON uploads(ingested_at);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (x *SQLiteIndex) Record(ctx context.Context, ref storage.StoredObjectRef) error {
	_, err := x.db.ExecContext(ctx,
		`INSERT INTO uploads(key, url, size, content_type, original_name, backend, digest, ingested_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		 	url=excluded.url,
		 	size=excluded.size,
		 	content_type=excluded.content_type,
		 	original_name=excluded.original_name,
		 	backend=excluded.backend,
		 	digest=excluded.digest,
		 	ingested_at=excluded.ingested_at`,
		ref.Key, ref.URL, ref.Size, ref.ContentType, ref.OriginalName, ref.Backend, ref.Digest, ref.IngestedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record upload %q: %w", ref.Key, err)
	}
	return nil
}

func (x *SQLiteIndex) Lookup(ctx context.Context, key string) (storage.StoredObjectRef, error) {
	var (
		ref        storage.StoredObjectRef
		digest     sql.NullString
		ingestedAt time.Time
	)

	err := x.db.QueryRowContext(ctx,
		`SELECT key, url, size, content_type, original_name, backend, digest, ingested_at
		 FROM uploads WHERE key = ?`, key,
	).Scan(&ref.Key, &ref.URL, &ref.Size, &ref.ContentType, &ref.OriginalName, &ref.Backend, &digest, &ingestedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.StoredObjectRef{}, ErrNotFound
	}
	if err != nil {
		return storage.StoredObjectRef{}, fmt.Errorf("lookup upload %q: %w", key, err)
	}

	ref.Digest = digest.String
	ref.IngestedAt = ingestedAt.UTC()
	return ref, nil
}

// Close closes the underlying database.
func (x *SQLiteIndex) Close() error {
	return x.db.Close()
}
