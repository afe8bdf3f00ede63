package core

import (
	"stash/internal/ingest"
	"stash/internal/keys"
	"stash/internal/metadata"
	"stash/internal/storage"
)

type Config struct {
	Policy ingest.Policy

	// Storage builds the primary backend for each request. When it fails,
	// Fallback is used instead (an inline data backend by default).
	Storage  storage.Factory
	Fallback func() storage.Backend

	// LocalFiles, when set, is served back at /uploads/{key}.
	LocalFiles *storage.LocalFileStorage

	Index metadata.Index
	Keys  *keys.Generator
}

type ConfigOption func(*Config)

func WithPolicy(policy ingest.Policy) ConfigOption {
	return func(cfg *Config) {
		cfg.Policy = policy
	}
}

// WithBackend uses b for every request.
func WithBackend(b storage.Backend) ConfigOption {
	return func(cfg *Config) {
		cfg.Storage = storage.Static(b)
	}
}

// WithStorageFactory builds the primary backend per request with f.
func WithStorageFactory(f storage.Factory) ConfigOption {
	return func(cfg *Config) {
		cfg.Storage = f
	}
}

func WithFallback(f func() storage.Backend) ConfigOption {
	return func(cfg *Config) {
		cfg.Fallback = f
	}
}

// WithLocalFiles stores uploads on the local filesystem and serves them.
func WithLocalFiles(local *storage.LocalFileStorage) ConfigOption {
	return func(cfg *Config) {
		cfg.LocalFiles = local
		cfg.Storage = storage.Static(local)
	}
}

func WithIndex(index metadata.Index) ConfigOption {
	return func(cfg *Config) {
		cfg.Index = index
	}
}

func WithKeyGenerator(gen *keys.Generator) ConfigOption {
	return func(cfg *Config) {
		cfg.Keys = gen
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
