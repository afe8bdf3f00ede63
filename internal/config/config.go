// Package config loads stash configuration.
//
// Values are layered, later sources winning: built-in defaults, an
// optional YAML file (--config or STASH_CONFIG), STASH_* environment
// variables, then command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"stash/internal/ingest"
	"stash/internal/storage"
)

// Backend names accepted in Config.Backend.
const (
	BackendBlob   = "blob"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// DefaultSiteURL is used when neither the configuration nor the hosting
// platform provides a public base URL.
const DefaultSiteURL = "http://localhost:8888"

// Config is the configuration of a stash deployment.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// Backend selects where uploads go: blob, local or memory. A blob
	// backend that cannot be constructed degrades to inline data URLs.
	Backend string `yaml:"backend"`

	// DataDir is the root for local storage.
	DataDir string `yaml:"data_dir"`

	// SiteURL is the public base URL used to build local file URLs.
	SiteURL string `yaml:"site_url"`

	Blob storage.BlobConfig `yaml:"blob"`

	MaxFileBytes int64 `yaml:"max_file_bytes"`
	MaxFiles     int   `yaml:"max_files"`

	// MetadataDB is the SQLite database recording uploads. Empty disables
	// the index unless DynamoTable is set.
	MetadataDB string `yaml:"metadata_db"`

	// DynamoTable, when set, records uploads in DynamoDB instead.
	DynamoTable string `yaml:"dynamo_table"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration used before any source is applied.
func Default() *Config {
	return &Config{
		Listen:          ":8888",
		Backend:         BackendBlob,
		DataDir:         "data",
		MaxFileBytes:    ingest.DefaultMaxBytesPerFile,
		MaxFiles:        ingest.DefaultMaxFiles,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Blob: storage.BlobConfig{
			Region:        "us-east-1",
			UseSSL:        true,
			PresignExpiry: storage.DefaultPresignExpiry,
		},
	}
}

// Policy returns the ingest limits described by c.
func (c *Config) Policy() ingest.Policy {
	return ingest.Policy{
		MaxBytesPerFile: c.MaxFileBytes,
		MaxFiles:        c.MaxFiles,
	}.WithDefaults()
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendBlob, BackendLocal, BackendMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want blob, local or memory)", c.Backend))
	}

	if c.Backend == BackendLocal && c.DataDir == "" {
		errs = append(errs, errors.New("local backend needs a data directory"))
	}
	if c.Listen == "" {
		errs = append(errs, errors.New("listen address must not be empty"))
	}
	if c.MaxFileBytes < 0 {
		errs = append(errs, fmt.Errorf("max file bytes must not be negative, got %d", c.MaxFileBytes))
	}
	if c.MaxFiles < 0 {
		errs = append(errs, fmt.Errorf("max files must not be negative, got %d", c.MaxFiles))
	}
	if c.MetadataDB != "" && c.DynamoTable != "" {
		errs = append(errs, errors.New("metadata_db and dynamo_table are mutually exclusive"))
	}

	return errors.Join(errs...)
}

// Load builds the configuration from args (without the program name) and
// the process environment.
func Load(args []string) (*Config, error) {
	return LoadWith(args, os.Getenv)
}

// LoadWith is Load with an explicit environment lookup.
func LoadWith(args []string, getenv func(string) string) (*Config, error) {
	// The first pass only finds the config file.
	var path string
	if err := newFlagSet(Default(), &path).Parse(args); err != nil {
		return nil, err
	}
	if path == "" {
		path = getenv("STASH_CONFIG")
	}

	cfg := Default()
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}

	// Flags default to the layered values, so only flags actually given
	// override them.
	if err := newFlagSet(cfg, &path).Parse(args); err != nil {
		return nil, err
	}

	cfg.SiteURL = resolveSiteURL(cfg.SiteURL, getenv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile merges the YAML file at path into c. Unknown keys are errors.
func (c *Config) LoadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// newFlagSet registers a flag for every setting, writing into cfg.
func newFlagSet(cfg *Config, configPath *string) *pflag.FlagSet {
	flags := pflag.NewFlagSet("stash", pflag.ContinueOnError)
	flags.SetOutput(io.Discard)

	flags.StringVar(configPath, "config", *configPath, "path to a YAML configuration file (env STASH_CONFIG)")
	flags.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	flags.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend: blob, local or memory")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "directory for local storage")
	flags.StringVar(&cfg.SiteURL, "site-url", cfg.SiteURL, "public base URL for local file links")
	flags.StringVar(&cfg.Blob.Endpoint, "blob-endpoint", cfg.Blob.Endpoint, "S3-compatible endpoint (host:port)")
	flags.StringVar(&cfg.Blob.Bucket, "blob-bucket", cfg.Blob.Bucket, "bucket for uploads")
	flags.StringVar(&cfg.Blob.Region, "blob-region", cfg.Blob.Region, "bucket region")
	flags.BoolVar(&cfg.Blob.UseSSL, "blob-ssl", cfg.Blob.UseSSL, "use TLS for the blob endpoint")
	flags.StringVar(&cfg.Blob.PublicURL, "blob-public-url", cfg.Blob.PublicURL, "public base URL of the bucket; presigned URLs when empty")
	flags.Int64Var(&cfg.MaxFileBytes, "max-file-bytes", cfg.MaxFileBytes, "largest accepted file in bytes")
	flags.IntVar(&cfg.MaxFiles, "max-files", cfg.MaxFiles, "file parts accepted per request")
	flags.StringVar(&cfg.MetadataDB, "metadata-db", cfg.MetadataDB, "SQLite database recording uploads")
	flags.StringVar(&cfg.DynamoTable, "dynamo-table", cfg.DynamoTable, "DynamoDB table recording uploads")
	flags.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "HTTP read timeout")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "HTTP write timeout")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")

	return flags
}

// Usage returns the flag help text.
func Usage() string {
	var path string
	return newFlagSet(Default(), &path).FlagUsages()
}

// applyEnv overrides c with any STASH_* variables that are set.
func (c *Config) applyEnv(getenv func(string) string) error {
	// STASH_BLOB_SECRET_KEY comes after STASH_BLOB_TOKEN so it wins when
	// both are set.
	strs := []struct {
		name string
		dst  *string
	}{
		{"STASH_LISTEN", &c.Listen},
		{"STASH_BACKEND", &c.Backend},
		{"STASH_DATA_DIR", &c.DataDir},
		{"STASH_SITE_URL", &c.SiteURL},
		{"STASH_BLOB_ENDPOINT", &c.Blob.Endpoint},
		{"STASH_BLOB_ACCESS_KEY", &c.Blob.AccessKey},
		{"STASH_BLOB_TOKEN", &c.Blob.SecretKey},
		{"STASH_BLOB_SECRET_KEY", &c.Blob.SecretKey},
		{"STASH_BLOB_BUCKET", &c.Blob.Bucket},
		{"STASH_BLOB_REGION", &c.Blob.Region},
		{"STASH_BLOB_PUBLIC_URL", &c.Blob.PublicURL},
		{"STASH_METADATA_DB", &c.MetadataDB},
		{"STASH_DYNAMO_TABLE", &c.DynamoTable},
	}
	for _, s := range strs {
		if v := strings.TrimSpace(getenv(s.name)); v != "" {
			*s.dst = v
		}
	}

	var errs []error
	if v := getenv("STASH_BLOB_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STASH_BLOB_SSL: %w", err))
		}
		c.Blob.UseSSL = b
	}
	if v := getenv("STASH_MAX_FILE_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("STASH_MAX_FILE_BYTES: %w", err))
		}
		c.MaxFileBytes = n
	}
	if v := getenv("STASH_MAX_FILES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("STASH_MAX_FILES: %w", err))
		}
		c.MaxFiles = n
	}

	return errors.Join(errs...)
}

// resolveSiteURL falls back from the configured value to the hosting
// platform's URL and DEPLOY_URL, then DefaultSiteURL.
func resolveSiteURL(configured string, getenv func(string) string) string {
	for _, candidate := range []string{configured, getenv("URL"), getenv("DEPLOY_URL")} {
		if candidate = strings.TrimSpace(candidate); candidate != "" {
			return strings.TrimRight(candidate, "/")
		}
	}
	return DefaultSiteURL
}
