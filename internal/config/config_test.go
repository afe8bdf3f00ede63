package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"stash/internal/config"

	"github.com/stretchr/testify/require"
)

// env returns a getenv over a fixed map.
func env(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644), "writing config file")
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadWith(nil, env(nil))
	require.NoError(t, err)

	require.Equal(t, ":8888", cfg.Listen)
	require.Equal(t, config.BackendBlob, cfg.Backend)
	require.Equal(t, config.DefaultSiteURL, cfg.SiteURL)
	require.Equal(t, int64(5<<20), cfg.MaxFileBytes)
	require.Equal(t, 1, cfg.MaxFiles)
	require.Equal(t, "us-east-1", cfg.Blob.Region)
	require.True(t, cfg.Blob.UseSSL)
}

func TestLoadLayering(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
listen: ":9000"
backend: local
data_dir: /var/lib/stash
max_files: 3
read_timeout: 5s
blob:
  bucket: from-file
  region: eu-west-1
`)

	vars := map[string]string{
		"STASH_CONFIG":      path,
		"STASH_BLOB_BUCKET": "from-env",
		"STASH_MAX_FILES":   "4",
	}
	cfg, err := config.LoadWith([]string{"--max-files", "5"}, env(vars))
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Listen, "file value should apply")
	require.Equal(t, config.BackendLocal, cfg.Backend)
	require.Equal(t, "/var/lib/stash", cfg.DataDir)
	require.Equal(t, 5*time.Second, cfg.ReadTimeout)
	require.Equal(t, "eu-west-1", cfg.Blob.Region)
	require.Equal(t, "from-env", cfg.Blob.Bucket, "environment should override the file")
	require.Equal(t, 5, cfg.MaxFiles, "flags should override the environment")
}

func TestLoadConfigFlag(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "backend: memory\n")
	cfg, err := config.LoadWith([]string{"--config", path}, env(nil))
	require.NoError(t, err)
	require.Equal(t, config.BackendMemory, cfg.Backend)
}

func TestLoadBlobSecretAliases(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadWith(nil, env(map[string]string{"STASH_BLOB_TOKEN": "token"}))
	require.NoError(t, err)
	require.Equal(t, "token", cfg.Blob.SecretKey)

	cfg, err = config.LoadWith(nil, env(map[string]string{
		"STASH_BLOB_TOKEN":      "token",
		"STASH_BLOB_SECRET_KEY": "secret",
	}))
	require.NoError(t, err)
	require.Equal(t, "secret", cfg.Blob.SecretKey, "the explicit secret wins")
}

func TestLoadSiteURLFallbacks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"explicit", map[string]string{"STASH_SITE_URL": "https://files.example/", "URL": "https://site.example"}, "https://files.example"},
		{"platform url", map[string]string{"URL": "https://site.example", "DEPLOY_URL": "https://deploy.example"}, "https://site.example"},
		{"deploy url", map[string]string{"DEPLOY_URL": "https://deploy.example"}, "https://deploy.example"},
		{"default", nil, "http://localhost:8888"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := config.LoadWith(nil, env(tt.vars))
			require.NoError(t, err)
			require.Equal(t, tt.want, cfg.SiteURL)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		vars map[string]string
	}{
		{"unknown backend", []string{"--backend", "ftp"}, nil},
		{"negative size", nil, map[string]string{"STASH_MAX_FILE_BYTES": "-1"}},
		{"bad number", nil, map[string]string{"STASH_MAX_FILES": "many"}},
		{"bad bool", nil, map[string]string{"STASH_BLOB_SSL": "sometimes"}},
		{"two indexes", []string{"--metadata-db", "x.db", "--dynamo-table", "uploads"}, nil},
		{"unknown flag", []string{"--nope"}, nil},
		{"missing file", []string{"--config", "/does/not/exist.yaml"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadWith(tt.args, env(tt.vars))
			require.Error(t, err)
		})
	}
}

func TestLoadFileRejectsUnknownKeys(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "listen: \":1\"\nlisten_port: 2\n")
	cfg := config.Default()
	require.Error(t, cfg.LoadFile(path))
}

func TestLoadEmptyFile(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "")
	cfg := config.Default()
	require.NoError(t, cfg.LoadFile(path))
	require.Equal(t, ":8888", cfg.Listen)
}

func TestPolicy(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.MaxFileBytes = 1024
	cfg.MaxFiles = 0

	policy := cfg.Policy()
	require.Equal(t, int64(1024), policy.MaxBytesPerFile)
	require.Equal(t, 1, policy.MaxFiles, "zero falls back to the default")
	require.True(t, policy.Allows("POST"))
}
