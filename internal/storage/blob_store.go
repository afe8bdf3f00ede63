package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultPresignExpiry is how long presigned object URLs stay valid when
// no public base URL is configured.
const DefaultPresignExpiry = 7 * 24 * time.Hour

// BlobConfig describes how to reach the S3-compatible object store.
type BlobConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"ssl"`

	// PublicURL, when set, is the base under which objects are publicly
	// readable, e.g. a CDN in front of the bucket. Without it URLs are
	// presigned.
	PublicURL string `yaml:"public_url"`

	// PresignExpiry bounds presigned URL lifetime.
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// BlobStore is a Backend writing to an S3-compatible object store through
// the MinIO client. Objects live at <bucket>/uploads/<key>.
type BlobStore struct {
	client *minio.Client
	cfg    BlobConfig
}

// NewBlobStore validates cfg and builds a client. It does not contact the
// store, so it is cheap enough to call per request; a missing endpoint,
// bucket or credential is reported as an error.
func NewBlobStore(cfg BlobConfig) (*BlobStore, error) {
	var missing []string
	if cfg.Endpoint == "" {
		missing = append(missing, "endpoint")
	}
	if cfg.Bucket == "" {
		missing = append(missing, "bucket")
	}
	if cfg.AccessKey == "" {
		missing = append(missing, "access key")
	}
	if cfg.SecretKey == "" {
		missing = append(missing, "secret key")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("blob store not configured: missing %s", strings.Join(missing, ", "))
	}

	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = DefaultPresignExpiry
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &BlobStore{client: client, cfg: cfg}, nil
}

func (s *BlobStore) Name() string {
	return "blob"
}

func objectName(key string) string {
	return Namespace + "/" + key
}

func (s *BlobStore) Put(ctx context.Context, key string, data []byte, meta Metadata) (string, error) {
	if key == "" {
		return "", errors.New("empty object key")
	}

	_, err := s.client.PutObject(ctx, s.cfg.Bucket, objectName(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: meta.ContentType,
		UserMetadata: map[string]string{
			"original-name": url.QueryEscape(meta.OriginalName),
			"size":          strconv.FormatInt(meta.Size, 10),
			"ingested-at":   meta.IngestedAt.UTC().Format(time.RFC3339Nano),
			"digest":        meta.Digest,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object %q to bucket %q: %w", key, s.cfg.Bucket, err)
	}

	return s.URL(ctx, key)
}

func (s *BlobStore) URL(ctx context.Context, key string) (string, error) {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + Namespace + "/" + url.PathEscape(key), nil
	}

	u, err := s.client.PresignedGetObject(ctx, s.cfg.Bucket, objectName(key), s.cfg.PresignExpiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %q: %w", key, err)
	}
	return u.String(), nil
}

// EnsureBucket creates the configured bucket if it does not exist yet.
func (s *BlobStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("failed to create bucket %q: %w", s.cfg.Bucket, err)
		}
	}
	return nil
}
