// Package archive stores raw export parts in an S3-compatible bucket.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Opts func(c *storeConfig)

type storeConfig struct {
	endpoint        string
	bucket          string
	prefix          string
	accessKey       string
	secretAccessKey string
	runID           string
	useSSL          bool
}

func newConfig(opts ...Opts) *storeConfig {
	cfg := &storeConfig{
		prefix: "logexport",
		useSSL: true,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	return cfg
}

type objectPutter interface {
	PutObject(ctx context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Store writes part bodies as objects under
// <prefix>/<run>/<counter>/<request>/part-<n>.tsv.
type Store struct {
	cfg    *storeConfig
	client objectPutter
}

// New builds a Store. It does not contact the endpoint.
func New(opts ...Opts) (*Store, error) {
	cfg := newConfig(opts...)
	if cfg.endpoint == "" || cfg.bucket == "" {
		return nil, fmt.Errorf("archive: endpoint and bucket are required")
	}

	client, err := minio.New(cfg.endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.accessKey, cfg.secretAccessKey, ""),
		Secure: cfg.useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Store{cfg: cfg, client: client}, nil
}

// RunID identifies this process's objects.
func (s *Store) RunID() string { return s.cfg.runID }

// Key is the object name for one part.
func (s *Store) Key(counterID, requestID string, part int) string {
	return path.Join(s.cfg.prefix, s.cfg.runID, counterID, requestID, fmt.Sprintf("part-%d.tsv", part))
}

func (s *Store) ArchivePart(ctx context.Context, counterID, requestID string, part int, body []byte) error {
	key := s.Key(counterID, requestID, part)
	_, err := s.client.PutObject(ctx, s.cfg.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: "text/tab-separated-values",
	})
	if err != nil {
		return fmt.Errorf("archive %s/%s: %w", s.cfg.bucket, key, err)
	}
	return nil
}

func WithEndpoint(endpoint string) Opts {
	return func(c *storeConfig) {
		c.endpoint = endpoint
	}
}

func WithBucket(bucket string) Opts {
	return func(c *storeConfig) {
		c.bucket = bucket
	}
}

// WithPrefix sets the key prefix. Empty keeps the default.
func WithPrefix(prefix string) Opts {
	return func(c *storeConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func WithAccessKey(accessKey string) Opts {
	return func(c *storeConfig) {
		c.accessKey = accessKey
	}
}

func WithSecretKey(secretKey string) Opts {
	return func(c *storeConfig) {
		c.secretAccessKey = secretKey
	}
}

func WithSSL(useSSL bool) Opts {
	return func(c *storeConfig) {
		c.useSSL = useSSL
	}
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Opts {
	return func(c *storeConfig) {
		c.runID = id
	}
}
