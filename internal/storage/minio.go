package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStore writes objects to an S3-compatible bucket.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore constructs a store from the given config. The endpoint may
// carry an http(s) scheme; it wins over cfg.UseSSL when present.
func NewMinioStore(cfg Config) (*MinioStore, error) {
	host, secure := endpointHost(cfg.Endpoint, cfg.UseSSL)
	if host == "" {
		return nil, fmt.Errorf("storage: endpoint is required")
	}
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}
	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put writes the object with its content type. Any failure surfaces as
// ErrStorageWrite for the caller to classify.
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// endpointHost strips an optional scheme from the endpoint and reports
// whether TLS should be used.
func endpointHost(endpoint string, useSSL bool) (string, bool) {
	endpoint = strings.TrimSpace(endpoint)
	if host, ok := strings.CutPrefix(endpoint, "https://"); ok {
		return strings.TrimRight(host, "/"), true
	}
	if host, ok := strings.CutPrefix(endpoint, "http://"); ok {
		return strings.TrimRight(host, "/"), false
	}
	return strings.TrimRight(endpoint, "/"), useSSL
}

var _ ObjectStore = (*MinioStore)(nil)
