package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/abduss/messenger/internal/config"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const defaultObjectStoreTimeout = 5 * time.Second

// NewMinIOClient builds a MinIO client for the avatar bucket. The endpoint may carry an
// http:// or https:// scheme, which overrides UseSSL.
func NewMinIOClient(cfg config.MinIOConfig) (*minio.Client, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("minio endpoint is not configured")
	}

	endpoint, secure, err := endpointAddress(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return client, nil
}

func endpointAddress(raw string, useSSL bool) (string, bool, error) {
	secure := useSSL
	switch {
	case strings.HasPrefix(raw, "https://"):
		raw, secure = strings.TrimPrefix(raw, "https://"), true
	case strings.HasPrefix(raw, "http://"):
		raw, secure = strings.TrimPrefix(raw, "http://"), false
	}
	raw = strings.TrimRight(raw, "/")
	if raw == "" || strings.Contains(raw, "/") {
		return "", false, fmt.Errorf("invalid minio endpoint %q", raw)
	}
	if !strings.Contains(raw, ":") {
		if secure {
			raw += ":443"
		} else {
			raw += ":9000"
		}
	}
	return raw, secure, nil
}

// EnsureBucket creates the configured bucket when it does not exist yet.
func EnsureBucket(ctx context.Context, client *minio.Client, cfg config.MinIOConfig) error {
	ctx, cancel := context.WithTimeout(ctx, defaultObjectStoreTimeout)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
	}

	return nil
}
