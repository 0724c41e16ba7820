package utils

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStorage is the subset of object-store behavior the worker needs:
// fetch a run's CSV to a local temp file before parsing.
type ObjectStorage interface {
	DownloadToTemp(ctx context.Context, bucket, key string) (string, error)
}

// MinioStorage reads S3-stored run files via the S3 API (MinIO in
// development, any S3-compatible store in production).
type MinioStorage struct {
	client *minio.Client
}

// NewMinioStorageFromEnv builds the client from S3_* environment variables.
// Returns (nil, nil) when S3 is not configured; runs with file_storage=s3
// then fail deterministically instead of retrying forever.
func NewMinioStorageFromEnv() (*MinioStorage, error) {
	endpoint := os.Getenv("S3_ENDPOINT_URL")
	accessKey := os.Getenv("S3_ACCESS_KEY")
	secretKey := os.Getenv("S3_SECRET_KEY")
	if endpoint == "" || accessKey == "" || secretKey == "" {
		return nil, nil
	}
	region := os.Getenv("S3_REGION")
	if region == "" {
		region = "us-east-1"
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid S3_ENDPOINT_URL: %w", err)
	}
	host := parsed.Host
	if host == "" {
		// Endpoint given without a scheme
		host = endpoint
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: parsed.Scheme == "https",
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}
	return &MinioStorage{client: client}, nil
}

// DownloadToTemp fetches the object into a throwaway local file. The caller
// owns the temp file and must remove it when done, success or not.
func (s *MinioStorage) DownloadToTemp(ctx context.Context, bucket, key string) (string, error) {
	tmp, err := os.CreateTemp("", "import-*.csv")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	if err := s.client.FGetObject(ctx, bucket, key, tmpPath, minio.GetObjectOptions{}); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("S3 download failed: %w", err)
	}
	return tmpPath, nil
}
