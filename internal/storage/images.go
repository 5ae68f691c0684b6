package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var (
	ErrNotConfigured    = errors.New("image storage is not configured")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var imageExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
}

// Uploader stores listing images and returns their public URL.
type Uploader interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// ImageKey builds a unique object key for a seller's listing image.
func ImageKey(sellerID, contentType string) (string, error) {
	ext, ok := imageExtensions[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedImage, contentType)
	}
	return path.Join("robots", sellerID, uuid.NewString()+ext), nil
}

// MinioUploader writes images to an S3-compatible bucket.
type MinioUploader struct {
	bucket        string
	publicBaseURL string
	client        *minio.Client
	logger        *slog.Logger
	bucketOnce    sync.Once
	bucketErr     error
}

// NewMinioUploader configures an uploader for endpoint. publicBaseURL defaults to the endpoint.
func NewMinioUploader(endpoint string, useSSL bool, accessKey, secretKey, bucket, publicBaseURL string, logger *slog.Logger) (*MinioUploader, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, ErrNotConfigured
	}
	if bucket = strings.TrimSpace(bucket); bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	client, err := minio.New(hostOf(endpoint), &minio.Options{
		Creds:  credentials.NewStaticV4(strings.TrimSpace(accessKey), strings.TrimSpace(secretKey), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create client: %w", err)
	}

	base := strings.TrimSpace(publicBaseURL)
	if base == "" {
		scheme := "http://"
		if useSSL {
			scheme = "https://"
		}
		base = endpoint
		if !strings.Contains(base, "://") {
			base = scheme + base
		}
	}
	return &MinioUploader{
		bucket:        bucket,
		publicBaseURL: strings.TrimRight(base, "/"),
		client:        client,
		logger:        logger,
	}, nil
}

// Upload stores body under key and returns the object's public URL.
func (u *MinioUploader) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	key = strings.Trim(strings.TrimSpace(key), "/")
	if key == "" {
		return "", errors.New("storage: object key is required")
	}
	if err := u.ensureBucket(ctx); err != nil {
		return "", err
	}

	if _, err := u.client.PutObject(ctx, u.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("storage: put object: %w", err)
	}

	publicURL := fmt.Sprintf("%s/%s/%s", u.publicBaseURL, u.bucket, key)
	u.logger.Info("image uploaded", "bucket", u.bucket, "key", key, "size", size)
	return publicURL, nil
}

func (u *MinioUploader) ensureBucket(ctx context.Context) error {
	u.bucketOnce.Do(func() {
		exists, err := u.client.BucketExists(ctx, u.bucket)
		if err != nil {
			u.bucketErr = fmt.Errorf("storage: check bucket: %w", err)
			return
		}
		if exists {
			return
		}
		if err := u.client.MakeBucket(ctx, u.bucket, minio.MakeBucketOptions{}); err != nil {
			u.bucketErr = fmt.Errorf("storage: create bucket: %w", err)
			return
		}
		policy := fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/*"]}]}`, u.bucket)
		if err := u.client.SetBucketPolicy(ctx, u.bucket, policy); err != nil {
			u.bucketErr = fmt.Errorf("storage: set bucket policy: %w", err)
		}
	})
	return u.bucketErr
}

// NoopUploader rejects uploads when no object storage is configured.
type NoopUploader struct{}

func (NoopUploader) Upload(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", ErrNotConfigured
}

func hostOf(endpoint string) string {
	if parsed, err := url.Parse(endpoint); err == nil && parsed.Host != "" {
		return parsed.Host
	}
	return endpoint
}

var (
	_ Uploader = (*MinioUploader)(nil)
	_ Uploader = NoopUploader{}
)
