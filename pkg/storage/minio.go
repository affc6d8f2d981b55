// Package storage archives raw training uploads in MinIO.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"comerse-go/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive stores raw uploaded files so an ingestion run can be replayed.
type Archive struct {
	client *minio.Client
	bucket string
}

// NewArchive connects a MinIO client and ensures the bucket exists.
func NewArchive(cfg config.MinIOConfig) (*Archive, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check minio bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create minio bucket: %w", err)
		}
	}

	return &Archive{client: client, bucket: cfg.BucketName}, nil
}

// Put stores an object and returns its key unchanged.
func (a *Archive) Put(ctx context.Context, objectKey string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, a.bucket, objectKey, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to store object %s: %w", objectKey, err)
	}
	return nil
}

// PresignedURL generates a temporary download link for an archived object.
func (a *Archive) PresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	u, err := a.client.PresignedGetObject(ctx, a.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s: %w", objectKey, err)
	}
	return u.String(), nil
}
