// Package s3storage publishes generated artifacts to a MinIO/S3 bucket.
package s3storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dharsanguruparan/ClassBuddy/internal/config"
	"github.com/dharsanguruparan/ClassBuddy/internal/model"
)

// objectAPI is the slice of the MinIO client the publisher needs.
type objectAPI interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, reader io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expires time.Duration, params url.Values) (*url.URL, error)
}

// Storage uploads artifacts under deterministic keys so a retried publish
// overwrites instead of duplicating.
type Storage struct {
	client objectAPI
	bucket string
	region string
}

// New creates a MinIO client from the publish settings.
func New(cfg config.PublishConfig) (*Storage, error) {
	client, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}
	return &Storage{client: client, bucket: cfg.Bucket, region: cfg.S3Region}, nil
}

// EnsureBucket makes sure the artifact bucket exists before use.
func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
			return fmt.Errorf("make bucket %s: %w", s.bucket, err)
		}
	}
	return nil
}

// Publish uploads the artifact and returns its object key as the remote id.
func (s *Storage) Publish(ctx context.Context, artifact model.Artifact, destination string) (string, error) {
	key := ObjectKey(destination, artifact)
	opts := minio.PutObjectOptions{ContentType: artifact.ContentType}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(artifact.Data), int64(len(artifact.Data)), opts); err != nil {
		return "", &model.PublishError{Kind: artifact.Kind, Err: fmt.Errorf("put %s: %w", key, err)}
	}
	return key, nil
}

// PresignURL returns a signed GET URL for a published artifact.
func (s *Storage) PresignURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// ObjectKey is "<destination>/<itemID>/<fileName>" with empty parts dropped.
func ObjectKey(destination string, artifact model.Artifact) string {
	name := artifact.FileName
	if name == "" {
		name = string(artifact.Kind)
	}
	return strings.TrimPrefix(path.Join(destination, artifact.ItemID, name), "/")
}
