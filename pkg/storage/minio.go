package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinIOConfig locates an S3 compatible bucket.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// MinIOStore uploads documents to an object store bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewMinIOStore connects to the endpoint in cfg. No request is made until
// the first Save.
func NewMinIOStore(cfg MinIOConfig, logger *zap.Logger) (*MinIOStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return NewMinIOStoreWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

// NewMinIOStoreWithClient wraps an existing client.
func NewMinIOStoreWithClient(client *minio.Client, bucket, prefix string, logger *zap.Logger) *MinIOStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinIOStore{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectName returns the key a document named name is stored under.
func (s *MinIOStore) ObjectName(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// ensureBucket creates the bucket unless it already exists.
func (s *MinIOStore) ensureBucket(ctx context.Context) error {
	err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	if err == nil {
		s.logger.Info("bucket created", zap.String("bucket", s.bucket))
		return nil
	}
	exists, errExists := s.client.BucketExists(ctx, s.bucket)
	if errExists == nil && exists {
		return nil
	}
	return fmt.Errorf("bucket %s: %w", s.bucket, err)
}

// Save implements Store.
func (s *MinIOStore) Save(ctx context.Context, name string, data []byte) (string, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return "", err
	}
	key := s.ObjectName(name)
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: ContentTypeDICOM})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	s.logger.Info("structure set uploaded",
		zap.String("bucket", s.bucket),
		zap.String("object", key),
		zap.String("size", humanize.Bytes(uint64(info.Size))))
	return "s3://" + s.bucket + "/" + key, nil
}
