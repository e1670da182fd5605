package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
)

// GCSStore reads objects from Google Cloud Storage using application default
// credentials.
type GCSStore struct {
	client *storage.Client
	logger *zap.Logger
}

// NewGCSStore creates a GCS client.
func NewGCSStore(ctx context.Context, logger *zap.Logger) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSStore{client: client, logger: logger.Named("storage.gcs")}, nil
}

func (s *GCSStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		s.logger.Debug("open object failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err))
		return nil, accessError(bucket, key, err,
			errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, accessError(bucket, key, err, false)
	}
	return data, nil
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
