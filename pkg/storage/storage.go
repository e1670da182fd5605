// Package storage reads mapping files from an object store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
)

// ObjectStore reads whole objects. Implementations return
// *apperrors.StorageAccessError for missing or unreadable objects.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Close() error
}

// SplitLocation turns a "bucket" or "bucket/prefix" location plus a file name
// into a bucket and object key.
func SplitLocation(location, fileName string) (bucket, key string) {
	location = strings.Trim(location, "/")
	bucket, prefix, found := strings.Cut(location, "/")
	if !found || prefix == "" {
		return bucket, fileName
	}
	return bucket, path.Join(prefix, fileName)
}

// New creates the object store selected by cfg.Backend.
func New(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (ObjectStore, error) {
	switch cfg.Backend {
	case "gcs":
		return NewGCSStore(ctx, logger)
	case "s3":
		return NewS3Store(ctx, cfg, logger)
	case "file", "":
		return NewFileStore(cfg.Root, logger), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}

// accessError wraps cause, marking not-found causes with apperrors.ErrNotFound.
func accessError(bucket, key string, cause error, notFound bool) error {
	if notFound && !errors.Is(cause, apperrors.ErrNotFound) {
		cause = fmt.Errorf("%w: %v", apperrors.ErrNotFound, cause)
	}
	return &apperrors.StorageAccessError{Bucket: bucket, Key: key, Cause: cause}
}
