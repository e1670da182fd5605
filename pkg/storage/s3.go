package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store reads objects from S3 or an S3-compatible endpoint.
type S3Store struct {
	client S3API
	logger *zap.Logger
}

// NewS3Store loads the default AWS credential chain and creates a client.
// cfg.Endpoint switches to path-style addressing against a compatible store.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3StoreWithClient(client, logger), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, logger *zap.Logger) *S3Store {
	return &S3Store{client: client, logger: logger.Named("storage.s3")}
}

func (s *S3Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		s.logger.Debug("get object failed",
			zap.String("bucket", bucket),
			zap.String("key", key),
			zap.Error(err))
		var noKey *types.NoSuchKey
		var noBucket *types.NoSuchBucket
		return nil, accessError(bucket, key, err, errors.As(err, &noKey) || errors.As(err, &noBucket))
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, accessError(bucket, key, err, false)
	}
	return data, nil
}

func (s *S3Store) Close() error { return nil }
