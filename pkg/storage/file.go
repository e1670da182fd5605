package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// FileStore serves objects from a local directory laid out as
// <root>/<bucket>/<key>. Used for development and tests.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string, logger *zap.Logger) *FileStore {
	if root == "" {
		root = "."
	}
	return &FileStore{root: root, logger: logger.Named("storage.file")}
}

func (s *FileStore) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := filepath.Join(s.root, filepath.FromSlash(bucket), filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, accessError(bucket, key, errors.New("path escapes storage root"), false)
	}

	data, err := os.ReadFile(p)
	if err != nil {
		s.logger.Debug("read failed", zap.String("path", p), zap.Error(err))
		return nil, accessError(bucket, key, err, errors.Is(err, fs.ErrNotExist))
	}
	return data, nil
}

func (s *FileStore) Close() error { return nil }
