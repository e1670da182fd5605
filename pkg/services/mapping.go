package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/mapping"
	"github.com/ekaya-inc/ekaya-recon/pkg/storage"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// MappingSet holds the two reference mappings used as prompt context.
type MappingSet struct {
	Siebel   *table.Table `json:"siebel"`
	Antillia *table.Table `json:"antillia"`
}

// Head returns a set trimmed to the first n rows of each mapping.
func (m *MappingSet) Head(n int) *MappingSet {
	return &MappingSet{Siebel: m.Siebel.Head(n), Antillia: m.Antillia.Head(n)}
}

// MappingService loads mapping files from object storage.
type MappingService interface {
	// Load returns the configured Siebel and Antillia mappings.
	Load(ctx context.Context) (*MappingSet, error)
	// ForControl returns the mappings a product control names, keeping the
	// configured file for any system the control does not override.
	ForControl(ctx context.Context, pc config.ProductControl) (*MappingSet, error)
	// LoadFile returns one mapping file under the configured location.
	LoadFile(ctx context.Context, fileName string) (*table.Table, error)
}

type mappingService struct {
	store    storage.ObjectStore
	cfg      config.MappingsConfig
	cache    *ttlcache.Cache[string, *table.Table]
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewMappingService creates a mapping service. A zero cache TTL disables caching.
func NewMappingService(store storage.ObjectStore, cfg config.MappingsConfig, cacheCfg config.CacheConfig, logger *zap.Logger) MappingService {
	s := &mappingService{
		store:  store,
		cfg:    cfg,
		logger: logger.Named("mappings"),
	}
	if cacheCfg.TTLSeconds > 0 {
		s.cacheTTL = time.Duration(cacheCfg.TTLSeconds) * time.Second
		s.cache = ttlcache.New(ttlcache.WithTTL[string, *table.Table](s.cacheTTL))
	}
	return s
}

// Load implements MappingService.
func (s *mappingService) Load(ctx context.Context) (*MappingSet, error) {
	siebel, err := s.LoadFile(ctx, s.cfg.SiebelFile)
	if err != nil {
		return nil, err
	}
	antillia, err := s.LoadFile(ctx, s.cfg.AntilliaFile)
	if err != nil {
		return nil, err
	}
	return &MappingSet{Siebel: siebel, Antillia: antillia}, nil
}

// ForControl implements MappingService.
func (s *mappingService) ForControl(ctx context.Context, pc config.ProductControl) (*MappingSet, error) {
	files := map[string]string{
		SystemSiebel:   s.cfg.SiebelFile,
		SystemAntillia: s.cfg.AntilliaFile,
	}
	for i, file := range pc.Mappings {
		if i < len(pc.Systems) && strings.TrimSpace(file) != "" {
			files[pc.Systems[i]] = file
		}
	}

	siebel, err := s.LoadFile(ctx, files[SystemSiebel])
	if err != nil {
		return nil, err
	}
	antillia, err := s.LoadFile(ctx, files[SystemAntillia])
	if err != nil {
		return nil, err
	}
	return &MappingSet{Siebel: siebel, Antillia: antillia}, nil
}

// LoadFile implements MappingService.
func (s *mappingService) LoadFile(ctx context.Context, fileName string) (*table.Table, error) {
	bucket, key := storage.SplitLocation(s.cfg.Location, fileName)
	cacheKey := bucket + "/" + key

	if s.cache != nil {
		if item := s.cache.Get(cacheKey); item != nil {
			return item.Value(), nil
		}
	}

	data, err := s.store.Get(ctx, bucket, key)
	if err != nil {
		return nil, err
	}

	t, err := mapping.Parse(key, data)
	if err != nil {
		return nil, fmt.Errorf("parse mapping %s: %w", key, err)
	}

	s.logger.Debug("Loaded mapping file",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("rows", t.Len()))

	if s.cache != nil {
		s.cache.Set(cacheKey, t, s.cacheTTL)
	}
	return t, nil
}
