package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/audit"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	sqlutil "github.com/ekaya-inc/ekaya-recon/pkg/sql"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// DataLoader reads the reconciliation source tables from the warehouse.
type DataLoader interface {
	// Load fetches every dataset contributed by systems. Billing products are
	// filtered to product with a bound parameter.
	Load(ctx context.Context, product string, systems []string) (table.Datasets, error)
}

type dataLoader struct {
	exec     warehouse.QueryExecutor
	sources  config.SourcesConfig
	recon    config.ReconciliationConfig
	cache    *ttlcache.Cache[string, *table.Table]
	cacheTTL time.Duration
	auditor  *audit.SecurityAuditor
	logger   *zap.Logger
}

// NewDataLoader creates a loader. A zero cache TTL disables caching.
func NewDataLoader(
	exec warehouse.QueryExecutor,
	sources config.SourcesConfig,
	recon config.ReconciliationConfig,
	cacheCfg config.CacheConfig,
	logger *zap.Logger,
) DataLoader {
	l := &dataLoader{
		exec:    exec,
		sources: sources,
		recon:   recon,
		auditor: audit.NewSecurityAuditor(logger),
		logger:  logger.Named("data-loader"),
	}
	if cacheCfg.TTLSeconds > 0 {
		l.cacheTTL = time.Duration(cacheCfg.TTLSeconds) * time.Second
		l.cache = ttlcache.New(ttlcache.WithTTL[string, *table.Table](l.cacheTTL))
	}
	return l
}

// Load implements DataLoader.
func (l *dataLoader) Load(ctx context.Context, product string, systems []string) (table.Datasets, error) {
	if strings.TrimSpace(product) == "" {
		return nil, fmt.Errorf("%w: product is required", apperrors.ErrInvalidInput)
	}
	if s := sqlutil.CheckFilterValue("product", product); s != nil {
		l.auditor.LogInjectionAttempt(ctx, audit.InjectionDetails{
			Field:       s.Name,
			Value:       s.Value,
			Fingerprint: s.Fingerprint,
			Dataset:     DatasetBillingProducts,
		})
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, s.Error())
	}

	data := make(table.Datasets)
	for _, system := range systems {
		names, ok := systemDatasets[strings.ToLower(strings.TrimSpace(system))]
		if !ok {
			return nil, fmt.Errorf("%w: unknown system %q", apperrors.ErrInvalidInput, system)
		}
		for _, name := range names {
			if _, done := data[name]; done {
				continue
			}
			t, err := l.loadDataset(ctx, name, product)
			if err != nil {
				return nil, err
			}
			data[name] = t
		}
	}
	return data, nil
}

func (l *dataLoader) loadDataset(ctx context.Context, name, product string) (*table.Table, error) {
	key := name
	if name == DatasetBillingProducts {
		key = fmt.Sprintf("%s|%s|%s", name, l.recon.ProductMatch, product)
	}
	if l.cache != nil {
		if item := l.cache.Get(key); item != nil {
			l.logger.Debug("Dataset served from cache", zap.String("dataset", name))
			return item.Value(), nil
		}
	}

	sqlQuery, params := l.datasetQuery(name, product)
	start := time.Now()
	result, err := l.exec.QueryWithParams(ctx, sqlQuery, params, l.recon.MaxRows)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}

	if l.recon.MaxRows > 0 && result.RowCount >= l.recon.MaxRows {
		l.logger.Warn("Dataset hit the row limit and may be truncated",
			zap.String("dataset", name),
			zap.Int("max_rows", l.recon.MaxRows))
	}
	l.logger.Info("Loaded dataset",
		zap.String("dataset", name),
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", time.Since(start)))

	if name == DatasetBillingProducts && len(result.Rows) == 0 {
		if err := l.requireRows(ctx, name); err != nil {
			return nil, err
		}
		l.logger.Info("No billing products for product", zap.String("product", product))
	}

	t := result.Table()
	if name == DatasetBillingProducts && l.sources.ProductNameField != "" && l.sources.ProductNameField != ColProductName {
		renamed, err := t.Rename(map[string]string{l.sources.ProductNameField: ColProductName})
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", name, err)
		}
		t = renamed
	}

	if l.cache != nil {
		l.cache.Set(key, t, l.cacheTTL)
	}
	return t, nil
}

// requireRows tells an empty source table apart from a filter that matched
// nothing. An empty table is a MissingDatasetError.
func (l *dataLoader) requireRows(ctx context.Context, name string) error {
	sample, err := l.exec.Query(ctx, "SELECT * FROM "+l.exec.QuoteIdentifier(l.sourceTable(name)), 1)
	if err != nil {
		return fmt.Errorf("load %s: %w", name, err)
	}
	if len(sample.Rows) == 0 {
		return &apperrors.MissingDatasetError{Dataset: name, Empty: true}
	}
	return nil
}

// datasetQuery builds the read for one dataset. Only billing products take a
// filter, and the product is always bound, never spliced into the text.
func (l *dataLoader) datasetQuery(name, product string) (string, []warehouse.Param) {
	from := "SELECT * FROM " + l.exec.QuoteIdentifier(l.sourceTable(name))
	if name != DatasetBillingProducts {
		return from, nil
	}

	p := warehouse.Param{Name: "product", Value: product}
	field := l.sources.ProductNameField
	if field == "" {
		field = ColProductName
	}
	col := l.exec.QuoteIdentifier(field)
	ph := l.exec.Placeholder(p, 1)

	if l.recon.ProductMatch == "fold" {
		return fmt.Sprintf("%s WHERE LOWER(TRIM(%s)) = LOWER(TRIM(%s))", from, col, ph), []warehouse.Param{p}
	}
	return fmt.Sprintf("%s WHERE %s = %s", from, col, ph), []warehouse.Param{p}
}

func (l *dataLoader) sourceTable(name string) string {
	switch name {
	case DatasetSiebelAccounts:
		return l.sources.SiebelAccounts
	case DatasetSiebelAssets:
		return l.sources.SiebelAssets
	case DatasetSiebelOrders:
		return l.sources.SiebelOrders
	case DatasetBillingAccounts:
		return l.sources.BillingAccounts
	case DatasetBillingProducts:
		return l.sources.BillingProducts
	}
	return name
}
