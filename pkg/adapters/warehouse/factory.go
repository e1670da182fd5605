package warehouse

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
)

// NewFromConfig builds the configured warehouse executor. The adapter must
// be compiled in and registered; postgres and mssql need their build tag
// (or all_adapters).
func NewFromConfig(ctx context.Context, cfg config.WarehouseConfig, logger *zap.Logger) (QueryExecutor, error) {
	factory := GetFactory(cfg.Type)
	if factory == nil {
		var available []string
		for _, info := range RegisteredAdapters() {
			available = append(available, info.Type)
		}
		return nil, fmt.Errorf("warehouse type %q is not registered (available: %s; build with -tags %s or all_adapters)",
			cfg.Type, strings.Join(available, ", "), cfg.Type)
	}

	exec, err := factory(ctx, cfg.AdapterConfig())
	if err != nil {
		return nil, fmt.Errorf("create %s executor: %w", cfg.Type, err)
	}

	logger.Info("Warehouse executor ready",
		zap.String("type", cfg.Type),
		zap.String("dialect", exec.Dialect()))
	return exec, nil
}

// pingQuery has a named column so every dialect accepts it inside the limit wrapper.
const pingQuery = "SELECT 1 AS ok"

// Ping runs a trivial bounded query to confirm the warehouse answers.
func Ping(ctx context.Context, exec QueryExecutor) error {
	if _, err := exec.Query(ctx, pingQuery, 1); err != nil {
		return fmt.Errorf("ping %s warehouse: %w", exec.Dialect(), err)
	}
	return nil
}
