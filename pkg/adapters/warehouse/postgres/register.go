//go:build postgres || all_adapters

package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Type:        warehouse.DialectPostgres,
			DisplayName: "PostgreSQL",
			BuildTag:    "postgres",
		},
		Factory: func(ctx context.Context, config map[string]any) (warehouse.QueryExecutor, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewQueryExecutor(ctx, cfg)
		},
	})
}
