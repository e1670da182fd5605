//go:build mssql || all_adapters

package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Type:        warehouse.DialectMSSQL,
			DisplayName: "Microsoft SQL Server",
			BuildTag:    "mssql",
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
