package bigquery

import (
	"context"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
)

func init() {
	warehouse.Register(warehouse.Registration{
		Info: warehouse.AdapterInfo{
			Type:        warehouse.DialectBigQuery,
			DisplayName: "Google BigQuery",
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
