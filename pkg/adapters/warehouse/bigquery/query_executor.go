package bigquery

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
)

// QueryExecutor runs standard SQL against BigQuery.
type QueryExecutor struct {
	client   *bigquery.Client
	location string
}

// NewQueryExecutor opens a BigQuery client for the configured project.
func NewQueryExecutor(ctx context.Context, cfg *Config, opts ...option.ClientOption) (*QueryExecutor, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := bigquery.NewClient(ctx, cfg.Project, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to bigquery: %w", err)
	}
	return &QueryExecutor{client: client, location: cfg.Location}, nil
}

// Query runs a SELECT statement and returns bounded results.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*warehouse.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a SELECT with named @param parameters.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []warehouse.Param, limit int) (*warehouse.QueryExecutionResult, error) {
	q := e.client.Query(wrapLimit(sqlQuery, limit))
	q.Location = e.location
	q.Parameters = toQueryParameters(params)

	it, err := q.Read(ctx)
	if err != nil {
		return nil, queryError(err)
	}

	resultRows := make([]map[string]any, 0)
	var columns []warehouse.ColumnInfo
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, queryError(err)
		}
		if columns == nil {
			columns = columnsFromSchema(it.Schema)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if i < len(values) {
				row[col.Name] = values[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if columns == nil {
		columns = columnsFromSchema(it.Schema)
	}

	return &warehouse.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// QuoteIdentifier wraps the whole (possibly project.dataset.table) name in
// backticks, which BigQuery accepts for dotted paths.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// Placeholder returns a named @param marker.
func (e *QueryExecutor) Placeholder(p warehouse.Param, _ int) string {
	return "@" + p.Name
}

// Dialect implements warehouse.QueryExecutor.
func (e *QueryExecutor) Dialect() string {
	return warehouse.DialectBigQuery
}

// Close releases the client.
func (e *QueryExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}

func wrapLimit(sqlQuery string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, warehouse.EffectiveLimit(limit))
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
}

func toQueryParameters(params []warehouse.Param) []bigquery.QueryParameter {
	if len(params) == 0 {
		return nil
	}
	out := make([]bigquery.QueryParameter, len(params))
	for i, p := range params {
		out[i] = bigquery.QueryParameter{Name: p.Name, Value: p.Value}
	}
	return out
}

func columnsFromSchema(schema bigquery.Schema) []warehouse.ColumnInfo {
	columns := make([]warehouse.ColumnInfo, len(schema))
	for i, f := range schema {
		columns[i] = warehouse.ColumnInfo{Name: f.Name, Type: string(f.Type)}
	}
	return columns
}

// queryError keeps the API's own message, which is what users need to fix
// their SQL.
func queryError(err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Message != "" {
		return &apperrors.QueryExecutionError{
			Warehouse: warehouse.DialectBigQuery,
			Message:   gerr.Message,
			Cause:     err,
		}
	}
	return apperrors.NewQueryExecutionError(warehouse.DialectBigQuery, err)
}

// Ensure QueryExecutor implements warehouse.QueryExecutor at compile time.
var _ warehouse.QueryExecutor = (*QueryExecutor)(nil)
