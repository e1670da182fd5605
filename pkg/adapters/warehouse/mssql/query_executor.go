//go:build mssql || all_adapters

package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb" // also registers the sqlserver driver

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
)

// QueryExecutor provides SQL Server query execution.
type QueryExecutor struct {
	db *sql.DB
}

// NewQueryExecutor opens a SQL Server connection pool and verifies it.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	connStr := cfg.ConnectionString()
	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return nil, fmt.Errorf("open SQL auth connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to sql server at %s: %w", logging.SanitizeConnectionString(connStr), err)
	}
	return &QueryExecutor{db: db}, nil
}

// Query runs a SELECT statement and returns bounded results.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*warehouse.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a SELECT with @p1, @p2, ... parameters bound in order.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []warehouse.Param, limit int) (*warehouse.QueryExecutionResult, error) {
	// SQL Server has no LIMIT; TOP bounds the wrapped query instead.
	queryToRun := fmt.Sprintf("SELECT TOP (%d) * FROM (%s) AS _limited", warehouse.EffectiveLimit(limit), sqlQuery)

	namedParams := make([]any, len(params))
	for i, p := range params {
		namedParams[i] = sql.Named(fmt.Sprintf("p%d", i+1), p.Value)
	}

	rows, err := e.db.QueryContext(ctx, queryToRun, namedParams...)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()

	columnNames, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	columns := make([]warehouse.ColumnInfo, len(columnNames))
	for i, colName := range columnNames {
		columns[i] = warehouse.ColumnInfo{
			Name: colName,
			Type: strings.ToUpper(columnTypes[i].DatabaseTypeName()),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columnNames))
		valuePtrs := make([]any, len(columnNames))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, queryError(err)
		}

		rowMap := make(map[string]any, len(columnNames))
		for i, col := range columnNames {
			rowMap[col] = convertValue(values[i], columns[i].Type)
		}
		resultRows = append(resultRows, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError(err)
	}

	return &warehouse.QueryExecutionResult{
		Columns:  columns,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// QuoteIdentifier brackets each dot-separated segment.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return quoteIdentifier(name)
}

// Placeholder returns the @pN marker bound by QueryWithParams.
func (e *QueryExecutor) Placeholder(_ warehouse.Param, index int) string {
	return fmt.Sprintf("@p%d", index)
}

// Dialect implements warehouse.QueryExecutor.
func (e *QueryExecutor) Dialect() string {
	return warehouse.DialectMSSQL
}

// Close releases the connection pool.
func (e *QueryExecutor) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

func queryError(err error) error {
	var msErr mssqldb.Error
	if errors.As(err, &msErr) {
		return &apperrors.QueryExecutionError{
			Warehouse: warehouse.DialectMSSQL,
			Message:   msErr.Message,
			Cause:     err,
		}
	}
	return apperrors.NewQueryExecutionError(warehouse.DialectMSSQL, err)
}

// Ensure QueryExecutor implements warehouse.QueryExecutor at compile time.
var _ warehouse.QueryExecutor = (*QueryExecutor)(nil)
