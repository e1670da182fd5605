//go:build postgres || all_adapters

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
)

// QueryExecutor provides PostgreSQL query execution.
type QueryExecutor struct {
	pool      *pgxpool.Pool
	ownedPool bool // true if we created the pool
}

// NewQueryExecutor creates a PostgreSQL query executor with its own pool.
func NewQueryExecutor(ctx context.Context, cfg *Config) (*QueryExecutor, error) {
	connStr := cfg.ConnectionString()
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres at %s: %w", logging.SanitizeConnectionString(connStr), err)
	}
	return &QueryExecutor{pool: pool, ownedPool: true}, nil
}

// NewQueryExecutorWithPool wraps an existing pool. Close leaves the pool open.
func NewQueryExecutorWithPool(pool *pgxpool.Pool) *QueryExecutor {
	return &QueryExecutor{pool: pool}
}

// Query runs a SELECT statement and returns bounded results.
func (e *QueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*warehouse.QueryExecutionResult, error) {
	return e.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams runs a SELECT with positional $n parameters bound in order.
func (e *QueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []warehouse.Param, limit int) (*warehouse.QueryExecutionResult, error) {
	queryToRun := fmt.Sprintf("SELECT * FROM (%s) AS _limited LIMIT %d", sqlQuery, warehouse.EffectiveLimit(limit))

	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.Value
	}

	rows, err := e.pool.Query(ctx, queryToRun, args...)
	if err != nil {
		return nil, queryError(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]warehouse.ColumnInfo, len(fields))
	for i, fd := range fields {
		columns[i] = warehouse.ColumnInfo{
			Name: fd.Name,
			Type: pgTypeNameFromOID(fd.DataTypeOID),
		}
	}

	resultRows := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, queryError(err)
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col.Name] = normalizeValue(values[i])
		}
		resultRows = append(resultRows, row)
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

// QuoteIdentifier quotes each dot-separated segment with PostgreSQL's
// double-quote quoting.
func (e *QueryExecutor) QuoteIdentifier(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// Placeholder returns the positional $n marker.
func (e *QueryExecutor) Placeholder(_ warehouse.Param, index int) string {
	return fmt.Sprintf("$%d", index)
}

// Dialect implements warehouse.QueryExecutor.
func (e *QueryExecutor) Dialect() string {
	return warehouse.DialectPostgres
}

// Close releases the pool if this executor created it.
func (e *QueryExecutor) Close() error {
	if e.ownedPool && e.pool != nil {
		e.pool.Close()
	}
	return nil
}

// normalizeValue turns NUMERIC into float64 so amounts compare numerically.
func normalizeValue(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		if !n.Valid {
			return nil
		}
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}

func queryError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &apperrors.QueryExecutionError{
			Warehouse: warehouse.DialectPostgres,
			Message:   pgErr.Message,
			Cause:     err,
		}
	}
	return apperrors.NewQueryExecutionError(warehouse.DialectPostgres, err)
}

// pgTypeNameFromOID maps common PostgreSQL type OIDs to type names.
func pgTypeNameFromOID(oid uint32) string {
	switch oid {
	case 16:
		return "BOOL"
	case 20:
		return "INT8"
	case 21:
		return "INT2"
	case 23:
		return "INT4"
	case 25:
		return "TEXT"
	case 700:
		return "FLOAT4"
	case 701:
		return "FLOAT8"
	case 1042:
		return "BPCHAR"
	case 1043:
		return "VARCHAR"
	case 1082:
		return "DATE"
	case 1114:
		return "TIMESTAMP"
	case 1184:
		return "TIMESTAMPTZ"
	case 1700:
		return "NUMERIC"
	case 2950:
		return "UUID"
	case 3802:
		return "JSONB"
	default:
		return "UNKNOWN"
	}
}

// Ensure QueryExecutor implements warehouse.QueryExecutor at compile time.
var _ warehouse.QueryExecutor = (*QueryExecutor)(nil)
