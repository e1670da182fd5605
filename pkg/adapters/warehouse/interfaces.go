// Package warehouse defines the read-only query surface over the analytics
// warehouse and a registry that adapters add themselves to from init().
package warehouse

import (
	"context"

	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// DefaultQueryLimit applies when a caller passes a non-positive limit.
const DefaultQueryLimit = 1000

// Dialect names.
const (
	DialectBigQuery = "bigquery"
	DialectPostgres = "postgres"
	DialectMSSQL    = "mssql"
)

// Param is a bound query parameter. Name is used by dialects with named
// parameters; positional dialects bind in slice order.
type Param struct {
	Name  string
	Value any
}

// ColumnInfo describes a result column.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// QueryExecutionResult is a bounded result set.
type QueryExecutionResult struct {
	Columns  []ColumnInfo     `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
}

// ColumnNames returns the result column names in order.
func (r *QueryExecutionResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Table converts the result into a table, keeping column order.
func (r *QueryExecutionResult) Table() *table.Table {
	t := table.New(r.ColumnNames()...)
	for _, row := range r.Rows {
		t.Append(table.Row(row))
	}
	return t
}

// QueryExecutor runs read queries against the warehouse.
// Each implementation owns its connection and must be closed when done.
type QueryExecutor interface {
	// Query runs a SELECT statement wrapped in a dialect-specific row limit.
	// limit <= 0 means DefaultQueryLimit.
	Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error)

	// QueryWithParams is Query with bound parameters. Placeholders in sqlQuery
	// must come from Placeholder so they match the dialect.
	QueryWithParams(ctx context.Context, sqlQuery string, params []Param, limit int) (*QueryExecutionResult, error)

	// QuoteIdentifier quotes a possibly dotted table or column name.
	QuoteIdentifier(name string) string

	// Placeholder returns the parameter marker for p at 1-based position index.
	Placeholder(p Param, index int) string

	// Dialect returns one of the Dialect* names.
	Dialect() string

	// Close releases the connection.
	Close() error
}

// EffectiveLimit resolves the row bound applied to a query.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	return limit
}
