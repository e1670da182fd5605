package services

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/audit"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
	sqlutil "github.com/ekaya-inc/ekaya-recon/pkg/sql"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// Export formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// QueryService runs ad-hoc and generated SQL against the warehouse.
type QueryService interface {
	// Generate turns a question into SQL without running it.
	Generate(ctx context.Context, question string) (*GeneratedSQL, error)
	// Execute runs one SQL statement with a bounded row count.
	Execute(ctx context.Context, req *ExecuteQueryRequest) (*QueryResult, error)
	// Run generates SQL for a question and executes it.
	Run(ctx context.Context, question string, limit int) (*RunQueryResult, error)
	// Export executes SQL and writes the result as CSV or XLSX.
	Export(ctx context.Context, sqlQuery, format string, w io.Writer) error
	// Preview returns the first rows of a warehouse table.
	Preview(ctx context.Context, tableName string) (*QueryResult, error)
}

// ColumnFilter keeps rows whose column renders equal to Value.
type ColumnFilter struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// ExecuteQueryRequest contains a SQL statement to run.
type ExecuteQueryRequest struct {
	SQL    string        `json:"sql"`
	Limit  int           `json:"limit,omitempty"` // 0 = configured maximum
	Filter *ColumnFilter `json:"filter,omitempty"`
}

// ChartPoint is one bar of a numeric column chart, indexed by row position.
type ChartPoint struct {
	Index int     `json:"index"`
	Value float64 `json:"value"`
}

// ChartSeries is the chart data for one numeric column.
type ChartSeries struct {
	Column string       `json:"column"`
	Points []ChartPoint `json:"points"`
}

// QueryResult is an executed, post-processed result.
type QueryResult struct {
	SQL       string                 `json:"sql"`
	Columns   []warehouse.ColumnInfo `json:"columns"`
	Rows      []map[string]any       `json:"rows"`
	RowCount  int                    `json:"row_count"`
	Truncated bool                   `json:"truncated"`
	Charts    []ChartSeries          `json:"charts"`
}

// RunQueryResult pairs generated SQL with its result.
type RunQueryResult struct {
	Generated *GeneratedSQL `json:"generated"`
	Result    *QueryResult  `json:"result"`
}

type queryService struct {
	exec         warehouse.QueryExecutor
	generator    SQLGenerator
	maxRows      int
	previewLimit int
	auditor      *audit.SecurityAuditor
	logger       *zap.Logger
}

// NewQueryService creates a query service.
func NewQueryService(exec warehouse.QueryExecutor, generator SQLGenerator, maxRows, previewLimit int, logger *zap.Logger) QueryService {
	if maxRows <= 0 {
		maxRows = warehouse.DefaultQueryLimit
	}
	if previewLimit <= 0 {
		previewLimit = 100
	}
	return &queryService{
		exec:         exec,
		generator:    generator,
		maxRows:      maxRows,
		previewLimit: previewLimit,
		auditor:      audit.NewSecurityAuditor(logger),
		logger:       logger.Named("query"),
	}
}

// Generate implements QueryService.
func (s *queryService) Generate(ctx context.Context, question string) (*GeneratedSQL, error) {
	return s.generator.Generate(ctx, question)
}

// Execute implements QueryService. Warehouse errors are returned as
// QueryExecutionError and never retried.
func (s *queryService) Execute(ctx context.Context, req *ExecuteQueryRequest) (*QueryResult, error) {
	return s.execute(ctx, req, sourceUser)
}

// Statement sources recorded in the audit trail.
const (
	sourceUser      = "user"
	sourceGenerated = "generated"
	sourcePreview   = "preview"
)

func (s *queryService) execute(ctx context.Context, req *ExecuteQueryRequest, source string) (*QueryResult, error) {
	validated := sqlutil.ValidateAndNormalize(req.SQL)
	if validated.Error != nil {
		s.auditor.LogStatementRejected(ctx, source, req.SQL, validated.Error.Error())
		return nil, fmt.Errorf("%w: %s", apperrors.ErrInvalidInput, validated.Error.Error())
	}

	limit := req.Limit
	if limit <= 0 || limit > s.maxRows {
		limit = s.maxRows
	}

	res, err := s.exec.Query(ctx, validated.NormalizedSQL, limit)
	if err != nil {
		s.logger.Error("Query failed",
			zap.String("sql", logging.SanitizeQuery(validated.NormalizedSQL)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	s.auditor.LogQueryExecution(ctx, source, validated.NormalizedSQL, res.RowCount)

	t := res.Table()
	if req.Filter != nil && req.Filter.Column != "" {
		t, err = FilterRows(t, req.Filter.Column, req.Filter.Value)
		if err != nil {
			return nil, err
		}
	}

	return &QueryResult{
		SQL:       validated.NormalizedSQL,
		Columns:   res.Columns,
		Rows:      rowsOf(t),
		RowCount:  t.Len(),
		Truncated: res.RowCount >= limit,
		Charts:    ChartData(t),
	}, nil
}

// Run implements QueryService.
func (s *queryService) Run(ctx context.Context, question string, limit int) (*RunQueryResult, error) {
	gen, err := s.generator.Generate(ctx, question)
	if err != nil {
		return nil, err
	}
	res, err := s.execute(ctx, &ExecuteQueryRequest{SQL: gen.SQL, Limit: limit}, sourceGenerated)
	if err != nil {
		return nil, err
	}
	return &RunQueryResult{Generated: gen, Result: res}, nil
}

// Export implements QueryService.
func (s *queryService) Export(ctx context.Context, sqlQuery, format string, w io.Writer) error {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != FormatCSV && format != FormatXLSX {
		return fmt.Errorf("%w: unsupported export format %q", apperrors.ErrInvalidInput, format)
	}

	res, err := s.Execute(ctx, &ExecuteQueryRequest{SQL: sqlQuery})
	if err != nil {
		return err
	}
	t := res.Table()
	if format == FormatXLSX {
		return table.WriteXLSX(w, t, "Report")
	}
	return table.WriteCSV(w, t)
}

// Table returns the result rows as a table in column order.
func (r *QueryResult) Table() *table.Table {
	t := table.New()
	for _, c := range r.Columns {
		t.Columns = append(t.Columns, c.Name)
	}
	for _, row := range r.Rows {
		t.Rows = append(t.Rows, table.Row(row))
	}
	return t
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+(\.[A-Za-z0-9_\-]+){0,2}$`)

// Preview implements QueryService.
func (s *queryService) Preview(ctx context.Context, tableName string) (*QueryResult, error) {
	if !tableNamePattern.MatchString(tableName) {
		return nil, fmt.Errorf("%w: invalid table name %q", apperrors.ErrInvalidInput, tableName)
	}

	sqlQuery := "SELECT * FROM " + s.exec.QuoteIdentifier(tableName)
	res, err := s.exec.Query(ctx, sqlQuery, s.previewLimit)
	if err != nil {
		return nil, err
	}
	s.auditor.LogQueryExecution(ctx, sourcePreview, sqlQuery, res.RowCount)
	t := res.Table()
	return &QueryResult{
		SQL:       sqlQuery,
		Columns:   res.Columns,
		Rows:      res.Rows,
		RowCount:  res.RowCount,
		Truncated: res.RowCount >= s.previewLimit,
		Charts:    ChartData(t),
	}, nil
}

// FilterRows keeps rows whose column value renders equal to value.
func FilterRows(t *table.Table, column, value string) (*table.Table, error) {
	if !t.HasColumn(column) {
		return nil, fmt.Errorf("%w: unknown column %q", apperrors.ErrInvalidInput, column)
	}
	return t.Filter(func(r table.Row) bool {
		return table.FormatValue(r[column]) == value
	}), nil
}

// ChartData builds one series per numeric column, skipping null cells.
func ChartData(t *table.Table) []ChartSeries {
	series := make([]ChartSeries, 0)
	for _, col := range t.NumericColumns() {
		s := ChartSeries{Column: col, Points: make([]ChartPoint, 0, t.Len())}
		for i, r := range t.Rows {
			if v, ok := table.ToFloat(r[col]); ok {
				s.Points = append(s.Points, ChartPoint{Index: i, Value: v})
			}
		}
		series = append(series, s)
	}
	return series
}

func rowsOf(t *table.Table) []map[string]any {
	rows := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = r
	}
	return rows
}
