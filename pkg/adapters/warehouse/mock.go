package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MockQueryExecutor is a configurable QueryExecutor for tests.
type MockQueryExecutor struct {
	// QueryFunc handles both Query and QueryWithParams when set.
	QueryFunc func(ctx context.Context, sqlQuery string, params []Param, limit int) (*QueryExecutionResult, error)

	// Results maps a substring of the SQL text (typically a table name) to a
	// canned result. Used when QueryFunc is nil; the longest matching key wins.
	Results map[string]*QueryExecutionResult

	// DialectName is returned by Dialect. Defaults to postgres.
	DialectName string

	mu      sync.Mutex
	Queries []string
	Params  [][]Param
	Limits  []int
	Closed  bool
}

// NewMockQueryExecutor creates a mock returning the given canned results.
func NewMockQueryExecutor(results map[string]*QueryExecutionResult) *MockQueryExecutor {
	return &MockQueryExecutor{Results: results, DialectName: DialectPostgres}
}

// Query implements QueryExecutor.
func (m *MockQueryExecutor) Query(ctx context.Context, sqlQuery string, limit int) (*QueryExecutionResult, error) {
	return m.QueryWithParams(ctx, sqlQuery, nil, limit)
}

// QueryWithParams implements QueryExecutor.
func (m *MockQueryExecutor) QueryWithParams(ctx context.Context, sqlQuery string, params []Param, limit int) (*QueryExecutionResult, error) {
	m.mu.Lock()
	m.Queries = append(m.Queries, sqlQuery)
	m.Params = append(m.Params, params)
	m.Limits = append(m.Limits, limit)
	m.mu.Unlock()

	if m.QueryFunc != nil {
		return m.QueryFunc(ctx, sqlQuery, params, limit)
	}

	keys := make([]string, 0, len(m.Results))
	for k := range m.Results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return len(keys[i]) > len(keys[j]) })
	for _, k := range keys {
		if strings.Contains(sqlQuery, k) {
			return m.Results[k], nil
		}
	}
	return nil, fmt.Errorf("mock: no result configured for query %q", sqlQuery)
}

// QuoteIdentifier implements QueryExecutor using double quotes per segment.
func (m *MockQueryExecutor) QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// Placeholder implements QueryExecutor.
func (m *MockQueryExecutor) Placeholder(p Param, index int) string {
	switch m.Dialect() {
	case DialectBigQuery:
		return "@" + p.Name
	case DialectMSSQL:
		return fmt.Sprintf("@p%d", index)
	default:
		return fmt.Sprintf("$%d", index)
	}
}

// Dialect implements QueryExecutor.
func (m *MockQueryExecutor) Dialect() string {
	if m.DialectName == "" {
		return DialectPostgres
	}
	return m.DialectName
}

// Close implements QueryExecutor.
func (m *MockQueryExecutor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Calls returns the number of queries issued so far.
func (m *MockQueryExecutor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Queries)
}

// ResultFromRows builds a result with the given column order. Handy in tests.
func ResultFromRows(columns []string, rows ...[]any) *QueryExecutionResult {
	res := &QueryExecutionResult{Rows: make([]map[string]any, 0, len(rows))}
	for _, c := range columns {
		res.Columns = append(res.Columns, ColumnInfo{Name: c})
	}
	for _, r := range rows {
		m := make(map[string]any, len(columns))
		for i, c := range columns {
			if i < len(r) {
				m[c] = r[i]
			} else {
				m[c] = nil
			}
		}
		res.Rows = append(res.Rows, m)
	}
	res.RowCount = len(res.Rows)
	return res
}

// Ensure MockQueryExecutor implements QueryExecutor at compile time.
var _ QueryExecutor = (*MockQueryExecutor)(nil)
