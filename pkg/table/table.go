// Package table is a small in-memory, column-ordered table used for warehouse
// results, mapping files, and reconciliation output. Rows are keyed by column
// name; a missing key and a nil value both mean "no value".
package table

import (
	"fmt"
	"math"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Row is one record keyed by column name.
type Row map[string]any

// Table is an ordered list of columns plus rows.
type Table struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// New creates an empty table with the given columns.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...), Rows: []Row{}}
}

// FromRecords builds a table from a header and string records, the shape
// produced by CSV and spreadsheet readers. Short records are padded with nil.
func FromRecords(header []string, records [][]string) *Table {
	t := New(header...)
	for _, rec := range records {
		row := make(Row, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = rec[i]
			} else {
				row[col] = nil
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// Append adds a row. Columns not yet in the table are appended in sorted order.
func (t *Table) Append(row Row) {
	var extra []string
	for k := range row {
		if !t.HasColumn(k) {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	t.Columns = append(t.Columns, extra...)
	t.Rows = append(t.Rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// IsEmpty reports whether t is nil or has no rows.
func (t *Table) IsEmpty() bool {
	return t.Len() == 0
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Head returns a copy of the first n rows.
func (t *Table) Head(n int) *Table {
	if n > len(t.Rows) || n < 0 {
		n = len(t.Rows)
	}
	out := New(t.Columns...)
	for _, r := range t.Rows[:n] {
		out.Rows = append(out.Rows, r.clone())
	}
	return out
}

// Rename returns a copy with columns renamed per mapping. Names not present in
// the table are ignored. Renaming onto a column that is kept, or renaming two
// columns onto one name, fails with ErrColumnCollision.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	renamed := make(map[string]string, len(mapping))
	for _, c := range t.Columns {
		to, ok := mapping[c]
		if !ok || to == c {
			continue
		}
		if prev, dup := renamed[to]; dup {
			return nil, fmt.Errorf("%w: %s and %s both rename to %s", ErrColumnCollision, prev, c, to)
		}
		renamed[to] = c
	}
	for _, c := range t.Columns {
		from, target := renamed[c]
		if !target {
			continue
		}
		if to, moves := mapping[c]; !moves || to == c {
			return nil, fmt.Errorf("%w: renaming %s to %s would overwrite an existing column", ErrColumnCollision, from, c)
		}
	}

	out := &Table{Columns: make([]string, len(t.Columns)), Rows: make([]Row, 0, len(t.Rows))}
	for i, c := range t.Columns {
		if to, ok := mapping[c]; ok {
			out.Columns[i] = to
		} else {
			out.Columns[i] = c
		}
	}
	for _, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			if to, ok := mapping[k]; ok {
				nr[to] = v
			} else if _, taken := nr[k]; !taken {
				nr[k] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// Filter returns the rows for which keep returns true.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.Columns...)
	for _, r := range t.Rows {
		if keep(r) {
			out.Rows = append(out.Rows, r.clone())
		}
	}
	return out
}

// DropDuplicateColumns keeps the first occurrence of each column name.
func (t *Table) DropDuplicateColumns() *Table {
	seen := make(map[string]bool, len(t.Columns))
	cols := t.Columns[:0:0]
	for _, c := range t.Columns {
		if !seen[c] {
			seen[c] = true
			cols = append(cols, c)
		}
	}
	t.Columns = cols
	return t
}

// NumericColumns returns columns where every non-nil value is numeric and at
// least one value is present.
func (t *Table) NumericColumns() []string {
	var cols []string
	for _, c := range t.Columns {
		seen := false
		numeric := true
		for _, r := range t.Rows {
			v := r[c]
			if v == nil {
				continue
			}
			if !isNumberKind(v) {
				numeric = false
				break
			}
			seen = true
		}
		if numeric && seen {
			cols = append(cols, c)
		}
	}
	return cols
}

func (r Row) clone() Row {
	nr := make(Row, len(r))
	for k, v := range r {
		nr[k] = v
	}
	return nr
}

// IsNull reports whether v carries no value (nil or NaN).
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	case *big.Rat:
		return x == nil
	}
	return false
}

func isNumberKind(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64, *big.Rat:
		return true
	}
	return false
}

// ToFloat coerces numeric values and numeric text to float64. Thousands
// separators in text are ignored. NaN and nil are not numeric.
func ToFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case nil:
		return 0, false
	case float64:
		return x, !math.IsNaN(x)
	case float32:
		return float64(x), !math.IsNaN(float64(x))
	case int:
		return float64(x), true
	case int8:
		return float64(x), true
	case int16:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint8:
		return float64(x), true
	case uint16:
		return float64(x), true
	case uint32:
		return float64(x), true
	case uint64:
		return float64(x), true
	case *big.Rat:
		if x == nil {
			return 0, false
		}
		f, _ := x.Float64()
		return f, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(x), ",", "")
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// FormatValue renders a value as text for CSV, spreadsheets and prompts.
// Integral floats print without a fractional part.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		if x == math.Trunc(x) && math.Abs(x) < 1e15 {
			return strconv.FormatInt(int64(x), 10)
		}
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return FormatValue(float64(x))
	case *big.Rat:
		if x == nil {
			return ""
		}
		if x.IsInt() {
			return x.Num().String()
		}
		f, _ := x.Float64()
		return strconv.FormatFloat(f, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339)
	case []byte:
		return string(x)
	case fmt.Stringer:
		return x.String()
	}
	return fmt.Sprint(v)
}

// keyValue normalizes a value for key comparison so that 42, 42.0 and "42"
// compare equal. ok is false for null values, which never match in joins.
func keyValue(v any) (string, bool) {
	if IsNull(v) {
		return "", false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s), true
	}
	return FormatValue(v), true
}

// compositeKey joins key values with a unit separator. ok is false when any
// component is null; the returned key still encodes the null so callers that
// treat nulls as values (Distinct) can use it.
func compositeKey(r Row, keys []string) (string, bool) {
	var b strings.Builder
	ok := true
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(0x1f)
		}
		s, present := keyValue(r[k])
		if !present {
			ok = false
			b.WriteByte(0x00)
			continue
		}
		b.WriteString(s)
	}
	return b.String(), ok
}
