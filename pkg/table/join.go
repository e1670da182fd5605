package table

import (
	"errors"
	"fmt"
	"strings"
)

// JoinType selects which unmatched rows survive a join.
type JoinType string

const (
	// LeftJoin keeps every left row; right columns are nil when unmatched.
	LeftJoin JoinType = "left"
	// InnerJoin keeps only matched rows.
	InnerJoin JoinType = "inner"
)

// ErrColumnCollision is returned when a join would overwrite a left column
// with a right column of the same name and no suffix was declared.
var ErrColumnCollision = errors.New("column collision")

// JoinStep is one join of the plan's running result against a named dataset.
type JoinStep struct {
	// Right names the dataset joined in.
	Right string
	// Rename is applied to the right dataset before joining. Keys refer to
	// the renamed columns.
	Rename map[string]string
	// LeftKeys and RightKeys are matched pairwise.
	LeftKeys  []string
	RightKeys []string
	Type      JoinType
	// Suffix is appended to right columns that collide with left columns.
	// Empty means a collision is an error.
	Suffix string
}

// JoinPlan is an ordered list of joins starting from a base dataset.
type JoinPlan struct {
	Base       string
	BaseRename map[string]string
	Steps      []JoinStep
}

// Datasets supplies tables to a plan by name.
type Datasets map[string]*Table

// Validate checks the plan shape without data.
func (p JoinPlan) Validate() error {
	if p.Base == "" {
		return errors.New("join plan: base dataset is required")
	}
	for i, s := range p.Steps {
		if s.Right == "" {
			return fmt.Errorf("join plan step %d: right dataset is required", i+1)
		}
		if len(s.LeftKeys) == 0 || len(s.LeftKeys) != len(s.RightKeys) {
			return fmt.Errorf("join plan step %d (%s): left and right keys must be non-empty and the same length", i+1, s.Right)
		}
		switch s.Type {
		case LeftJoin, InnerJoin:
		default:
			return fmt.Errorf("join plan step %d (%s): unsupported join type %q", i+1, s.Right, s.Type)
		}
	}
	return nil
}

// Execute runs the plan over the datasets. Every dataset the plan names must
// be present; callers check emptiness themselves.
func Execute(p JoinPlan, data Datasets) (*Table, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	base, ok := data[p.Base]
	if !ok || base == nil {
		return nil, fmt.Errorf("join plan: dataset %s not supplied", p.Base)
	}
	result, err := base.Rename(p.BaseRename)
	if err != nil {
		return nil, fmt.Errorf("join plan: rename %s: %w", p.Base, err)
	}

	for i, s := range p.Steps {
		right, ok := data[s.Right]
		if !ok || right == nil {
			return nil, fmt.Errorf("join plan step %d: dataset %s not supplied", i+1, s.Right)
		}
		renamed, err := right.Rename(s.Rename)
		if err != nil {
			return nil, fmt.Errorf("join plan step %d: rename %s: %w", i+1, s.Right, err)
		}
		joined, err := Join(result, renamed, s)
		if err != nil {
			return nil, fmt.Errorf("join plan step %d (%s): %w", i+1, s.Right, err)
		}
		result = joined
	}
	return result.DropDuplicateColumns(), nil
}

// Join joins left and right on the step's keys. Null keys never match.
// A right key column with the same name as its left key is not repeated.
func Join(left, right *Table, s JoinStep) (*Table, error) {
	for _, k := range s.LeftKeys {
		if !left.HasColumn(k) {
			return nil, fmt.Errorf("left key %q not found", k)
		}
	}
	for _, k := range s.RightKeys {
		if !right.HasColumn(k) {
			return nil, fmt.Errorf("right key %q not found", k)
		}
	}

	sharedKey := make(map[string]bool, len(s.RightKeys))
	for i := range s.RightKeys {
		if s.LeftKeys[i] == s.RightKeys[i] {
			sharedKey[s.RightKeys[i]] = true
		}
	}

	// Map right column -> output column name.
	outName := make(map[string]string, len(right.Columns))
	columns := append([]string(nil), left.Columns...)
	var collisions []string
	for _, c := range right.Columns {
		if sharedKey[c] {
			continue
		}
		name := c
		if left.HasColumn(c) {
			if s.Suffix == "" {
				collisions = append(collisions, c)
				continue
			}
			name = c + s.Suffix
			if left.HasColumn(name) {
				collisions = append(collisions, name)
				continue
			}
		}
		outName[c] = name
		columns = append(columns, name)
	}
	if len(collisions) > 0 {
		return nil, fmt.Errorf("%w: %s present on both sides; rename before joining",
			ErrColumnCollision, strings.Join(collisions, ", "))
	}

	index := make(map[string][]Row, len(right.Rows))
	for _, r := range right.Rows {
		k, ok := compositeKey(r, s.RightKeys)
		if !ok {
			continue
		}
		index[k] = append(index[k], r)
	}

	out := &Table{Columns: columns, Rows: make([]Row, 0, len(left.Rows))}
	for _, l := range left.Rows {
		var matches []Row
		if k, ok := compositeKey(l, s.LeftKeys); ok {
			matches = index[k]
		}

		if len(matches) == 0 {
			if s.Type == InnerJoin {
				continue
			}
			nr := l.clone()
			for _, name := range outName {
				nr[name] = nil
			}
			out.Rows = append(out.Rows, nr)
			continue
		}

		for _, m := range matches {
			nr := l.clone()
			for c, name := range outName {
				nr[name] = m[c]
			}
			out.Rows = append(out.Rows, nr)
		}
	}
	return out, nil
}
