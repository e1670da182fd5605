// Package sql cleans and validates generated SQL and checks filter values
// before they are bound as query parameters.
package sql

import (
	"errors"
	"strings"
)

var (
	// ErrMultipleStatements indicates the query contains multiple SQL statements.
	ErrMultipleStatements = errors.New("multiple SQL statements not allowed; only single statements are permitted")
	// ErrEmptyStatement indicates nothing but whitespace and comments.
	ErrEmptyStatement = errors.New("empty SQL statement")
)

// ValidationResult contains the normalized SQL and any validation errors.
type ValidationResult struct {
	NormalizedSQL string
	Error         error
}

// ValidateAndNormalize strips one trailing semicolon and rejects statements
// that still contain a semicolon outside string literals, quoted identifiers
// and comments.
func ValidateAndNormalize(sqlQuery string) ValidationResult {
	normalized := stripTrailingSemicolon(strings.TrimSpace(sqlQuery))

	if strings.TrimSpace(stripComments(normalized)) == "" {
		return ValidationResult{Error: ErrEmptyStatement}
	}
	if hasSemicolonOutsideStrings(normalized) {
		return ValidationResult{Error: ErrMultipleStatements}
	}
	return ValidationResult{NormalizedSQL: normalized}
}

type scanState int

const (
	stateNormal scanState = iota
	stateSingleQuote
	stateDoubleQuote
	stateBacktick
	stateLineComment
	stateBlockComment
)

// scan walks sqlQuery and calls visit for each rune with the lexical state it
// is in. visit returns false to stop.
func scan(sqlQuery string, visit func(i int, r rune, s scanState) bool) {
	state := stateNormal
	runes := []rune(sqlQuery)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		var next rune
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch state {
		case stateNormal:
			switch {
			case r == '\'':
				state = stateSingleQuote
			case r == '"':
				state = stateDoubleQuote
			case r == '`':
				state = stateBacktick
			case r == '-' && next == '-':
				state = stateLineComment
			case r == '/' && next == '*':
				state = stateBlockComment
			}
			if state != stateNormal {
				if !visit(i, r, state) {
					return
				}
				continue
			}
		case stateSingleQuote:
			if r == '\\' {
				i++
				continue
			}
			if r == '\'' {
				state = stateNormal
			}
		case stateDoubleQuote:
			if r == '"' {
				state = stateNormal
			}
		case stateBacktick:
			if r == '`' {
				state = stateNormal
			}
		case stateLineComment:
			if r == '\n' {
				state = stateNormal
			}
		case stateBlockComment:
			if r == '*' && next == '/' {
				i++
				state = stateNormal
				if !visit(i, '/', stateBlockComment) {
					return
				}
				continue
			}
		}
		if !visit(i, r, state) {
			return
		}
	}
}

// hasSemicolonOutsideStrings returns true if the SQL contains any semicolon
// outside of literals, quoted identifiers and comments.
func hasSemicolonOutsideStrings(sqlQuery string) bool {
	found := false
	scan(sqlQuery, func(_ int, r rune, s scanState) bool {
		if s == stateNormal && r == ';' {
			found = true
			return false
		}
		return true
	})
	return found
}

// stripComments removes line and block comments.
func stripComments(sqlQuery string) string {
	var b strings.Builder
	scan(sqlQuery, func(_ int, r rune, s scanState) bool {
		if s != stateLineComment && s != stateBlockComment {
			b.WriteRune(r)
		}
		return true
	})
	return b.String()
}

// stripTrailingSemicolon removes a trailing semicolon and any whitespace after it.
func stripTrailingSemicolon(sqlQuery string) string {
	sqlQuery = strings.TrimRight(sqlQuery, " \t\n\r")
	if strings.HasSuffix(sqlQuery, ";") {
		sqlQuery = strings.TrimRight(strings.TrimSuffix(sqlQuery, ";"), " \t\n\r")
	}
	return sqlQuery
}
