package sql

import (
	"strings"
)

// sqlKeywords are statement openers accepted by LooksLikeSQL.
var sqlKeywords = []string{"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "MERGE", "CREATE", "ALTER", "DROP"}

// CleanSQL extracts the SQL statement from a model response. It prefers the
// first fenced code block (```sql or bare ```), drops a leading "SQL:" label,
// and trims whitespace and a trailing semicolon.
func CleanSQL(response string) string {
	response = strings.TrimSpace(response)

	if block, ok := fencedBlock(response); ok {
		response = block
	}

	response = strings.TrimSpace(response)
	if len(response) >= 4 && strings.EqualFold(response[:4], "sql:") {
		response = strings.TrimSpace(response[4:])
	}

	response = strings.TrimSpace(response)
	response = strings.TrimSuffix(response, ";")
	return strings.TrimSpace(response)
}

// fencedBlock returns the body of the first ``` block. The language tag on
// the opening fence line is dropped. An unterminated fence runs to the end.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start == -1 {
		return "", false
	}
	body := s[start+3:]

	// Drop the info string ("sql", "SQL", "bigquery", ...) on the fence line.
	if nl := strings.IndexByte(body, '\n'); nl != -1 {
		tag := strings.TrimSpace(body[:nl])
		if tag == "" || !strings.ContainsAny(tag, " \t(") {
			if !LooksLikeSQL(tag) {
				body = body[nl+1:]
			}
		}
	} else if len(body) >= 3 && strings.EqualFold(body[:3], "sql") {
		body = body[3:]
	}

	if end := strings.Index(body, "```"); end != -1 {
		body = body[:end]
	}
	return body, true
}

// LooksLikeSQL reports whether text starts with a statement keyword.
func LooksLikeSQL(text string) bool {
	upper := strings.ToUpper(strings.TrimSpace(text))
	for _, kw := range sqlKeywords {
		if strings.HasPrefix(upper, kw) {
			return true
		}
	}
	return false
}
