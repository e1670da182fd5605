package logging

import (
	"regexp"
	"strings"
)

const (
	// MaxQueryLogLength is the maximum length of a query to log
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens and provider API keys (sk-..., sk-ant-...)
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-_.]+`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9\-_]{20,}`)
	skKeyPattern  = regexp.MustCompile(`sk-[A-Za-z0-9\-_]{16,}`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)

	whitespacePattern = regexp.MustCompile(`\s+`)
)

func redact(s string) string {
	s = passwordPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = bearerPattern.ReplaceAllString(s, "Bearer "+RedactedText)
	s = apiKeyPattern.ReplaceAllString(s, "${1}="+RedactedText)
	s = skKeyPattern.ReplaceAllString(s, RedactedText)
	s = connStringPattern.ReplaceAllString(s, "://"+RedactedText+"@"+RedactedText)
	return s
}

// SanitizeConnectionString removes credentials from a DSN before logging.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redact(connStr)
}

// SanitizeError strips credentials and tokens from an error message.
// Warehouse and LLM SDK errors sometimes echo request URLs or headers.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error())
}

// SanitizeQuery collapses whitespace and truncates a SQL statement for logging.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	sanitized := strings.TrimSpace(whitespacePattern.ReplaceAllString(query, " "))
	return TruncateString(redact(sanitized), MaxQueryLogLength)
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
