package mssql

import (
	"strconv"
	"strings"
)

func quoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
	}
	return strings.Join(parts, ".")
}

// convertValue turns driver byte slices into text, and decimal text into
// float64 so amounts compare numerically.
func convertValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	switch {
	case isDecimalType(dbType):
		if f, err := strconv.ParseFloat(string(b), 64); err == nil {
			return f
		}
		return string(b)
	case isStringType(dbType):
		return string(b)
	}
	return v
}

func isDecimalType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY":
		return true
	}
	return false
}

func isStringType(sqlType string) bool {
	switch strings.ToUpper(sqlType) {
	case "CHAR", "NCHAR", "VARCHAR", "NVARCHAR", "TEXT", "NTEXT":
		return true
	}
	return false
}
