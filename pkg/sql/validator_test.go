package sql

import (
	"errors"
	"testing"
)

func TestValidateAndNormalize_ValidQueries(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple select with trailing semicolon",
			input:    "SELECT 1;",
			expected: "SELECT 1",
		},
		{
			name:     "trailing semicolon and whitespace",
			input:    "  SELECT * FROM billing_products;  \n",
			expected: "SELECT * FROM billing_products",
		},
		{
			name:     "semicolon inside single quoted string",
			input:    "SELECT * FROM billing_products WHERE product_name = 'Fiber;100'",
			expected: "SELECT * FROM billing_products WHERE product_name = 'Fiber;100'",
		},
		{
			name:     "semicolon inside backtick identifier",
			input:    "SELECT * FROM `telecom-data-lake.o_siebel.siebel;assets`",
			expected: "SELECT * FROM `telecom-data-lake.o_siebel.siebel;assets`",
		},
		{
			name:     "SQL standard escaped single quote",
			input:    "SELECT * FROM accounts WHERE name = 'O''Brien;'",
			expected: "SELECT * FROM accounts WHERE name = 'O''Brien;'",
		},
		{
			name:     "backslash escaped quote",
			input:    `SELECT * FROM accounts WHERE name = 'it\'s; fine'`,
			expected: `SELECT * FROM accounts WHERE name = 'it\'s; fine'`,
		},
		{
			name:     "semicolon in line comment",
			input:    "SELECT 1 -- one; two\nFROM dual",
			expected: "SELECT 1 -- one; two\nFROM dual",
		},
		{
			name:     "semicolon in block comment",
			input:    "SELECT /* a; b */ 1",
			expected: "SELECT /* a; b */ 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ValidateAndNormalize(tt.input)
			if result.Error != nil {
				t.Fatalf("unexpected error: %v", result.Error)
			}
			if result.NormalizedSQL != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result.NormalizedSQL)
			}
		})
	}
}

func TestValidateAndNormalize_MultipleStatements(t *testing.T) {
	inputs := []string{
		"SELECT 1; SELECT 2",
		"SELECT 1; DROP TABLE billing_accounts;",
		"SELECT 'a'; DELETE FROM assets",
		"SELECT 1 /* c */; SELECT 2",
		"SELECT 1 -- c\n; SELECT 2",
	}
	for _, in := range inputs {
		result := ValidateAndNormalize(in)
		if !errors.Is(result.Error, ErrMultipleStatements) {
			t.Errorf("%q: expected ErrMultipleStatements, got %v", in, result.Error)
		}
		if result.NormalizedSQL != "" {
			t.Errorf("%q: expected no SQL on error, got %q", in, result.NormalizedSQL)
		}
	}
}

func TestValidateAndNormalize_Empty(t *testing.T) {
	for _, in := range []string{"", "   ", ";", "-- just a comment", "/* nothing */"} {
		result := ValidateAndNormalize(in)
		if !errors.Is(result.Error, ErrEmptyStatement) {
			t.Errorf("%q: expected ErrEmptyStatement, got %v", in, result.Error)
		}
	}
}
