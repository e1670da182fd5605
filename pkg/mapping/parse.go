// Package mapping parses reference mapping files into tables. The tables are
// used only as LLM prompt context.
package mapping

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// Supported extensions.
const (
	ExtCSV  = ".csv"
	ExtXLSX = ".xlsx"
	ExtTXT  = ".txt"
)

// Parse decodes data according to the extension of name:
//
//	.csv   comma-delimited with header
//	.xlsx  first sheet, first row is the header
//	.txt   tab-delimited with header; comma-delimited when the header has no tab
//
// Any other extension yields *apperrors.UnsupportedFormatError.
func Parse(name string, data []byte) (*table.Table, error) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ExtCSV:
		return parseDelimited(data, ',')
	case ExtTXT:
		return parseDelimited(data, detectDelimiter(data))
	case ExtXLSX:
		return parseXLSX(data)
	default:
		return nil, &apperrors.UnsupportedFormatError{FileName: name, Extension: ext}
	}
}

// detectDelimiter returns tab unless the first line has no tab and has a comma.
func detectDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	if bytes.IndexByte(first, '\t') < 0 && bytes.IndexByte(first, ',') >= 0 {
		return ','
	}
	return '\t'
}

func parseDelimited(data []byte, delim rune) (*table.Table, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return table.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	header = cleanHeader(header)

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		if isBlank(rec) {
			continue
		}
		records = append(records, rec)
	}
	return table.FromRecords(header, records), nil
}

func parseXLSX(data []byte) (*table.Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("no sheets found in spreadsheet")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	if len(rows) == 0 {
		return table.New(), nil
	}

	header := cleanHeader(rows[0])
	var records [][]string
	for _, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		records = append(records, row)
	}
	return table.FromRecords(header, records), nil
}

// cleanHeader trims names and gives blank or repeated names a positional name
// so every column stays addressable.
func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]bool, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if name == "" || seen[name] {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[name] = true
		out[i] = name
	}
	return out
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
