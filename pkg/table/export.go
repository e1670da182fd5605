package table

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// WriteCSV writes t as UTF-8 comma-separated text with a header row and no
// index column.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(t.Columns))
	for _, r := range t.Rows {
		for i, c := range t.Columns {
			record[i] = FormatValue(r[c])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes t to a single-sheet workbook with a bold header row.
func WriteXLSX(w io.Writer, t *Table, sheet string) error {
	if sheet == "" {
		sheet = "Report"
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, c := range t.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, c); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header: %w", err)
		}
	}

	for ri, r := range t.Rows {
		for ci, c := range t.Columns {
			cell, _ := excelize.CoordinatesToCellName(ci+1, ri+2)
			v := r[c]
			if f64, ok := ToFloat(v); ok && isNumberKind(v) {
				err = f.SetCellValue(sheet, cell, f64)
			} else {
				err = f.SetCellValue(sheet, cell, FormatValue(v))
			}
			if err != nil {
				return fmt.Errorf("write cell %s: %w", cell, err)
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
