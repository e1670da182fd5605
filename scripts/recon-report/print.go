package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// maxPrintedRows bounds query output on the terminal; --out gets everything.
const maxPrintedRows = 50

func newTable(w io.Writer, header []string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoWrapText(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	t.SetAutoFormatHeaders(false)
	t.SetBorder(true)
	t.SetHeader(header)
	return t
}

func printCompleteness(w io.Writer, report *models.CompletenessReport) {
	fmt.Fprintln(w, "Run:", report.RunID)
	fmt.Fprintln(w, "Control:", report.ControlType)
	fmt.Fprintln(w, "Product:", report.Product)

	t := newTable(w, []string{"KPI", "Count", "Share (%)"})
	t.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_RIGHT})
	s := report.Summary
	for _, k := range models.ValidKPIs {
		n := s.Count(k)
		t.Append([]string{string(k), strconv.Itoa(n), share(n, s.Total)})
	}
	t.SetFooter([]string{"Total", strconv.Itoa(s.Total), fmt.Sprintf("Completeness %.2f", s.CompletenessPct)})
	t.Render()
}

func printExceptions(w io.Writer, groups []models.ExceptionGroup) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No exceptions.")
		return
	}
	fmt.Fprintln(w, "Top exceptions:")
	t := newTable(w, []string{"KPI", "Product", "Siebel Account", "Count"})
	for _, g := range groups {
		t.Append([]string{string(g.KPI), g.ProductName, g.SiebelAccountID, strconv.Itoa(g.Count)})
	}
	t.Render()
}

func printAccuracy(w io.Writer, report *models.AccuracyReport) {
	fmt.Fprintln(w, "Run:", report.RunID)
	fmt.Fprintln(w, "Completeness run:", report.SourceRunID)
	fmt.Fprintln(w, "Product:", report.Product)

	s := report.Summary
	t := newTable(w, []string{"Flag", "Count"})
	t.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT})
	for _, f := range models.ValidAccuracyFlags {
		t.Append([]string{string(f), strconv.Itoa(s.Count(f))})
	}
	t.SetFooter([]string{fmt.Sprintf("Accuracy %.2f%%", s.AccuracyPct), strconv.Itoa(s.Total)})
	t.Render()
}

func printGenerated(w io.Writer, gen *services.GeneratedSQL) {
	fmt.Fprintf(w, "Model: %s (%d attempt(s))\n", gen.Model, gen.Attempts)
	fmt.Fprintln(w, gen.SQL)
	fmt.Fprintln(w)
}

func printResult(w io.Writer, res *services.QueryResult) {
	t := res.Table()
	out := newTable(w, t.Columns)
	for i, row := range t.Rows {
		if i == maxPrintedRows {
			break
		}
		cells := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			cells[j] = table.FormatValue(row[col])
		}
		out.Append(cells)
	}
	out.Render()

	if t.Len() > maxPrintedRows {
		fmt.Fprintf(w, "%d of %d rows shown\n", maxPrintedRows, t.Len())
	} else {
		fmt.Fprintf(w, "%d rows\n", t.Len())
	}
	if res.Truncated {
		fmt.Fprintln(w, "Result truncated at the row limit.")
	}
}

func share(n, total int) string {
	if total == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(n)*100/float64(total))
}
