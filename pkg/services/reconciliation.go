package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// DefaultAvailableStatuses is the lenient availability set.
var DefaultAvailableStatuses = []string{"active", "completed", "complete"}

// StatusSet holds trimmed, lower-cased status literals that count as available.
type StatusSet map[string]bool

// NewStatusSet builds a set from statuses, or the default set when empty.
func NewStatusSet(statuses []string) StatusSet {
	s := make(StatusSet)
	for _, st := range statuses {
		if v := strings.ToLower(strings.TrimSpace(st)); v != "" {
			s[v] = true
		}
	}
	if len(s) == 0 {
		for _, st := range DefaultAvailableStatuses {
			s[st] = true
		}
	}
	return s
}

// Available reports whether status is in the set. Null and NaN are never
// available, so a failed join reads the same as an inactive status.
func (s StatusSet) Available(status any) bool {
	if table.IsNull(status) {
		return false
	}
	return s[strings.ToLower(strings.TrimSpace(table.FormatValue(status)))]
}

var defaultStatusSet = NewStatusSet(nil)

// Available applies the default availability set.
func Available(status any) bool {
	return defaultStatusSet.Available(status)
}

// Classify maps the availability of the two sides to a KPI.
//
//	asset  billing  KPI
//	yes    yes      Happy Path
//	yes    no       Service No Bill
//	no     yes      Bill No Service
//	no     no       Data Issue
func Classify(assetAvailable, billingAvailable bool) models.KPI {
	switch {
	case assetAvailable && billingAvailable:
		return models.KPIHappyPath
	case assetAvailable:
		return models.KPIServiceNoBill
	case billingAvailable:
		return models.KPIBillNoService
	default:
		return models.KPIDataIssue
	}
}

// NormalizeServiceNumber renders a service number as comparable text:
// thousands separators and surrounding space are removed, numeric values
// print as integers, and a trailing ".0" left by float coercion is dropped.
// Leading zeros in text are kept.
func NormalizeServiceNumber(v any) string {
	if table.IsNull(v) {
		return ""
	}
	if _, isText := v.(string); !isText {
		if f, ok := table.ToFloat(v); ok && f == math.Trunc(f) {
			return fmt.Sprintf("%.0f", f)
		}
	}
	s := strings.ReplaceAll(table.FormatValue(v), ",", "")
	s = strings.TrimSpace(s)
	if whole, frac, ok := strings.Cut(s, "."); ok && whole != "" && isDigits(whole) && strings.Trim(frac, "0") == "" {
		s = whole
	}
	return s
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ReconciliationPlan is the fixed join order. Every table that carries an
// account_id or status gets its own name for it before it is joined.
func ReconciliationPlan() table.JoinPlan {
	return table.JoinPlan{
		Base: DatasetBillingProducts,
		BaseRename: map[string]string{
			ColBillingAccountID: colBillingAccountIDBP,
			ColStatus:           "billing_product_status",
			ColServiceNumber:    colBillingProductServiceNumber,
		},
		Steps: []table.JoinStep{
			{
				Right: DatasetBillingAccounts,
				Rename: map[string]string{
					ColBillingAccountID: colBillingAccountIDBAcc,
					ColAccountID:        colBillingAcctSiebelAcctID,
					ColStatus:           ColBillingAcctStatus,
					ColServiceNumber:    ColBillingServiceNumber,
				},
				LeftKeys:  []string{colBillingAccountIDBP},
				RightKeys: []string{colBillingAccountIDBAcc},
				Type:      table.LeftJoin,
				Suffix:    "_billing_account",
			},
			{
				Right: DatasetSiebelAccounts,
				Rename: map[string]string{
					ColAccountID: ColSiebelAccountID,
					ColStatus:    "siebel_account_status",
				},
				LeftKeys:  []string{colBillingAcctSiebelAcctID},
				RightKeys: []string{ColSiebelAccountID},
				Type:      table.LeftJoin,
				Suffix:    "_siebel_account",
			},
			{
				Right: DatasetSiebelAssets,
				Rename: map[string]string{
					ColAccountID:     colSiebelAssetAccountID,
					ColStatus:        ColAssetStatus,
					ColServiceNumber: ColSiebelServiceNumber,
				},
				LeftKeys:  []string{ColAssetID},
				RightKeys: []string{ColAssetID},
				Type:      table.LeftJoin,
				Suffix:    "_asset",
			},
			{
				Right: DatasetSiebelOrders,
				Rename: map[string]string{
					ColAccountID:     colSiebelOrderAccountID,
					ColStatus:        "order_status",
					ColServiceNumber: "order_service_number",
				},
				LeftKeys:  []string{ColAssetID, ColSiebelAccountID},
				RightKeys: []string{ColAssetID, colSiebelOrderAccountID},
				Type:      table.LeftJoin,
				Suffix:    "_order",
			},
		},
	}
}

// ReconcileOptions tunes Reconcile.
type ReconcileOptions struct {
	Statuses StatusSet
	// FoldProductMatch compares product names trimmed and case-insensitively.
	FoldProductMatch bool
	// ProductFiltered means billing products were already filtered to the
	// product at the source, so an empty table is a product with no rows.
	ProductFiltered      bool
	BillingAmountColumns []string
	AssetAmountColumns   []string
}

// ReconcileResult is the output of Reconcile.
type ReconcileResult struct {
	Records []models.ReconciledRecord
	Summary models.CompletenessSummary
	// Amount columns found in the joined data; empty when none matched.
	BillingAmountColumn string
	AssetAmountColumn   string
}

// Reconcile filters billing products to product, joins the five datasets,
// classifies each row and deduplicates on the natural key.
func Reconcile(data table.Datasets, product string, opts ReconcileOptions) (*ReconcileResult, error) {
	for _, name := range RequiredDatasets {
		t, ok := data[name]
		if !ok || t == nil {
			return nil, &apperrors.MissingDatasetError{Dataset: name}
		}
		if t.IsEmpty() && !(name == DatasetBillingProducts && opts.ProductFiltered) {
			return nil, &apperrors.MissingDatasetError{Dataset: name, Empty: true}
		}
	}
	if opts.Statuses == nil {
		opts.Statuses = defaultStatusSet
	}

	products := data[DatasetBillingProducts]
	if products.IsEmpty() {
		return emptyResult(), nil
	}
	if !products.HasColumn(ColProductName) {
		return nil, &apperrors.MissingDatasetError{Dataset: DatasetBillingProducts, Column: ColProductName}
	}
	match := productMatcher(product, opts.FoldProductMatch)
	filtered := products.Filter(func(r table.Row) bool { return match(r[ColProductName]) })
	if filtered.IsEmpty() {
		return emptyResult(), nil
	}

	scoped := make(table.Datasets, len(data))
	for k, v := range data {
		scoped[k] = v
	}
	scoped[DatasetBillingProducts] = filtered

	merged, err := table.Execute(ReconciliationPlan(), scoped)
	if err != nil {
		return nil, fmt.Errorf("reconciliation join: %w", err)
	}

	billingCol := resolveAmountColumn(merged.Columns, opts.BillingAmountColumns, "billing")
	assetCol := resolveAmountColumn(merged.Columns, opts.AssetAmountColumns, "asset")

	records := make([]models.ReconciledRecord, 0, merged.Len())
	for _, r := range merged.Rows {
		records = append(records, buildRecord(r, opts.Statuses, billingCol, assetCol))
	}
	records = DedupRecords(records)

	return &ReconcileResult{
		Records:             records,
		Summary:             Summarize(records),
		BillingAmountColumn: billingCol,
		AssetAmountColumn:   assetCol,
	}, nil
}

func emptyResult() *ReconcileResult {
	return &ReconcileResult{Records: []models.ReconciledRecord{}, Summary: Summarize(nil)}
}

// DedupRecords keeps the first record per natural key. Service numbers are
// compared normalized, so rows that differ in formatting alone collapse.
func DedupRecords(records []models.ReconciledRecord) []models.ReconciledRecord {
	out := make([]models.ReconciledRecord, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		key := naturalKey(rec)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	return out
}

func productMatcher(product string, fold bool) func(any) bool {
	if fold {
		want := strings.ToLower(strings.TrimSpace(product))
		return func(v any) bool {
			return !table.IsNull(v) && strings.ToLower(strings.TrimSpace(table.FormatValue(v))) == want
		}
	}
	return func(v any) bool {
		return !table.IsNull(v) && table.FormatValue(v) == product
	}
}

func buildRecord(r table.Row, statuses StatusSet, billingCol, assetCol string) models.ReconciledRecord {
	assetOK := statuses.Available(r[ColAssetStatus])
	billingOK := statuses.Available(r[ColBillingAcctStatus])

	rec := models.ReconciledRecord{
		BillingServiceNumber: billingServiceNumber(r),
		SiebelServiceNumber:  NormalizeServiceNumber(r[ColSiebelServiceNumber]),
		BillingAccountID:     textOf(r[colBillingAccountIDBP]),
		SiebelAccountID:      textOf(r[ColSiebelAccountID]),
		AssetID:              textOf(r[ColAssetID]),
		ProductName:          textOf(r[ColProductName]),
		AssetStatus:          textOf(r[ColAssetStatus]),
		BillingAccountStatus: textOf(r[ColBillingAcctStatus]),
		ServiceNoBill:        assetOK && !billingOK,
		NoServiceBill:        !assetOK && billingOK,
		KPI:                  Classify(assetOK, billingOK),
	}
	if billingCol != "" {
		rec.BillingAmount = amountOf(r[billingCol])
	}
	if assetCol != "" {
		rec.AssetAmount = amountOf(r[assetCol])
	}
	return rec
}

// billingServiceNumber prefers the billing account's number and falls back to
// one carried on the product row.
func billingServiceNumber(r table.Row) string {
	if sn := NormalizeServiceNumber(r[ColBillingServiceNumber]); sn != "" {
		return sn
	}
	return NormalizeServiceNumber(r[colBillingProductServiceNumber])
}

func naturalKey(rec models.ReconciledRecord) string {
	return strings.Join([]string{
		rec.BillingServiceNumber, rec.SiebelServiceNumber,
		rec.BillingAccountID, rec.SiebelAccountID,
		rec.AssetID, rec.ProductName,
	}, "\x1f")
}

func textOf(v any) string {
	if table.IsNull(v) {
		return ""
	}
	return table.FormatValue(v)
}

func amountOf(v any) *float64 {
	f, ok := table.ToFloat(v)
	if !ok {
		return nil
	}
	return &f
}

// resolveAmountColumn returns the first alias present (case-insensitive), or
// else the first column whose name contains both side and "amount".
func resolveAmountColumn(columns, aliases []string, side string) string {
	for _, alias := range aliases {
		for _, c := range columns {
			if strings.EqualFold(c, strings.TrimSpace(alias)) {
				return c
			}
		}
	}
	for _, c := range columns {
		lc := strings.ToLower(c)
		if strings.Contains(lc, side) && strings.Contains(lc, "amount") {
			return c
		}
	}
	return ""
}

// Summarize counts records per KPI. CompletenessPct is 0 for no records.
func Summarize(records []models.ReconciledRecord) models.CompletenessSummary {
	s := models.CompletenessSummary{Total: len(records)}
	for _, r := range records {
		switch r.KPI {
		case models.KPIHappyPath:
			s.HappyPath++
		case models.KPIServiceNoBill:
			s.ServiceNoBill++
		case models.KPIBillNoService:
			s.BillNoService++
		case models.KPIDataIssue:
			s.DataIssue++
		}
	}
	s.CompletenessPct = percent(s.HappyPath, s.Total)
	return s
}

// percent returns 100*n/d rounded to 2 decimals, or 0 when d is 0.
func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)*100/float64(d)*100) / 100
}

// TopExceptions groups non Happy Path records by KPI, product and Siebel
// account, largest groups first. limit <= 0 returns every group.
func TopExceptions(records []models.ReconciledRecord, limit int) []models.ExceptionGroup {
	type groupKey struct {
		kpi     models.KPI
		product string
		account string
	}
	counts := make(map[groupKey]int)
	for _, r := range records {
		if !r.KPI.IsException() {
			continue
		}
		counts[groupKey{r.KPI, r.ProductName, r.SiebelAccountID}]++
	}

	groups := make([]models.ExceptionGroup, 0, len(counts))
	for k, n := range counts {
		groups = append(groups, models.ExceptionGroup{
			KPI:             k.kpi,
			ProductName:     k.product,
			SiebelAccountID: k.account,
			Count:           n,
		})
	}

	kpiOrder := make(map[models.KPI]int, len(models.ValidKPIs))
	for i, k := range models.ValidKPIs {
		kpiOrder[k] = i
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i], groups[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.KPI != b.KPI {
			return kpiOrder[a.KPI] < kpiOrder[b.KPI]
		}
		if a.ProductName != b.ProductName {
			return a.ProductName < b.ProductName
		}
		return a.SiebelAccountID < b.SiebelAccountID
	})

	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups
}

// reconciledColumns is the column order of the exported detail table.
var reconciledColumns = []string{
	ColBillingServiceNumber,
	ColSiebelServiceNumber,
	ColBillingAccountID,
	ColSiebelAccountID,
	ColAssetID,
	ColProductName,
	ColAssetStatus,
	ColBillingAcctStatus,
	ColServiceNoBill,
	ColNoServiceBill,
	ColKPI,
}

// RecordsTable renders records as the exported detail table.
func RecordsTable(records []models.ReconciledRecord) *table.Table {
	t := table.New(reconciledColumns...)
	for _, r := range records {
		t.Rows = append(t.Rows, table.Row{
			ColBillingServiceNumber: r.BillingServiceNumber,
			ColSiebelServiceNumber:  r.SiebelServiceNumber,
			ColBillingAccountID:     r.BillingAccountID,
			ColSiebelAccountID:      r.SiebelAccountID,
			ColAssetID:              r.AssetID,
			ColProductName:          r.ProductName,
			ColAssetStatus:          r.AssetStatus,
			ColBillingAcctStatus:    r.BillingAccountStatus,
			ColServiceNoBill:        r.ServiceNoBill,
			ColNoServiceBill:        r.NoServiceBill,
			ColKPI:                  string(r.KPI),
		})
	}
	return t
}
