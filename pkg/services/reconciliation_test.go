package services

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-recon/pkg/adapters/warehouse"
	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

type fixture struct {
	columns []string
	rows    [][]any
}

// fiberFixture has three Fiber 100Mbps billing products: one fully active,
// one whose billing account is inactive, and one whose asset does not exist.
// AS1 has two orders so the join fans out and dedup has work to do.
var fiberFixture = map[string]fixture{
	DatasetBillingProducts: {
		columns: []string{"billing_account_id", "asset_id", "service_number", "product_name", "billing_amount"},
		rows: [][]any{
			{"BA1", "AS1", "1,234,567", "Fiber 100Mbps", "100.00"},
			{"BA2", "AS2", 2000002.0, "Fiber 100Mbps", 50.0},
			{"BA3", "AS9", "3000003", "Fiber 100Mbps", nil},
			{"BA1", "AS5", "5", "Copper 10Mbps", 10.0},
		},
	},
	DatasetBillingAccounts: {
		columns: []string{"billing_account_id", "account_id", "status"},
		rows: [][]any{
			{"BA1", "ACC1", "Active"},
			{"BA2", "ACC2", "Inactive"},
			{"BA3", "ACC3", "Suspended"},
		},
	},
	DatasetSiebelAccounts: {
		columns: []string{"account_id", "account_name"},
		rows: [][]any{
			{"ACC1", "Acme"},
			{"ACC2", "Globex"},
			{"ACC3", "Initech"},
		},
	},
	DatasetSiebelAssets: {
		columns: []string{"asset_id", "account_id", "status", "service_number", "asset_amount"},
		rows: [][]any{
			{"AS1", "ACC1", "Active", "1234567", 100.005},
			{"AS2", "ACC2", " completed ", "2000002", 50.0},
			{"AS5", "ACC1", "Active", "5", 10.0},
		},
	},
	DatasetSiebelOrders: {
		columns: []string{"order_id", "asset_id", "account_id", "status"},
		rows: [][]any{
			{"O1", "AS1", "ACC1", "Complete"},
			{"O2", "AS1", "ACC1", "Complete"},
		},
	},
}

func (f fixture) table() *table.Table {
	return warehouse.ResultFromRows(f.columns, f.rows...).Table()
}

func fiberDatasets() table.Datasets {
	data := make(table.Datasets)
	for name, f := range fiberFixture {
		data[name] = f.table()
	}
	return data
}

func TestReconcile_FiberEndToEnd(t *testing.T) {
	res, err := Reconcile(fiberDatasets(), "Fiber 100Mbps", ReconcileOptions{
		BillingAmountColumns: []string{"billing_amount"},
		AssetAmountColumns:   []string{"asset_amount"},
	})
	require.NoError(t, err)

	assert.Equal(t, models.CompletenessSummary{
		Total:           3,
		HappyPath:       1,
		ServiceNoBill:   1,
		BillNoService:   0,
		DataIssue:       1,
		CompletenessPct: 33.33,
	}, res.Summary)
	assert.Equal(t, "billing_amount", res.BillingAmountColumn)
	assert.Equal(t, "asset_amount", res.AssetAmountColumn)

	byAsset := make(map[string]models.ReconciledRecord)
	for _, r := range res.Records {
		assert.Equal(t, "Fiber 100Mbps", r.ProductName)
		byAsset[r.AssetID] = r
	}
	require.Len(t, byAsset, 3)

	happy := byAsset["AS1"]
	assert.Equal(t, models.KPIHappyPath, happy.KPI)
	assert.Equal(t, "1234567", happy.BillingServiceNumber)
	assert.Equal(t, happy.BillingServiceNumber, happy.SiebelServiceNumber)
	assert.Equal(t, "ACC1", happy.SiebelAccountID)
	assert.Equal(t, "BA1", happy.BillingAccountID)
	require.NotNil(t, happy.BillingAmount)
	require.NotNil(t, happy.AssetAmount)
	assert.InDelta(t, 100.0, *happy.BillingAmount, 1e-9)
	assert.InDelta(t, 100.005, *happy.AssetAmount, 1e-9)

	snb := byAsset["AS2"]
	assert.Equal(t, models.KPIServiceNoBill, snb.KPI)
	assert.True(t, snb.ServiceNoBill)
	assert.False(t, snb.NoServiceBill)
	assert.Equal(t, "2000002", snb.BillingServiceNumber)

	missing := byAsset["AS9"]
	assert.Equal(t, models.KPIDataIssue, missing.KPI)
	assert.Empty(t, missing.AssetStatus)
	assert.Empty(t, missing.SiebelServiceNumber)
	assert.Nil(t, missing.BillingAmount)
}

func TestReconcile_Invariants(t *testing.T) {
	res, err := Reconcile(fiberDatasets(), "Fiber 100Mbps", ReconcileOptions{})
	require.NoError(t, err)

	seen := make(map[string]bool)
	for _, r := range res.Records {
		assert.Contains(t, models.ValidKPIs, r.KPI)
		assert.Equal(t, Classify(Available(r.AssetStatus), Available(r.BillingAccountStatus)), r.KPI)
		assert.False(t, r.ServiceNoBill && r.NoServiceBill, "flags must be exclusive")

		key := naturalKey(r)
		assert.False(t, seen[key], "duplicate natural key %q", key)
		seen[key] = true
	}

	again, err := Reconcile(fiberDatasets(), "Fiber 100Mbps", ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, res.Records, again.Records)
	assert.Equal(t, res.Summary, Summarize(res.Records))
}

func TestReconcile_ProductMatchModes(t *testing.T) {
	res, err := Reconcile(fiberDatasets(), " fiber 100mbps", ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary.Total)
	assert.Equal(t, 0.0, res.Summary.CompletenessPct)

	res, err = Reconcile(fiberDatasets(), " fiber 100mbps", ReconcileOptions{FoldProductMatch: true})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Summary.Total)
}

func TestReconcile_MissingDataset(t *testing.T) {
	data := fiberDatasets()
	delete(data, DatasetSiebelOrders)

	_, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingDataset))

	var mde *apperrors.MissingDatasetError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, DatasetSiebelOrders, mde.Dataset)
	assert.False(t, mde.Empty)
}

func TestReconcile_EmptyDataset(t *testing.T) {
	data := fiberDatasets()
	data[DatasetSiebelAssets] = table.New("asset_id", "account_id", "status")

	_, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{})
	var mde *apperrors.MissingDatasetError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, DatasetSiebelAssets, mde.Dataset)
	assert.True(t, mde.Empty)
}

func TestReconcile_AmountColumnFallback(t *testing.T) {
	data := fiberDatasets()
	renamed, err := data[DatasetBillingProducts].Rename(map[string]string{"billing_amount": "Billing_Amount_EUR"})
	require.NoError(t, err)
	data[DatasetBillingProducts] = renamed

	res, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{BillingAmountColumns: []string{"charge_amount"}})
	require.NoError(t, err)
	assert.Equal(t, "Billing_Amount_EUR", res.BillingAmountColumn)
}

func TestReconcile_CustomStatuses(t *testing.T) {
	res, err := Reconcile(fiberDatasets(), "Fiber 100Mbps", ReconcileOptions{
		Statuses: NewStatusSet([]string{"Active", "Inactive", "Suspended"}),
	})
	require.NoError(t, err)
	// "completed" is no longer available and both inactive billing accounts are,
	// so AS2 and the missing asset land in Bill No Service.
	assert.Equal(t, 1, res.Summary.HappyPath)
	assert.Equal(t, 2, res.Summary.BillNoService)
	assert.Equal(t, 0, res.Summary.DataIssue)
}

func TestReconciliationPlan_Valid(t *testing.T) {
	require.NoError(t, ReconciliationPlan().Validate())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		asset, billing any
		want           models.KPI
	}{
		{"Active", "Active", models.KPIHappyPath},
		{"Completed", "complete", models.KPIHappyPath},
		{"Active", "Inactive", models.KPIServiceNoBill},
		{"Active", nil, models.KPIServiceNoBill},
		{"Cancelled", "ACTIVE", models.KPIBillNoService},
		{nil, "Active", models.KPIBillNoService},
		{nil, nil, models.KPIDataIssue},
		{math.NaN(), "Suspended", models.KPIDataIssue},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(Available(tt.asset), Available(tt.billing)), "asset=%v billing=%v", tt.asset, tt.billing)
	}
}

func TestAvailable(t *testing.T) {
	assert.True(t, Available(" ACTIVE "))
	assert.True(t, Available("Completed"))
	assert.True(t, Available("complete"))
	assert.False(t, Available("Pending"))
	assert.False(t, Available(""))
	assert.False(t, Available(nil))
	assert.False(t, Available(math.NaN()))
}

func TestNormalizeServiceNumber(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{"1,234,567", "1234567"},
		{" 1234567 ", "1234567"},
		{1234567.0, "1234567"},
		{int64(42), "42"},
		{"1234567.0", "1234567"},
		{"00123", "00123"},
		{"SN-12.5", "SN-12.5"},
		{nil, ""},
		{math.NaN(), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeServiceNumber(tt.in), "input %#v", tt.in)
	}
	assert.Equal(t, NormalizeServiceNumber("1,234,567"), NormalizeServiceNumber("1234567"))
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.Total)
	assert.Equal(t, 0.0, s.CompletenessPct)
}

func TestSummarize_CountsAddUp(t *testing.T) {
	records := []models.ReconciledRecord{
		{KPI: models.KPIHappyPath},
		{KPI: models.KPIHappyPath},
		{KPI: models.KPIBillNoService},
	}
	s := Summarize(records)
	assert.Equal(t, s.Total, s.HappyPath+s.ServiceNoBill+s.BillNoService+s.DataIssue)
	assert.Equal(t, 66.67, s.CompletenessPct)
	for _, k := range models.ValidKPIs {
		assert.GreaterOrEqual(t, s.Count(k), 0)
	}
}

func TestTopExceptions(t *testing.T) {
	records := []models.ReconciledRecord{
		{KPI: models.KPIHappyPath, ProductName: "P", SiebelAccountID: "A"},
		{KPI: models.KPIDataIssue, ProductName: "P", SiebelAccountID: "A"},
		{KPI: models.KPIServiceNoBill, ProductName: "P", SiebelAccountID: "B"},
		{KPI: models.KPIServiceNoBill, ProductName: "P", SiebelAccountID: "B"},
		{KPI: models.KPIBillNoService, ProductName: "P", SiebelAccountID: "C"},
	}

	groups := TopExceptions(records, 0)
	require.Len(t, groups, 3)
	assert.Equal(t, models.ExceptionGroup{KPI: models.KPIServiceNoBill, ProductName: "P", SiebelAccountID: "B", Count: 2}, groups[0])
	// Ties break on report order of the KPI.
	assert.Equal(t, models.KPIBillNoService, groups[1].KPI)
	assert.Equal(t, models.KPIDataIssue, groups[2].KPI)

	assert.Len(t, TopExceptions(records, 1), 1)
}

func TestRecordsTable_CSVColumns(t *testing.T) {
	res, err := Reconcile(fiberDatasets(), "Fiber 100Mbps", ReconcileOptions{})
	require.NoError(t, err)

	tbl := RecordsTable(res.Records)
	assert.Equal(t, reconciledColumns, tbl.Columns)
	assert.Equal(t, 3, tbl.Len())
}

// fiberExecutor serves the fixture through the data loader path.
func fiberExecutor() (*warehouse.MockQueryExecutor, config.SourcesConfig) {
	sources := config.SourcesConfig{
		SiebelAccounts:   "sbl_account",
		SiebelAssets:     "sbl_asset",
		SiebelOrders:     "sbl_order",
		BillingAccounts:  "ant_billing_account",
		BillingProducts:  "ant_billing_product",
		ProductNameField: "product_name",
	}
	results := map[string]*warehouse.QueryExecutionResult{}
	for name, f := range fiberFixture {
		var src string
		switch name {
		case DatasetSiebelAccounts:
			src = sources.SiebelAccounts
		case DatasetSiebelAssets:
			src = sources.SiebelAssets
		case DatasetSiebelOrders:
			src = sources.SiebelOrders
		case DatasetBillingAccounts:
			src = sources.BillingAccounts
		case DatasetBillingProducts:
			src = sources.BillingProducts
		}
		results[src] = warehouse.ResultFromRows(f.columns, f.rows...)
	}
	return warehouse.NewMockQueryExecutor(results), sources
}

// filteringExecutor serves the fixture and applies the bound product filter
// the way the warehouse would.
func filteringExecutor() (*warehouse.MockQueryExecutor, config.SourcesConfig) {
	exec, sources := fiberExecutor()
	results := exec.Results
	exec.QueryFunc = func(_ context.Context, sqlQuery string, params []warehouse.Param, _ int) (*warehouse.QueryExecutionResult, error) {
		for src, res := range results {
			if !strings.Contains(sqlQuery, `"`+src+`"`) {
				continue
			}
			if len(params) == 0 {
				return res, nil
			}
			out := &warehouse.QueryExecutionResult{Columns: res.Columns, Rows: []map[string]any{}}
			for _, r := range res.Rows {
				if r[sources.ProductNameField] == params[0].Value {
					out.Rows = append(out.Rows, r)
				}
			}
			out.RowCount = len(out.Rows)
			return out, nil
		}
		return nil, errors.New("unexpected query: " + sqlQuery)
	}
	return exec, sources
}

func TestReconcile_BillingServiceNumberFromAccount(t *testing.T) {
	data := fiberDatasets()
	data[DatasetBillingProducts] = warehouse.ResultFromRows(
		[]string{"billing_account_id", "asset_id", "product_name"},
		[]any{"BA1", "AS1", "Fiber 100Mbps"},
	).Table()
	data[DatasetBillingAccounts] = warehouse.ResultFromRows(
		[]string{"billing_account_id", "account_id", "status", "service_number"},
		[]any{"BA1", "ACC1", "Active", "1,234,567"},
	).Table()

	res, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "1234567", res.Records[0].BillingServiceNumber)
	assert.Equal(t, "1234567", res.Records[0].SiebelServiceNumber)
	assert.Equal(t, models.KPIHappyPath, res.Records[0].KPI)
}

func TestReconcile_AccountServiceNumberWins(t *testing.T) {
	data := fiberDatasets()
	data[DatasetBillingAccounts] = warehouse.ResultFromRows(
		[]string{"billing_account_id", "account_id", "status", "service_number"},
		[]any{"BA1", "ACC1", "Active", "7654321"},
		[]any{"BA2", "ACC2", "Inactive", nil},
		[]any{"BA3", "ACC3", "Suspended", ""},
	).Table()

	res, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{})
	require.NoError(t, err)

	byAsset := make(map[string]string)
	for _, r := range res.Records {
		byAsset[r.AssetID] = r.BillingServiceNumber
	}
	assert.Equal(t, "7654321", byAsset["AS1"])
	assert.Equal(t, "2000002", byAsset["AS2"], "product value is used when the account has none")
	assert.Equal(t, "3000003", byAsset["AS9"])
}

func TestReconcile_ColumnCollisionIsError(t *testing.T) {
	data := fiberDatasets()
	data[DatasetSiebelAssets] = warehouse.ResultFromRows(
		[]string{"asset_id", "account_id", "status", "asset_status"},
		[]any{"AS1", "ACC1", "Active", "Inactive"},
	).Table()

	_, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, table.ErrColumnCollision)
}

func TestReconcile_MissingProductNameColumn(t *testing.T) {
	data := fiberDatasets()
	data[DatasetBillingProducts] = warehouse.ResultFromRows(
		[]string{"billing_account_id", "asset_id", "product"},
		[]any{"BA1", "AS1", "Fiber 100Mbps"},
	).Table()

	_, err := Reconcile(data, "Fiber 100Mbps", ReconcileOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrMissingDataset))
	assert.False(t, errors.Is(err, apperrors.ErrInsufficientData))

	var mde *apperrors.MissingDatasetError
	require.True(t, errors.As(err, &mde))
	assert.Equal(t, DatasetBillingProducts, mde.Dataset)
	assert.Equal(t, ColProductName, mde.Column)
}

func TestReconcile_ProductFilteredEmpty(t *testing.T) {
	data := fiberDatasets()
	data[DatasetBillingProducts] = table.New("billing_account_id", "asset_id", "product_name")

	_, err := Reconcile(data, "Mobile Postpaid", ReconcileOptions{})
	var mde *apperrors.MissingDatasetError
	require.True(t, errors.As(err, &mde))
	assert.True(t, mde.Empty)

	res, err := Reconcile(data, "Mobile Postpaid", ReconcileOptions{ProductFiltered: true})
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.Summary.Total)
	assert.Equal(t, 0.0, res.Summary.CompletenessPct)
}

func TestDedupRecords(t *testing.T) {
	res, err := Reconcile(fiberDatasets(), "Fiber 100Mbps", ReconcileOptions{})
	require.NoError(t, err)

	// AS1 fans out over two orders; only one survives.
	assert.Equal(t, res.Records, DedupRecords(res.Records))

	doubled := append(append([]models.ReconciledRecord{}, res.Records...), res.Records...)
	once := DedupRecords(doubled)
	assert.Equal(t, res.Records, once)
	assert.Equal(t, once, DedupRecords(once))
}

func TestDedupRecords_FirstWins(t *testing.T) {
	records := []models.ReconciledRecord{
		{AssetID: "AS1", BillingServiceNumber: "1", KPI: models.KPIHappyPath},
		{AssetID: "AS1", BillingServiceNumber: "1", KPI: models.KPIDataIssue},
		{AssetID: "AS2", BillingServiceNumber: "1", KPI: models.KPIDataIssue},
	}

	out := DedupRecords(records)
	require.Len(t, out, 2)
	assert.Equal(t, models.KPIHappyPath, out[0].KPI)
	assert.Equal(t, "AS2", out[1].AssetID)
	assert.Empty(t, DedupRecords(nil))
}
