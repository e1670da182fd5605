package models

// ============================================================================
// Completeness KPI
// ============================================================================

// KPI is the completeness classification of one reconciled record.
// The four values partition the row space.
type KPI string

const (
	KPIHappyPath     KPI = "Happy Path"
	KPIServiceNoBill KPI = "Service No Bill"
	KPIBillNoService KPI = "Bill No Service"
	KPIDataIssue     KPI = "Data Issue"
)

// ValidKPIs contains all valid KPI values in report order.
var ValidKPIs = []KPI{
	KPIHappyPath,
	KPIServiceNoBill,
	KPIBillNoService,
	KPIDataIssue,
}

// IsException reports whether the record needs follow-up.
func (k KPI) IsException() bool {
	return k != KPIHappyPath
}

// ============================================================================
// Accuracy Flag
// ============================================================================

// AccuracyFlag is the billing accuracy classification of a Happy Path record.
type AccuracyFlag string

const (
	AccuracyAccurate         AccuracyFlag = "Accurate"
	AccuracyOverBilling      AccuracyFlag = "Over Billing"
	AccuracyUnderBilling     AccuracyFlag = "Under Billing"
	AccuracyInsufficientData AccuracyFlag = "Insufficient Data"
)

// ValidAccuracyFlags contains all valid accuracy flags in report order.
var ValidAccuracyFlags = []AccuracyFlag{
	AccuracyAccurate,
	AccuracyOverBilling,
	AccuracyUnderBilling,
	AccuracyInsufficientData,
}
