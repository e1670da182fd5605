package models

import (
	"time"

	"github.com/google/uuid"
)

// ReconciledRecord is one matched (billing product, asset) pair after the
// reconciliation joins. Service numbers from the two systems are independent
// fields and are never assumed equal.
type ReconciledRecord struct {
	BillingServiceNumber string `json:"billing_service_number"`
	SiebelServiceNumber  string `json:"siebel_service_number"`
	BillingAccountID     string `json:"billing_account_id"`
	SiebelAccountID      string `json:"siebel_account_id"`
	AssetID              string `json:"asset_id"`
	ProductName          string `json:"product_name"`
	AssetStatus          string `json:"asset_status"`
	BillingAccountStatus string `json:"billing_account_status"`
	ServiceNoBill        bool   `json:"service_no_bill"`
	NoServiceBill        bool   `json:"no_service_bill"`
	KPI                  KPI    `json:"kpi"`

	BillingAmount *float64 `json:"billing_amount,omitempty"`
	AssetAmount   *float64 `json:"asset_amount,omitempty"`
}

// CompletenessSummary aggregates a completeness run.
type CompletenessSummary struct {
	Total           int     `json:"total"`
	HappyPath       int     `json:"happy_path"`
	ServiceNoBill   int     `json:"service_no_bill"`
	BillNoService   int     `json:"bill_no_service"`
	DataIssue       int     `json:"data_issue"`
	CompletenessPct float64 `json:"completeness_pct"`
}

// Count returns the number of records for a KPI.
func (s CompletenessSummary) Count(k KPI) int {
	switch k {
	case KPIHappyPath:
		return s.HappyPath
	case KPIServiceNoBill:
		return s.ServiceNoBill
	case KPIBillNoService:
		return s.BillNoService
	case KPIDataIssue:
		return s.DataIssue
	}
	return 0
}

// AccuracyRecord is a Happy Path record with its accuracy classification.
type AccuracyRecord struct {
	ReconciledRecord
	Flag       AccuracyFlag `json:"accuracy_flag"`
	Difference *float64     `json:"difference,omitempty"` // billing - asset, nil when insufficient
}

// AccuracySummary aggregates an accuracy run. AccuracyPct is computed over
// records with sufficient data.
type AccuracySummary struct {
	Total            int     `json:"total"`
	Accurate         int     `json:"accurate"`
	OverBilling      int     `json:"over_billing"`
	UnderBilling     int     `json:"under_billing"`
	InsufficientData int     `json:"insufficient_data"`
	AccuracyPct      float64 `json:"accuracy_pct"`
}

// Count returns the number of records carrying flag f.
func (s AccuracySummary) Count(f AccuracyFlag) int {
	switch f {
	case AccuracyAccurate:
		return s.Accurate
	case AccuracyOverBilling:
		return s.OverBilling
	case AccuracyUnderBilling:
		return s.UnderBilling
	case AccuracyInsufficientData:
		return s.InsufficientData
	}
	return 0
}

// ExceptionGroup is one row of the top exceptions drill-down.
type ExceptionGroup struct {
	KPI             KPI    `json:"kpi"`
	ProductName     string `json:"product_name"`
	SiebelAccountID string `json:"siebel_account_id"`
	Count           int    `json:"count"`
}

// CompletenessReport is the result of one completeness run.
type CompletenessReport struct {
	RunID       uuid.UUID           `json:"run_id"`
	ControlType string              `json:"control_type"`
	Product     string              `json:"product"`
	Systems     []string            `json:"systems"`
	Mappings    []string            `json:"mappings,omitempty"`
	Summary     CompletenessSummary `json:"summary"`
	Records     []ReconciledRecord  `json:"records"`
	GeneratedAt time.Time           `json:"generated_at"`

	// Amount columns resolved in the joined data, empty when absent.
	BillingAmountColumn string `json:"billing_amount_column,omitempty"`
	AssetAmountColumn   string `json:"asset_amount_column,omitempty"`
}

// AccuracyReport is the result of one accuracy run.
type AccuracyReport struct {
	RunID       uuid.UUID        `json:"run_id"`
	SourceRunID uuid.UUID        `json:"source_run_id"` // completeness run the records came from
	Product     string           `json:"product"`
	Summary     AccuracySummary  `json:"summary"`
	Records     []AccuracyRecord `json:"records"`
	GeneratedAt time.Time        `json:"generated_at"`
}
