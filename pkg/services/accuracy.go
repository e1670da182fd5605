package services

import (
	"context"
	"io"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// AccuracyTolerance is the largest absolute difference still treated as equal.
const AccuracyTolerance = 0.01

// float slack so that 100.01 - 100 stays within tolerance
const toleranceSlack = 1e-9

// ClassifyAccuracy compares a billed amount with the asset amount. The
// difference is billing minus asset and is nil when either side is missing.
func ClassifyAccuracy(billing, asset *float64) (models.AccuracyFlag, *float64) {
	if billing == nil || asset == nil || math.IsNaN(*billing) || math.IsNaN(*asset) ||
		math.IsInf(*billing, 0) || math.IsInf(*asset, 0) {
		return models.AccuracyInsufficientData, nil
	}
	diff := *billing - *asset
	switch {
	case math.Abs(diff) <= AccuracyTolerance+toleranceSlack:
		return models.AccuracyAccurate, &diff
	case diff > 0:
		return models.AccuracyOverBilling, &diff
	default:
		return models.AccuracyUnderBilling, &diff
	}
}

// EvaluateAccuracy classifies the Happy Path records of a completeness report.
// It fails with InsufficientDataError when the joined data had no amount
// column for either side. A report with no records has nothing to compare
// and yields an empty summary.
func EvaluateAccuracy(report *models.CompletenessReport) ([]models.AccuracyRecord, models.AccuracySummary, error) {
	if len(report.Records) == 0 {
		return []models.AccuracyRecord{}, models.AccuracySummary{}, nil
	}
	if report.BillingAmountColumn == "" {
		return nil, models.AccuracySummary{}, &apperrors.InsufficientDataError{
			Field: ColBillingAmount, Reason: "no billing amount column in the reconciled data",
		}
	}
	if report.AssetAmountColumn == "" {
		return nil, models.AccuracySummary{}, &apperrors.InsufficientDataError{
			Field: ColAssetAmount, Reason: "no asset amount column in the reconciled data",
		}
	}

	records := make([]models.AccuracyRecord, 0)
	var sum models.AccuracySummary
	for _, r := range report.Records {
		if r.KPI != models.KPIHappyPath {
			continue
		}
		flag, diff := ClassifyAccuracy(r.BillingAmount, r.AssetAmount)
		records = append(records, models.AccuracyRecord{ReconciledRecord: r, Flag: flag, Difference: diff})

		sum.Total++
		switch flag {
		case models.AccuracyAccurate:
			sum.Accurate++
		case models.AccuracyOverBilling:
			sum.OverBilling++
		case models.AccuracyUnderBilling:
			sum.UnderBilling++
		case models.AccuracyInsufficientData:
			sum.InsufficientData++
		}
	}
	sum.AccuracyPct = percent(sum.Accurate, sum.Total-sum.InsufficientData)
	return records, sum, nil
}

// AccuracyService runs the billing accuracy control.
type AccuracyService interface {
	Run(ctx context.Context, product string) (*models.AccuracyReport, error)
}

type accuracyService struct {
	recon  ReconciliationService
	logger *zap.Logger
}

// NewAccuracyService creates an accuracy service on top of the completeness run.
func NewAccuracyService(recon ReconciliationService, logger *zap.Logger) AccuracyService {
	return &accuracyService{recon: recon, logger: logger.Named("accuracy")}
}

// Run implements AccuracyService.
func (s *accuracyService) Run(ctx context.Context, product string) (*models.AccuracyReport, error) {
	completeness, err := s.recon.Completeness(ctx, ControlAccuracy, product)
	if err != nil {
		return nil, err
	}

	records, summary, err := EvaluateAccuracy(completeness)
	if err != nil {
		return nil, err
	}

	report := &models.AccuracyReport{
		RunID:       uuid.New(),
		SourceRunID: completeness.RunID,
		Product:     product,
		Summary:     summary,
		Records:     records,
		GeneratedAt: time.Now().UTC(),
	}

	s.logger.Info("Accuracy run finished",
		zap.String("run_id", report.RunID.String()),
		zap.String("product", product),
		zap.Int("total", summary.Total),
		zap.Int("accurate", summary.Accurate),
		zap.Int("insufficient_data", summary.InsufficientData),
		zap.Float64("accuracy_pct", summary.AccuracyPct))

	return report, nil
}

var accuracyColumns = append(append([]string(nil), reconciledColumns...),
	ColBillingAmount, ColAssetAmount, "difference", "accuracy_flag")

// AccuracyTable renders accuracy records for export.
func AccuracyTable(records []models.AccuracyRecord) *table.Table {
	base := make([]models.ReconciledRecord, len(records))
	for i, r := range records {
		base[i] = r.ReconciledRecord
	}
	t := RecordsTable(base)
	t.Columns = accuracyColumns
	for i, r := range records {
		row := t.Rows[i]
		row[ColBillingAmount] = floatOrNil(r.BillingAmount)
		row[ColAssetAmount] = floatOrNil(r.AssetAmount)
		row["difference"] = floatOrNil(r.Difference)
		row["accuracy_flag"] = string(r.Flag)
	}
	return t
}

// WriteAccuracyCSV writes the records of an accuracy report.
func WriteAccuracyCSV(w io.Writer, report *models.AccuracyReport) error {
	return table.WriteCSV(w, AccuracyTable(report.Records))
}

func floatOrNil(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}
