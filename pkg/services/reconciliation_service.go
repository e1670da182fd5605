package services

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/logging"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// Control types.
const (
	ControlCompleteness = "completeness"
	ControlAccuracy     = "accuracy"
)

const (
	reportTTL      = time.Hour
	reportCapacity = 256
)

// ExceptionsRequest selects the run to drill into. A run that is no longer
// held is recomputed from ControlType and Product.
type ExceptionsRequest struct {
	RunID       uuid.UUID `json:"run_id"`
	ControlType string    `json:"control_type"`
	Product     string    `json:"product"`
	Limit       int       `json:"limit"`
}

// ReconciliationService runs completeness controls and keeps recent reports.
type ReconciliationService interface {
	// Completeness loads the systems configured for (controlType, product),
	// reconciles them and stores the report under a new run ID.
	Completeness(ctx context.Context, controlType, product string) (*models.CompletenessReport, error)
	// Report returns a stored report, or ErrNotFound once it has expired.
	Report(runID uuid.UUID) (*models.CompletenessReport, error)
	// TopExceptions groups the exceptions of a run.
	TopExceptions(ctx context.Context, req ExceptionsRequest) ([]models.ExceptionGroup, error)
	// Controls returns the configured control types and products.
	Controls() *config.Controls
}

type reconciliationService struct {
	loader   DataLoader
	mappings MappingService
	controls *config.Controls
	cfg      config.ReconciliationConfig
	opts     ReconcileOptions
	reports  *ttlcache.Cache[uuid.UUID, *models.CompletenessReport]
	logger   *zap.Logger
}

// NewReconciliationService creates a reconciliation service. mappings may be
// nil, in which case the mapping files named by controls are not loaded.
func NewReconciliationService(
	loader DataLoader,
	mappings MappingService,
	controls *config.Controls,
	cfg config.ReconciliationConfig,
	logger *zap.Logger,
) ReconciliationService {
	if controls == nil {
		controls = &config.Controls{Controls: map[string]map[string]config.ProductControl{}}
	}
	return &reconciliationService{
		loader:   loader,
		mappings: mappings,
		controls: controls,
		cfg:      cfg,
		opts: ReconcileOptions{
			Statuses:             NewStatusSet(cfg.AvailableStatuses),
			FoldProductMatch:     cfg.ProductMatch == "fold",
			ProductFiltered:      true,
			BillingAmountColumns: cfg.BillingAmountColumns,
			AssetAmountColumns:   cfg.AssetAmountColumns,
		},
		reports: ttlcache.New(
			ttlcache.WithTTL[uuid.UUID, *models.CompletenessReport](reportTTL),
			ttlcache.WithCapacity[uuid.UUID, *models.CompletenessReport](reportCapacity),
		),
		logger: logger.Named("reconciliation"),
	}
}

// Completeness implements ReconciliationService.
func (s *reconciliationService) Completeness(ctx context.Context, controlType, product string) (*models.CompletenessReport, error) {
	controlType = strings.ToLower(strings.TrimSpace(controlType))
	if controlType == "" {
		controlType = ControlCompleteness
	}
	if strings.TrimSpace(product) == "" {
		return nil, fmt.Errorf("%w: product is required", apperrors.ErrInvalidInput)
	}

	pc := s.controls.Lookup(controlType, product)
	start := time.Now()

	if s.mappings != nil && len(pc.Mappings) > 0 {
		set, err := s.mappings.ForControl(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("load mappings for %s: %w", product, err)
		}
		s.logger.Debug("Loaded control mappings",
			zap.String("product", product),
			zap.Strings("files", pc.Mappings),
			zap.Int("siebel_rows", set.Siebel.Len()),
			zap.Int("antillia_rows", set.Antillia.Len()))
	}

	data, err := s.loader.Load(ctx, product, pc.Systems)
	if err != nil {
		return nil, err
	}

	result, err := Reconcile(data, product, s.opts)
	if err != nil {
		s.logger.Warn("Reconciliation failed",
			zap.String("control_type", controlType),
			zap.String("product", product),
			zap.String("error", logging.SanitizeError(err)))
		return nil, err
	}

	report := &models.CompletenessReport{
		RunID:               uuid.New(),
		ControlType:         controlType,
		Product:             product,
		Systems:             pc.Systems,
		Mappings:            pc.Mappings,
		Summary:             result.Summary,
		Records:             result.Records,
		GeneratedAt:         time.Now().UTC(),
		BillingAmountColumn: result.BillingAmountColumn,
		AssetAmountColumn:   result.AssetAmountColumn,
	}
	s.reports.Set(report.RunID, report, ttlcache.DefaultTTL)

	s.logger.Info("Completeness run finished",
		zap.String("run_id", report.RunID.String()),
		zap.String("control_type", controlType),
		zap.String("product", product),
		zap.Int("total", result.Summary.Total),
		zap.Int("happy_path", result.Summary.HappyPath),
		zap.Float64("completeness_pct", result.Summary.CompletenessPct),
		zap.Duration("elapsed", time.Since(start)))

	return report, nil
}

// Report implements ReconciliationService.
func (s *reconciliationService) Report(runID uuid.UUID) (*models.CompletenessReport, error) {
	item := s.reports.Get(runID)
	if item == nil {
		return nil, fmt.Errorf("%w: report %s", apperrors.ErrNotFound, runID)
	}
	return item.Value(), nil
}

// TopExceptions implements ReconciliationService.
func (s *reconciliationService) TopExceptions(ctx context.Context, req ExceptionsRequest) ([]models.ExceptionGroup, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = s.cfg.TopExceptionsLimit
	}

	var report *models.CompletenessReport
	if req.RunID != uuid.Nil {
		if r, err := s.Report(req.RunID); err == nil {
			report = r
		} else if req.Product == "" {
			return nil, err
		}
	}
	if report == nil {
		r, err := s.Completeness(ctx, req.ControlType, req.Product)
		if err != nil {
			return nil, err
		}
		report = r
	}
	return TopExceptions(report.Records, limit), nil
}

// Controls implements ReconciliationService.
func (s *reconciliationService) Controls() *config.Controls {
	return s.controls
}

// WriteCompletenessCSV writes the detail records of a report.
func WriteCompletenessCSV(w io.Writer, report *models.CompletenessReport) error {
	return table.WriteCSV(w, RecordsTable(report.Records))
}

// WriteCompletenessXLSX writes the detail records of a report as a workbook.
func WriteCompletenessXLSX(w io.Writer, report *models.CompletenessReport) error {
	return table.WriteXLSX(w, RecordsTable(report.Records), "Completeness")
}
