package handlers

import (
	"context"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-recon/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// mockReconciliationService stores every completeness run it produces so
// Report can find it again.
type mockReconciliationService struct {
	mu       sync.Mutex
	controls *config.Controls
	summary  models.CompletenessSummary
	groups   []models.ExceptionGroup
	err      error
	reports  map[uuid.UUID]*models.CompletenessReport
	lastReq  services.ExceptionsRequest
}

func newMockReconciliationService() *mockReconciliationService {
	return &mockReconciliationService{
		controls: &config.Controls{Controls: map[string]map[string]config.ProductControl{
			"completeness": {"Fiber 100Mbps": {Systems: []string{"siebel", "antillia"}}},
		}},
		summary: models.CompletenessSummary{Total: 3, HappyPath: 1, ServiceNoBill: 1, DataIssue: 1, CompletenessPct: 33.33},
		groups: []models.ExceptionGroup{
			{KPI: models.KPIServiceNoBill, ProductName: "Fiber 100Mbps", SiebelAccountID: "SA-2", Count: 1},
		},
		reports: map[uuid.UUID]*models.CompletenessReport{},
	}
}

func (m *mockReconciliationService) Completeness(ctx context.Context, controlType, product string) (*models.CompletenessReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	report := &models.CompletenessReport{
		RunID:       uuid.New(),
		ControlType: controlType,
		Product:     product,
		Systems:     []string{"siebel", "antillia"},
		Summary:     m.summary,
		Records: []models.ReconciledRecord{
			{AssetID: "A-1", ProductName: product, SiebelAccountID: "SA-1", KPI: models.KPIHappyPath},
		},
	}
	m.reports[report.RunID] = report
	return report, nil
}

func (m *mockReconciliationService) Report(runID uuid.UUID) (*models.CompletenessReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	report, ok := m.reports[runID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return report, nil
}

func (m *mockReconciliationService) TopExceptions(ctx context.Context, req services.ExceptionsRequest) ([]models.ExceptionGroup, error) {
	m.mu.Lock()
	m.lastReq = req
	m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.groups, nil
}

func (m *mockReconciliationService) Controls() *config.Controls {
	return m.controls
}

type mockAccuracyService struct {
	err error
}

func (m *mockAccuracyService) Run(ctx context.Context, product string) (*models.AccuracyReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &models.AccuracyReport{
		RunID:       uuid.New(),
		SourceRunID: uuid.New(),
		Product:     product,
		Summary:     models.AccuracySummary{Total: 1, Accurate: 1, AccuracyPct: 100},
	}, nil
}

type mockQueryService struct {
	generated *services.GeneratedSQL
	result    *services.QueryResult
	export    string
	err       error

	lastExecute *services.ExecuteQueryRequest
	lastFormat  string
}

func (m *mockQueryService) Generate(ctx context.Context, question string) (*services.GeneratedSQL, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.generated, nil
}

func (m *mockQueryService) Execute(ctx context.Context, req *services.ExecuteQueryRequest) (*services.QueryResult, error) {
	m.lastExecute = req
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockQueryService) Run(ctx context.Context, question string, limit int) (*services.RunQueryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.RunQueryResult{Generated: m.generated, Result: m.result}, nil
}

func (m *mockQueryService) Export(ctx context.Context, sqlQuery, format string, w io.Writer) error {
	m.lastFormat = format
	if m.err != nil {
		return m.err
	}
	_, err := io.WriteString(w, m.export)
	return err
}

func (m *mockQueryService) Preview(ctx context.Context, tableName string) (*services.QueryResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &services.QueryResult{SQL: "SELECT * FROM " + tableName, RowCount: 0}, nil
}

type mockMappingService struct {
	set *services.MappingSet
	err error

	controls []config.ProductControl
}

func (m *mockMappingService) Load(ctx context.Context) (*services.MappingSet, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.set, nil
}

func (m *mockMappingService) ForControl(ctx context.Context, pc config.ProductControl) (*services.MappingSet, error) {
	m.controls = append(m.controls, pc)
	if m.err != nil {
		return nil, m.err
	}
	return m.set, nil
}

func (m *mockMappingService) LoadFile(ctx context.Context, fileName string) (*table.Table, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.set.Siebel, nil
}
