package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
)

// ReportRequest selects the product (and optionally the control type) of a run.
type ReportRequest struct {
	ControlType string `json:"control_type,omitempty"`
	Product     string `json:"product"`
}

// ExceptionsRequest is the body of POST /api/reports/exceptions.
type ExceptionsRequest struct {
	RunID       string `json:"run_id,omitempty"`
	ControlType string `json:"control_type,omitempty"`
	Product     string `json:"product,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// ControlsResponse lists the control types and their configured products.
type ControlsResponse struct {
	ControlTypes []string            `json:"control_types"`
	Products     map[string][]string `json:"products"`
}

// ExceptionsResponse is the top exceptions drill-down.
type ExceptionsResponse struct {
	Exceptions []models.ExceptionGroup `json:"exceptions"`
}

// ReportsHandler serves completeness and accuracy reports.
type ReportsHandler struct {
	recon    services.ReconciliationService
	accuracy services.AccuracyService
	logger   *zap.Logger
}

// NewReportsHandler creates a reports handler.
func NewReportsHandler(recon services.ReconciliationService, accuracy services.AccuracyService, logger *zap.Logger) *ReportsHandler {
	return &ReportsHandler{recon: recon, accuracy: accuracy, logger: logger}
}

// RegisterRoutes registers the report routes on the given mux.
func (h *ReportsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/controls", h.Controls)
	mux.HandleFunc("POST /api/reports/completeness", h.Completeness)
	mux.HandleFunc("POST /api/reports/completeness/export", h.ExportCompleteness)
	mux.HandleFunc("POST /api/reports/accuracy", h.Accuracy)
	mux.HandleFunc("POST /api/reports/exceptions", h.Exceptions)
	mux.HandleFunc("GET /api/reports/{run_id}", h.Get)
}

// Controls handles GET /api/controls
func (h *ReportsHandler) Controls(w http.ResponseWriter, r *http.Request) {
	wc := services.NewWizardContext(h.recon.Controls())
	writeOK(w, h.logger, ControlsResponse{ControlTypes: wc.ControlTypes, Products: wc.Products})
}

// Completeness handles POST /api/reports/completeness
func (h *ReportsHandler) Completeness(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseReportRequest(w, r)
	if !ok {
		return
	}
	report, err := h.recon.Completeness(r.Context(), req.ControlType, req.Product)
	if err != nil {
		writeServiceError(w, h.logger, "Completeness report", err)
		return
	}
	writeOK(w, h.logger, report)
}

// ExportCompleteness handles POST /api/reports/completeness/export?format=csv|xlsx
func (h *ReportsHandler) ExportCompleteness(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(r.URL.Query().Get("format"))
	if format == "" {
		format = services.FormatCSV
	}
	if format != services.FormatCSV && format != services.FormatXLSX {
		badRequest(w, h.logger, "invalid_format", fmt.Sprintf("Unsupported export format %q", format))
		return
	}

	req, ok := h.parseReportRequest(w, r)
	if !ok {
		return
	}
	report, err := h.recon.Completeness(r.Context(), req.ControlType, req.Product)
	if err != nil {
		writeServiceError(w, h.logger, "Completeness export", err)
		return
	}

	var buf bytes.Buffer
	if format == services.FormatXLSX {
		err = services.WriteCompletenessXLSX(&buf, report)
	} else {
		err = services.WriteCompletenessCSV(&buf, report)
	}
	if err != nil {
		writeServiceError(w, h.logger, "Completeness export", err)
		return
	}
	w.Header().Set("X-Run-ID", report.RunID.String())
	writeDownload(w, h.logger, "completeness_report", format, buf.Bytes())
}

// Accuracy handles POST /api/reports/accuracy
func (h *ReportsHandler) Accuracy(w http.ResponseWriter, r *http.Request) {
	req, ok := h.parseReportRequest(w, r)
	if !ok {
		return
	}
	report, err := h.accuracy.Run(r.Context(), req.Product)
	if err != nil {
		writeServiceError(w, h.logger, "Accuracy report", err)
		return
	}
	writeOK(w, h.logger, report)
}

// Exceptions handles POST /api/reports/exceptions
func (h *ReportsHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	var req ExceptionsRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}

	sreq := services.ExceptionsRequest{ControlType: req.ControlType, Product: req.Product, Limit: req.Limit}
	if req.RunID != "" {
		id, err := uuid.Parse(req.RunID)
		if err != nil {
			badRequest(w, h.logger, "invalid_run_id", "Invalid run ID format")
			return
		}
		sreq.RunID = id
	} else if strings.TrimSpace(req.Product) == "" {
		badRequest(w, h.logger, "missing_product", "Product or run ID is required")
		return
	}

	groups, err := h.recon.TopExceptions(r.Context(), sreq)
	if err != nil {
		writeServiceError(w, h.logger, "Top exceptions", err)
		return
	}
	writeOK(w, h.logger, ExceptionsResponse{Exceptions: groups})
}

// Get handles GET /api/reports/{run_id}
func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("run_id"))
	if err != nil {
		badRequest(w, h.logger, "invalid_run_id", "Invalid run ID format")
		return
	}
	report, err := h.recon.Report(id)
	if err != nil {
		writeServiceError(w, h.logger, "Get report", err)
		return
	}
	writeOK(w, h.logger, report)
}

func (h *ReportsHandler) parseReportRequest(w http.ResponseWriter, r *http.Request) (ReportRequest, bool) {
	var req ReportRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return req, false
	}
	if strings.TrimSpace(req.Product) == "" {
		badRequest(w, h.logger, "missing_product", "Product is required")
		return req, false
	}
	return req, true
}
