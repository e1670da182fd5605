package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/services"
)

// GenerateQueryRequest is the body of POST /api/query/generate and /run.
type GenerateQueryRequest struct {
	Question string `json:"question"`
	Limit    int    `json:"limit,omitempty"`
}

// ExportQueryRequest is the body of POST /api/query/export.
type ExportQueryRequest struct {
	SQL string `json:"sql"`
}

// QueryHandler serves NL-to-SQL generation and execution.
type QueryHandler struct {
	queryService services.QueryService
	logger       *zap.Logger
}

// NewQueryHandler creates a query handler.
func NewQueryHandler(queryService services.QueryService, logger *zap.Logger) *QueryHandler {
	return &QueryHandler{queryService: queryService, logger: logger}
}

// RegisterRoutes registers the query routes on the given mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query/generate", h.Generate)
	mux.HandleFunc("POST /api/query/execute", h.Execute)
	mux.HandleFunc("POST /api/query/run", h.Run)
	mux.HandleFunc("POST /api/query/export", h.Export)
	mux.HandleFunc("GET /api/tables/{name}/preview", h.Preview)
}

// Generate handles POST /api/query/generate
func (h *QueryHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req GenerateQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		badRequest(w, h.logger, "missing_question", "Question is required")
		return
	}

	gen, err := h.queryService.Generate(r.Context(), req.Question)
	if err != nil {
		writeServiceError(w, h.logger, "Generate SQL", err)
		return
	}
	writeOK(w, h.logger, gen)
}

// Execute handles POST /api/query/execute
func (h *QueryHandler) Execute(w http.ResponseWriter, r *http.Request) {
	var req services.ExecuteQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		badRequest(w, h.logger, "missing_sql", "SQL query is required")
		return
	}

	res, err := h.queryService.Execute(r.Context(), &req)
	if err != nil {
		writeServiceError(w, h.logger, "Execute query", err)
		return
	}
	writeOK(w, h.logger, res)
}

// Run handles POST /api/query/run
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req GenerateQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		badRequest(w, h.logger, "missing_question", "Question is required")
		return
	}

	res, err := h.queryService.Run(r.Context(), req.Question, req.Limit)
	if err != nil {
		writeServiceError(w, h.logger, "Run query", err)
		return
	}
	writeOK(w, h.logger, res)
}

// Export handles POST /api/query/export?format=csv|xlsx
func (h *QueryHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req ExportQueryRequest
	if !decodeJSON(w, r, h.logger, &req) {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = services.FormatCSV
	}

	// Buffer so a failure never leaves a half-written download.
	var buf bytes.Buffer
	if err := h.queryService.Export(r.Context(), req.SQL, format, &buf); err != nil {
		writeServiceError(w, h.logger, "Export query", err)
		return
	}
	writeDownload(w, h.logger, "query_result", strings.ToLower(format), buf.Bytes())
}

// Preview handles GET /api/tables/{name}/preview
func (h *QueryHandler) Preview(w http.ResponseWriter, r *http.Request) {
	res, err := h.queryService.Preview(r.Context(), r.PathValue("name"))
	if err != nil {
		writeServiceError(w, h.logger, "Preview table", err)
		return
	}
	writeOK(w, h.logger, res)
}

var contentTypes = map[string]string{
	services.FormatCSV:  "text/csv; charset=utf-8",
	services.FormatXLSX: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
}

func writeDownload(w http.ResponseWriter, logger *zap.Logger, name, format string, data []byte) {
	w.Header().Set("Content-Type", contentTypes[format])
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+"."+format+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		logger.Error("Failed to write download", zap.Error(err))
	}
}
