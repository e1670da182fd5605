package handlers

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
	"github.com/ekaya-inc/ekaya-recon/pkg/table"
)

// MappingsResponse previews the head of both mapping files.
type MappingsResponse struct {
	Siebel   *table.Table `json:"siebel"`
	Antillia *table.Table `json:"antillia"`
}

// MappingsHandler serves the mapping file preview.
type MappingsHandler struct {
	mappings   services.MappingService
	controls   *config.Controls
	sampleRows int
	logger     *zap.Logger
}

// NewMappingsHandler creates a mappings handler. controls may be nil.
func NewMappingsHandler(mappings services.MappingService, controls *config.Controls, sampleRows int, logger *zap.Logger) *MappingsHandler {
	if controls == nil {
		controls = &config.Controls{Controls: map[string]map[string]config.ProductControl{}}
	}
	return &MappingsHandler{mappings: mappings, controls: controls, sampleRows: sampleRows, logger: logger}
}

// RegisterRoutes registers the mappings routes on the given mux.
func (h *MappingsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/mappings", h.Preview)
}

// Preview handles GET /api/mappings. With ?product= (and optionally
// control_type, default completeness) it previews the files that product's
// control names.
func (h *MappingsHandler) Preview(w http.ResponseWriter, r *http.Request) {
	var (
		set *services.MappingSet
		err error
	)
	if product := strings.TrimSpace(r.URL.Query().Get("product")); product != "" {
		controlType := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("control_type")))
		if controlType == "" {
			controlType = services.ControlCompleteness
		}
		set, err = h.mappings.ForControl(r.Context(), h.controls.Lookup(controlType, product))
	} else {
		set, err = h.mappings.Load(r.Context())
	}
	if err != nil {
		writeServiceError(w, h.logger, "Load mappings", err)
		return
	}
	head := set.Head(h.sampleRows)
	writeOK(w, h.logger, MappingsResponse{Siebel: head.Siebel, Antillia: head.Antillia})
}
