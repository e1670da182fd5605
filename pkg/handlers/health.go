package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
)

const readinessTimeout = 5 * time.Second

// ReadinessCheck checks one dependency. A nil error means ready.
type ReadinessCheck func(ctx context.Context) error

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Warehouse   string `json:"warehouse"`
	LLMModel    string `json:"llm_model"`
}

// ReadyResponse reports each dependency check by name.
type ReadyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks"`
}

// HealthHandler serves liveness, readiness and build info.
type HealthHandler struct {
	cfg    *config.Config
	checks map[string]ReadinessCheck
	logger *zap.Logger
}

// NewHealthHandler creates a HealthHandler. checks may be nil.
func NewHealthHandler(cfg *config.Config, checks map[string]ReadinessCheck, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, checks: checks, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. Liveness only; no dependency is touched.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Ready handles GET /ready. Every check runs; any failure gives 503.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadyResponse{Ready: true, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
			resp.Ready = false
			resp.Checks[name] = "unavailable"
			continue
		}
		resp.Checks[name] = "ok"
	}

	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode readiness response", zap.Error(err))
	}
}

// Ping handles GET /ping with build and environment details.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-recon",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Warehouse:   h.cfg.Warehouse.Type,
		LLMModel:    h.cfg.LLM.Model,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
