package handlers

import (
	"crypto/sha256"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
	"github.com/ekaya-inc/ekaya-recon/pkg/services"
)

// sessionKeyWizard holds the JSON-encoded wizard state in the session.
const sessionKeyWizard = "wizard"

// NewSessionStore creates the signed cookie store that carries wizard state.
//
// The secret can be any passphrase; it is SHA-256 hashed into a 32-byte key
// and must match across restarts and replicas. Config loading rejects an empty
// secret outside local runs. Cookies are HttpOnly,
// SameSite=Lax, and Secure unless running locally.
func NewSessionStore(cfg config.SessionConfig, secure bool) *sessions.CookieStore {
	key := sha256.Sum256([]byte(cfg.Secret))

	store := sessions.NewCookieStore(key[:])
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   cfg.MaxAgeSecs,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// WizardActionRequest is the optional body of a wizard action.
type WizardActionRequest struct {
	ControlType string `json:"control_type,omitempty"`
	Product     string `json:"product,omitempty"`
	Limit       int    `json:"limit,omitempty"`
}

// WizardResponse returns the state after an action plus any report output.
type WizardResponse struct {
	State        models.WizardState         `json:"state"`
	ControlTypes []string                   `json:"control_types,omitempty"`
	Products     []string                   `json:"products,omitempty"`
	Completeness *models.CompletenessReport `json:"completeness,omitempty"`
	Accuracy     *models.AccuracyReport     `json:"accuracy,omitempty"`
	Exceptions   []models.ExceptionGroup    `json:"exceptions,omitempty"`
}

// WizardHandler drives the report wizard. The state machine itself is pure;
// this handler loads state from the session cookie, applies one event and
// saves the result.
type WizardHandler struct {
	store      sessions.Store
	cookieName string
	recon      services.ReconciliationService
	accuracy   services.AccuracyService
	logger     *zap.Logger
}

// NewWizardHandler creates a wizard handler.
func NewWizardHandler(
	store sessions.Store,
	cookieName string,
	recon services.ReconciliationService,
	accuracy services.AccuracyService,
	logger *zap.Logger,
) *WizardHandler {
	return &WizardHandler{
		store:      store,
		cookieName: cookieName,
		recon:      recon,
		accuracy:   accuracy,
		logger:     logger,
	}
}

// RegisterRoutes registers the wizard routes on the given mux.
func (h *WizardHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/wizard", h.Get)
	mux.HandleFunc("POST /api/wizard/control", h.event(services.WizardEventControl))
	mux.HandleFunc("POST /api/wizard/product", h.event(services.WizardEventProduct))
	mux.HandleFunc("POST /api/wizard/confirm", h.event(services.WizardEventConfirm))
	mux.HandleFunc("POST /api/wizard/back", h.event(services.WizardEventBack))
	mux.HandleFunc("POST /api/wizard/reset", h.event(services.WizardEventReset))
	mux.HandleFunc("POST /api/wizard/run", h.Run)
	mux.HandleFunc("POST /api/wizard/exceptions", h.Exceptions)
}

// Get handles GET /api/wizard
func (h *WizardHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, state := h.load(r)
	if !h.save(w, r, session, state) {
		return
	}
	writeOK(w, h.logger, h.respond(state))
}

// event handles the actions that only move the state machine.
func (h *WizardHandler) event(eventType services.WizardEventType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req WizardActionRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, h.logger, &req) {
			return
		}

		session, state := h.load(r)
		result := services.ApplyWizardEvent(state, services.WizardEvent{
			Type:        eventType,
			ControlType: req.ControlType,
			Product:     req.Product,
		}, h.wizardContext())
		if result.Error != nil {
			h.rejected(w, result.Error)
			return
		}
		if !h.save(w, r, session, result.State) {
			return
		}
		writeOK(w, h.logger, h.respond(result.State))
	}
}

// Run handles POST /api/wizard/run
func (h *WizardHandler) Run(w http.ResponseWriter, r *http.Request) {
	session, state := h.load(r)
	if werr := services.CheckWizardRun(state); werr != nil {
		h.rejected(w, werr)
		return
	}

	resp := h.respond(state)
	var runID string
	if state.ControlType == services.ControlAccuracy {
		report, err := h.accuracy.Run(r.Context(), state.Product)
		if err != nil {
			writeServiceError(w, h.logger, "Wizard accuracy run", err)
			return
		}
		resp.Accuracy = report
		runID = report.SourceRunID.String()
	} else {
		report, err := h.recon.Completeness(r.Context(), state.ControlType, state.Product)
		if err != nil {
			writeServiceError(w, h.logger, "Wizard completeness run", err)
			return
		}
		resp.Completeness = report
		runID = report.RunID.String()
	}

	result := services.ApplyWizardEvent(state, services.WizardEvent{Type: services.WizardEventRun, RunID: runID}, h.wizardContext())
	if result.Error != nil {
		h.rejected(w, result.Error)
		return
	}
	if !h.save(w, r, session, result.State) {
		return
	}
	resp.State = result.State
	writeOK(w, h.logger, resp)
}

// Exceptions handles POST /api/wizard/exceptions
func (h *WizardHandler) Exceptions(w http.ResponseWriter, r *http.Request) {
	var req WizardActionRequest
	if r.ContentLength != 0 && !decodeJSON(w, r, h.logger, &req) {
		return
	}

	session, state := h.load(r)
	result := services.ApplyWizardEvent(state, services.WizardEvent{Type: services.WizardEventExceptions}, h.wizardContext())
	if result.Error != nil {
		h.rejected(w, result.Error)
		return
	}

	runID, _ := uuid.Parse(result.State.LastRunID)
	groups, err := h.recon.TopExceptions(r.Context(), services.ExceptionsRequest{
		RunID:       runID,
		ControlType: result.State.ControlType,
		Product:     result.State.Product,
		Limit:       req.Limit,
	})
	if err != nil {
		writeServiceError(w, h.logger, "Wizard exceptions", err)
		return
	}
	if !h.save(w, r, session, result.State) {
		return
	}

	resp := h.respond(result.State)
	resp.Exceptions = groups
	writeOK(w, h.logger, resp)
}

func (h *WizardHandler) wizardContext() services.WizardContext {
	return services.NewWizardContext(h.recon.Controls())
}

func (h *WizardHandler) respond(state models.WizardState) WizardResponse {
	wc := h.wizardContext()
	resp := WizardResponse{State: state}
	switch state.Step {
	case models.WizardStepChooseControl:
		resp.ControlTypes = wc.ControlTypes
	case models.WizardStepChooseProduct:
		resp.Products = wc.Products[state.ControlType]
	}
	return resp
}

// load returns the session and its wizard state. A missing, tampered or
// unreadable cookie starts a fresh wizard.
func (h *WizardHandler) load(r *http.Request) (*sessions.Session, models.WizardState) {
	session, err := h.store.Get(r, h.cookieName)
	if err != nil {
		h.logger.Debug("Discarding unreadable wizard session", zap.Error(err))
	}

	state := models.NewWizardState()
	if raw, ok := session.Values[sessionKeyWizard].(string); ok {
		if err := json.Unmarshal([]byte(raw), &state); err != nil || !models.IsValidWizardStep(state.Step) {
			state = models.NewWizardState()
		}
	}
	return session, state
}

func (h *WizardHandler) save(w http.ResponseWriter, r *http.Request, session *sessions.Session, state models.WizardState) bool {
	raw, err := json.Marshal(state)
	if err == nil {
		session.Values[sessionKeyWizard] = string(raw)
		err = session.Save(r, w)
	}
	if err != nil {
		h.logger.Error("Failed to save wizard session", zap.Error(err))
		if werr := ErrorResponse(w, http.StatusInternalServerError, "session_error", "Failed to save wizard state"); werr != nil {
			h.logger.Error("Failed to write error response", zap.Error(werr))
		}
		return false
	}
	return true
}

func (h *WizardHandler) rejected(w http.ResponseWriter, werr *services.WizardError) {
	if err := ErrorResponse(w, http.StatusConflict, werr.Code, werr.Message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
