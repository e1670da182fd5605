package services

import (
	"fmt"
	"strings"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
)

// WizardError is a rejected wizard transition.
type WizardError struct {
	Code    string // Machine-readable error code
	Message string // User-facing message
}

func (e *WizardError) Error() string {
	return e.Message
}

// Wizard error codes.
const (
	ErrCodeWrongStep          = "wrong_step"
	ErrCodeUnknownControl     = "unknown_control"
	ErrCodeUnknownProduct     = "unknown_product"
	ErrCodeNotConfirmed       = "not_confirmed"
	ErrCodeNoReport           = "no_report"
	ErrCodeAtFirstStep        = "at_first_step"
	ErrCodeUnknownWizardEvent = "unknown_event"
)

// WizardEventType names a user action.
type WizardEventType string

const (
	WizardEventControl    WizardEventType = "control"
	WizardEventProduct    WizardEventType = "product"
	WizardEventConfirm    WizardEventType = "confirm"
	WizardEventRun        WizardEventType = "run"
	WizardEventExceptions WizardEventType = "exceptions"
	WizardEventBack       WizardEventType = "back"
	WizardEventReset      WizardEventType = "reset"
)

// WizardEvent is one user action with its payload.
type WizardEvent struct {
	Type        WizardEventType `json:"type"`
	ControlType string          `json:"control_type,omitempty"`
	Product     string          `json:"product,omitempty"`
	// RunID is the report produced for a run event.
	RunID string `json:"run_id,omitempty"`
}

// WizardContext lists what the user may choose. A control type with no
// configured products accepts any product name.
type WizardContext struct {
	ControlTypes []string
	Products     map[string][]string
}

// NewWizardContext builds the choices from the controls file. The built-in
// completeness and accuracy controls are always offered.
func NewWizardContext(controls *config.Controls) WizardContext {
	wc := WizardContext{
		ControlTypes: []string{ControlCompleteness, ControlAccuracy},
		Products:     map[string][]string{},
	}
	if controls == nil {
		return wc
	}
	for _, ct := range controls.ControlTypes() {
		if ct != ControlCompleteness && ct != ControlAccuracy {
			wc.ControlTypes = append(wc.ControlTypes, ct)
		}
		wc.Products[ct] = controls.Products(ct)
	}
	return wc
}

// WizardResult is the outcome of a transition. On error State is the
// unchanged input state.
type WizardResult struct {
	State models.WizardState
	Error *WizardError
}

// ApplyWizardEvent returns the state after event. It never mutates state.
func ApplyWizardEvent(state models.WizardState, event WizardEvent, wc WizardContext) WizardResult {
	if !models.IsValidWizardStep(state.Step) {
		state = models.NewWizardState()
	}
	next, err := applyWizardEvent(state, event, wc)
	if err != nil {
		return WizardResult{State: state, Error: err}
	}
	return WizardResult{State: next}
}

// CheckWizardRun reports whether a report may be run from state.
func CheckWizardRun(state models.WizardState) *WizardError {
	if err := requireStep(state, models.WizardStepRunReport, WizardEventRun); err != nil {
		return err
	}
	if !state.Confirmed {
		return &WizardError{Code: ErrCodeNotConfirmed, Message: "Confirm the selection before running the report"}
	}
	return nil
}

func applyWizardEvent(state models.WizardState, event WizardEvent, wc WizardContext) (models.WizardState, *WizardError) {
	switch event.Type {
	case WizardEventReset:
		return models.NewWizardState(), nil

	case WizardEventControl:
		next, err := advance(state, event.Type)
		if err != nil {
			return state, err
		}
		ct := strings.ToLower(strings.TrimSpace(event.ControlType))
		if !contains(wc.ControlTypes, ct) {
			return state, &WizardError{
				Code:    ErrCodeUnknownControl,
				Message: fmt.Sprintf("Unknown control type: %s", event.ControlType),
			}
		}
		return models.WizardState{Step: next, ControlType: ct}, nil

	case WizardEventProduct:
		next, err := advance(state, event.Type)
		if err != nil {
			return state, err
		}
		product := strings.TrimSpace(event.Product)
		allowed := wc.Products[state.ControlType]
		if product == "" || (len(allowed) > 0 && !contains(allowed, product)) {
			return state, &WizardError{
				Code:    ErrCodeUnknownProduct,
				Message: fmt.Sprintf("Unknown product for %s: %q", state.ControlType, event.Product),
			}
		}
		state.Step = next
		state.Product = product
		state.Confirmed = false
		state.LastRunID = ""
		return state, nil

	case WizardEventConfirm:
		next, err := advance(state, event.Type)
		if err != nil {
			return state, err
		}
		state.Step = next
		state.Confirmed = true
		return state, nil

	case WizardEventRun:
		if err := CheckWizardRun(state); err != nil {
			return state, err
		}
		if event.RunID == "" {
			return state, &WizardError{Code: ErrCodeNoReport, Message: "The report run did not produce a result"}
		}
		state.LastRunID = event.RunID
		return state, nil

	case WizardEventExceptions:
		next, err := advance(state, event.Type)
		if err != nil {
			return state, err
		}
		if state.LastRunID == "" {
			return state, &WizardError{Code: ErrCodeNoReport, Message: "Run the report before viewing exceptions"}
		}
		state.Step = next
		return state, nil

	case WizardEventBack:
		prev, ok := state.Step.Previous()
		if !ok {
			return state, &WizardError{Code: ErrCodeAtFirstStep, Message: "Already at the first step"}
		}
		if !state.Step.CanTransitionTo(prev) {
			return state, wrongStep(state, event.Type)
		}
		return rewind(state, prev), nil
	}

	return state, &WizardError{
		Code:    ErrCodeUnknownWizardEvent,
		Message: fmt.Sprintf("Unknown wizard action: %s", event.Type),
	}
}

// rewind moves to an earlier step and forgets choices made after it.
func rewind(state models.WizardState, to models.WizardStep) models.WizardState {
	state.Step = to
	switch to {
	case models.WizardStepChooseControl:
		return models.NewWizardState()
	case models.WizardStepChooseProduct:
		state.Product = ""
		state.Confirmed = false
		state.LastRunID = ""
	}
	return state
}

// eventSteps is the step each forward event is accepted at.
var eventSteps = map[WizardEventType]models.WizardStep{
	WizardEventControl:    models.WizardStepChooseControl,
	WizardEventProduct:    models.WizardStepChooseProduct,
	WizardEventConfirm:    models.WizardStepConfirm,
	WizardEventExceptions: models.WizardStepRunReport,
}

// advance returns the step a forward event leads to from state.
func advance(state models.WizardState, event WizardEventType) (models.WizardStep, *WizardError) {
	want, ok := eventSteps[event]
	if !ok {
		return state.Step, wrongStep(state, event)
	}
	if err := requireStep(state, want, event); err != nil {
		return state.Step, err
	}
	next, ok := state.Step.Next()
	if !ok || !state.Step.CanTransitionTo(next) {
		return state.Step, wrongStep(state, event)
	}
	return next, nil
}

func requireStep(state models.WizardState, want models.WizardStep, event WizardEventType) *WizardError {
	if state.Step == want {
		return nil
	}
	return wrongStep(state, event)
}

func wrongStep(state models.WizardState, event WizardEventType) *WizardError {
	return &WizardError{
		Code:    ErrCodeWrongStep,
		Message: fmt.Sprintf("Cannot %s from step %s", event, state.Step),
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
