package models

// ============================================================================
// Report Wizard
// ============================================================================

// WizardStep is a state of the report wizard.
// State machine:
//
//	choose_control → choose_product → confirm → run_report → exceptions
//	       ↑               ↑             │           │            │
//	       └───────────────┴─── back ────┴───────────┴────────────┘
//
//	Reset returns to choose_control from any state.
type WizardStep string

const (
	WizardStepChooseControl WizardStep = "choose_control"
	WizardStepChooseProduct WizardStep = "choose_product"
	WizardStepConfirm       WizardStep = "confirm"
	WizardStepRunReport     WizardStep = "run_report"
	WizardStepExceptions    WizardStep = "exceptions"
)

// ValidWizardSteps contains all valid steps in forward order.
var ValidWizardSteps = []WizardStep{
	WizardStepChooseControl,
	WizardStepChooseProduct,
	WizardStepConfirm,
	WizardStepRunReport,
	WizardStepExceptions,
}

// IsValidWizardStep checks if the given step is valid.
func IsValidWizardStep(s WizardStep) bool {
	for _, v := range ValidWizardSteps {
		if v == s {
			return true
		}
	}
	return false
}

// wizardForward lists the single forward edge out of each step.
var wizardForward = map[WizardStep]WizardStep{
	WizardStepChooseControl: WizardStepChooseProduct,
	WizardStepChooseProduct: WizardStepConfirm,
	WizardStepConfirm:       WizardStepRunReport,
	WizardStepRunReport:     WizardStepExceptions,
}

// wizardBack lists the back edge out of each step.
var wizardBack = map[WizardStep]WizardStep{
	WizardStepChooseProduct: WizardStepChooseControl,
	WizardStepConfirm:       WizardStepChooseProduct,
	WizardStepRunReport:     WizardStepChooseProduct,
	WizardStepExceptions:    WizardStepRunReport,
}

// Next returns the forward step, or false at the last step.
func (s WizardStep) Next() (WizardStep, bool) {
	n, ok := wizardForward[s]
	return n, ok
}

// Previous returns the back step, or false at the first step.
func (s WizardStep) Previous() (WizardStep, bool) {
	p, ok := wizardBack[s]
	return p, ok
}

// CanTransitionTo reports whether moving from s to target is allowed.
// Staying put, moving one step forward, going back, and resetting to the
// first step are allowed.
func (s WizardStep) CanTransitionTo(target WizardStep) bool {
	if !IsValidWizardStep(s) || !IsValidWizardStep(target) {
		return false
	}
	if s == target || target == WizardStepChooseControl {
		return true
	}
	if n, ok := wizardForward[s]; ok && n == target {
		return true
	}
	if p, ok := wizardBack[s]; ok && p == target {
		return true
	}
	return false
}

// WizardState is the full state of one user's wizard. It is passed into and
// returned from transition functions; nothing else holds it.
type WizardState struct {
	Step        WizardStep `json:"step"`
	ControlType string     `json:"control_type,omitempty"`
	Product     string     `json:"product,omitempty"`
	Confirmed   bool       `json:"confirmed"`
	// LastRunID identifies the report produced in run_report.
	LastRunID string `json:"last_run_id,omitempty"`
}

// NewWizardState returns the initial state.
func NewWizardState() WizardState {
	return WizardState{Step: WizardStepChooseControl}
}
