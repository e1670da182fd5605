package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-recon/pkg/config"
	"github.com/ekaya-inc/ekaya-recon/pkg/models"
)

func testWizardContext(t *testing.T) WizardContext {
	t.Helper()
	controls, err := config.ParseControls([]byte(`
controls:
  completeness:
    "Fiber 100Mbps":
      systems: [siebel, antillia]
    "Copper 10Mbps":
      systems: [siebel, antillia]
  migration:
    "Fiber 100Mbps":
      systems: [siebel, antillia]
`))
	require.NoError(t, err)
	return NewWizardContext(controls)
}

func TestNewWizardContext(t *testing.T) {
	wc := testWizardContext(t)
	assert.Equal(t, []string{ControlCompleteness, ControlAccuracy, "migration"}, wc.ControlTypes)
	assert.Equal(t, []string{"Copper 10Mbps", "Fiber 100Mbps"}, wc.Products[ControlCompleteness])
	assert.Empty(t, wc.Products[ControlAccuracy])
}

func TestApplyWizardEvent_HappyFlow(t *testing.T) {
	wc := testWizardContext(t)
	state := models.NewWizardState()

	steps := []struct {
		event WizardEvent
		want  models.WizardStep
	}{
		{WizardEvent{Type: WizardEventControl, ControlType: "Completeness"}, models.WizardStepChooseProduct},
		{WizardEvent{Type: WizardEventProduct, Product: "Fiber 100Mbps"}, models.WizardStepConfirm},
		{WizardEvent{Type: WizardEventConfirm}, models.WizardStepRunReport},
		{WizardEvent{Type: WizardEventRun, RunID: "run-1"}, models.WizardStepRunReport},
		{WizardEvent{Type: WizardEventExceptions}, models.WizardStepExceptions},
	}
	for _, s := range steps {
		res := ApplyWizardEvent(state, s.event, wc)
		require.Nil(t, res.Error, "event %s", s.event.Type)
		assert.Equal(t, s.want, res.State.Step, "event %s", s.event.Type)
		assert.True(t, state.Step.CanTransitionTo(res.State.Step))
		state = res.State
	}

	assert.Equal(t, ControlCompleteness, state.ControlType)
	assert.Equal(t, "Fiber 100Mbps", state.Product)
	assert.True(t, state.Confirmed)
	assert.Equal(t, "run-1", state.LastRunID)
}

func TestApplyWizardEvent_Rejections(t *testing.T) {
	wc := testWizardContext(t)
	atProduct := models.WizardState{Step: models.WizardStepChooseProduct, ControlType: ControlCompleteness}
	atConfirm := models.WizardState{Step: models.WizardStepConfirm, ControlType: ControlCompleteness, Product: "Fiber 100Mbps"}
	atRun := models.WizardState{Step: models.WizardStepRunReport, ControlType: ControlCompleteness, Product: "Fiber 100Mbps", Confirmed: true}

	tests := []struct {
		name  string
		state models.WizardState
		event WizardEvent
		code  string
	}{
		{"unknown control", models.NewWizardState(), WizardEvent{Type: WizardEventControl, ControlType: "billing"}, ErrCodeUnknownControl},
		{"product before control", models.NewWizardState(), WizardEvent{Type: WizardEventProduct, Product: "Fiber 100Mbps"}, ErrCodeWrongStep},
		{"unconfigured product", atProduct, WizardEvent{Type: WizardEventProduct, Product: "DSL"}, ErrCodeUnknownProduct},
		{"blank product", atProduct, WizardEvent{Type: WizardEventProduct, Product: "  "}, ErrCodeUnknownProduct},
		{"run before confirm", atConfirm, WizardEvent{Type: WizardEventRun, RunID: "x"}, ErrCodeWrongStep},
		{"run without report", atRun, WizardEvent{Type: WizardEventRun}, ErrCodeNoReport},
		{"exceptions before run", atRun, WizardEvent{Type: WizardEventExceptions}, ErrCodeNoReport},
		{"back at first step", models.NewWizardState(), WizardEvent{Type: WizardEventBack}, ErrCodeAtFirstStep},
		{"unknown event", atRun, WizardEvent{Type: "skip"}, ErrCodeUnknownWizardEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ApplyWizardEvent(tt.state, tt.event, wc)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)
			assert.Equal(t, tt.state, res.State, "state must be unchanged on error")
		})
	}
}

func TestApplyWizardEvent_FreeProductWhenNoneConfigured(t *testing.T) {
	wc := testWizardContext(t)
	state := models.WizardState{Step: models.WizardStepChooseProduct, ControlType: ControlAccuracy}

	res := ApplyWizardEvent(state, WizardEvent{Type: WizardEventProduct, Product: " Any Product "}, wc)
	require.Nil(t, res.Error)
	assert.Equal(t, "Any Product", res.State.Product)
}

func TestApplyWizardEvent_BackClearsLaterChoices(t *testing.T) {
	wc := testWizardContext(t)
	state := models.WizardState{
		Step:        models.WizardStepExceptions,
		ControlType: ControlCompleteness,
		Product:     "Fiber 100Mbps",
		Confirmed:   true,
		LastRunID:   "run-1",
	}

	res := ApplyWizardEvent(state, WizardEvent{Type: WizardEventBack}, wc)
	require.Nil(t, res.Error)
	assert.Equal(t, models.WizardStepRunReport, res.State.Step)
	assert.Equal(t, "run-1", res.State.LastRunID)

	res = ApplyWizardEvent(res.State, WizardEvent{Type: WizardEventBack}, wc)
	require.Nil(t, res.Error)
	assert.Equal(t, models.WizardState{Step: models.WizardStepChooseProduct, ControlType: ControlCompleteness}, res.State)

	res = ApplyWizardEvent(res.State, WizardEvent{Type: WizardEventBack}, wc)
	require.Nil(t, res.Error)
	assert.Equal(t, models.NewWizardState(), res.State)
}

func TestApplyWizardEvent_ResetFromAnyStep(t *testing.T) {
	wc := testWizardContext(t)
	for _, step := range models.ValidWizardSteps {
		state := models.WizardState{Step: step, ControlType: ControlCompleteness, Product: "P", Confirmed: true}
		res := ApplyWizardEvent(state, WizardEvent{Type: WizardEventReset}, wc)
		require.Nil(t, res.Error)
		assert.Equal(t, models.NewWizardState(), res.State)
	}
}

func TestApplyWizardEvent_InvalidStepRestarts(t *testing.T) {
	wc := testWizardContext(t)
	res := ApplyWizardEvent(models.WizardState{Step: "bogus"}, WizardEvent{Type: WizardEventControl, ControlType: ControlAccuracy}, wc)
	require.Nil(t, res.Error)
	assert.Equal(t, models.WizardStepChooseProduct, res.State.Step)
}

func TestApplyWizardEvent_FollowsStepEdges(t *testing.T) {
	wc := testWizardContext(t)
	events := map[models.WizardStep]WizardEvent{
		models.WizardStepChooseControl: {Type: WizardEventControl, ControlType: ControlCompleteness},
		models.WizardStepChooseProduct: {Type: WizardEventProduct, Product: "Fiber 100Mbps"},
		models.WizardStepConfirm:       {Type: WizardEventConfirm},
		models.WizardStepRunReport:     {Type: WizardEventExceptions},
	}
	state := models.WizardState{
		Step:        models.WizardStepChooseControl,
		ControlType: ControlCompleteness,
		Product:     "Fiber 100Mbps",
		Confirmed:   true,
		LastRunID:   "run-1",
	}

	for _, step := range models.ValidWizardSteps {
		state.Step = step
		want, hasNext := step.Next()

		event, ok := events[step]
		if !ok {
			assert.False(t, hasNext, "no forward event out of %s", step)
			continue
		}
		res := ApplyWizardEvent(state, event, wc)
		require.Nil(t, res.Error, "step %s", step)
		assert.Equal(t, want, res.State.Step)

		back := ApplyWizardEvent(res.State, WizardEvent{Type: WizardEventBack}, wc)
		require.Nil(t, back.Error)
		prev, _ := res.State.Step.Previous()
		assert.Equal(t, prev, back.State.Step)
		assert.True(t, res.State.Step.CanTransitionTo(back.State.Step))
	}
}

func TestCheckWizardRun(t *testing.T) {
	assert.NotNil(t, CheckWizardRun(models.NewWizardState()))
	assert.NotNil(t, CheckWizardRun(models.WizardState{Step: models.WizardStepRunReport}))
	assert.Nil(t, CheckWizardRun(models.WizardState{Step: models.WizardStepRunReport, Confirmed: true}))
}
