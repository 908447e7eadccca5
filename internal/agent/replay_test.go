// File: internal/agent/replay_test.go
package agent_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
)

func recordedSession() *schemas.RecordingSession {
	target := &schemas.ElementTarget{
		TagName: "button",
		Text:    "Add to cart",
		Selectors: []schemas.SelectorCandidate{
			{Strategy: schemas.StrategyXPath, Selector: "//button[1]", Score: 99},
			{Strategy: schemas.StrategyCSS, Selector: ".btn", Score: 70},
			{Strategy: schemas.StrategyID, Selector: "#add", Score: 95},
			{Strategy: schemas.StrategyTextContains, Selector: "Add to cart", Score: 98},
		},
	}
	field := &schemas.ElementTarget{
		TagName: "input",
		Selectors: []schemas.SelectorCandidate{
			{Strategy: schemas.StrategyCSS, Selector: "input[name=qty]", Score: 80},
		},
	}
	return &schemas.RecordingSession{
		Name: "checkout",
		Actions: []schemas.RecordedAction{
			{Type: schemas.ActionNavigate, Value: schemas.ActionValue{Kind: schemas.ValueURL, URL: "https://shop.example"}},
			{Type: schemas.ActionClick, Target: target},
			{Type: schemas.ActionInput, Target: field, Value: schemas.ActionValue{Kind: schemas.ValueText, Text: "2"}},
			{Type: schemas.ActionSelect, Target: field, Value: schemas.ActionValue{Kind: schemas.ValueOption, Option: "express"}},
			{Type: schemas.ActionCheckbox, Target: field, Value: schemas.ActionValue{Kind: schemas.ValueChecked, Checked: true}},
			{Type: schemas.ActionRadio, Target: field},
			{Type: schemas.ActionKeypress, Value: schemas.ActionValue{Kind: schemas.ValueKey, Key: "Enter"}},
			{Type: schemas.ActionTabSwitch, Value: schemas.ActionValue{Kind: schemas.ValueTabSwitch, FromTabID: 1, ToTabID: 2}},
			{Type: schemas.ActionFileUpload, Value: schemas.ActionValue{Kind: schemas.ValueFiles, Files: []string{"a.pdf"}}},
		},
	}
}

func TestPlanFromRecordingMapsActions(t *testing.T) {
	plan := agent.PlanFromRecording(recordedSession())

	assert.Equal(t, `Replay recording "checkout"`, plan.Goal)
	assert.Equal(t, schemas.PlanPending, plan.Status)
	require.Len(t, plan.Steps, 9, "every recorded action keeps its slot")

	assert.Equal(t, agent.ToolNavigate, plan.Steps[0].ToolName)
	assert.Empty(t, cmp.Diff(map[string]any{"url": "https://shop.example"}, plan.Steps[0].Parameters))

	assert.Equal(t, agent.ToolClick, plan.Steps[1].ToolName)
	assert.Equal(t, "Add to cart", plan.Steps[1].Parameters["text"])

	assert.Equal(t, agent.ToolTypeText, plan.Steps[2].ToolName)
	assert.Empty(t, cmp.Diff(map[string]any{
		"selector": "input[name=qty]",
		"text":     "2",
		"clear":    true,
	}, plan.Steps[2].Parameters))

	assert.Equal(t, agent.ToolSelectOption, plan.Steps[3].ToolName)
	assert.Equal(t, "express", plan.Steps[3].Parameters["value"])

	assert.Equal(t, agent.ToolToggleCheckbox, plan.Steps[4].ToolName)
	assert.Equal(t, true, plan.Steps[4].Parameters["checked"])

	assert.Equal(t, agent.ToolSelectRadio, plan.Steps[5].ToolName)

	assert.Equal(t, agent.ToolPressKey, plan.Steps[6].ToolName)
	assert.Equal(t, "Enter", plan.Steps[6].Parameters["key"])

	// Step numbering mirrors the recording even across skipped actions.
	for i, s := range plan.Steps {
		assert.Equal(t, i+1, s.StepNumber)
	}
}

func TestPlanFromRecordingSkipsNonReplayableActions(t *testing.T) {
	plan := agent.PlanFromRecording(recordedSession())

	for _, idx := range []int{7, 8} {
		step := plan.Steps[idx]
		assert.Equal(t, schemas.StepSkipped, step.Status)
		assert.Contains(t, step.Error, "not replayable")
	}
}

func TestPlanFromRecordingSelectorChoice(t *testing.T) {
	plan := agent.PlanFromRecording(recordedSession())

	// The xpath (99) and text-contains (98) candidates are not valid CSS and
	// must lose to the best CSS-usable candidate.
	assert.Equal(t, "#add", plan.Steps[1].Parameters["selector"])
	assert.Equal(t, "input[name=qty]", plan.Steps[2].Parameters["selector"])
}

func TestPlanFromRecordingInputWithoutSelectorSkipped(t *testing.T) {
	session := &schemas.RecordingSession{
		Name: "broken",
		Actions: []schemas.RecordedAction{
			{Type: schemas.ActionInput, Value: schemas.ActionValue{Kind: schemas.ValueText, Text: "x"}},
		},
	}
	plan := agent.PlanFromRecording(session)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, schemas.StepSkipped, plan.Steps[0].Status)
}
