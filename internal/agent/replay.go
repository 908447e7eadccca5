// File: internal/agent/replay.go
package agent

import (
	"fmt"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// PlanFromRecording compiles a recorded session into a static execution plan
// for the Executor. Actions with no tool equivalent (tab switches, file
// uploads) compile to skipped steps so the step numbering still mirrors the
// recording.
func PlanFromRecording(session *schemas.RecordingSession) *schemas.AutomationPlan {
	plan := &schemas.AutomationPlan{
		Goal:   fmt.Sprintf("Replay recording %q", session.Name),
		Status: schemas.PlanPending,
	}

	for i, action := range session.Actions {
		step := schemas.ExecutionStep{
			StepNumber: i + 1,
			Reasoning:  describeAction(action),
			Status:     schemas.StepPending,
		}

		toolName, params, ok := compileAction(action)
		if !ok {
			step.ToolName = string(action.Type)
			step.Status = schemas.StepSkipped
			step.Error = fmt.Sprintf("action type %s is not replayable", action.Type)
			plan.Steps = append(plan.Steps, step)
			continue
		}
		step.ToolName = toolName
		step.Parameters = params
		plan.Steps = append(plan.Steps, step)
	}
	return plan
}

// compileAction maps one recorded action onto a tool invocation.
func compileAction(action schemas.RecordedAction) (string, map[string]any, bool) {
	selector := bestSelector(action.Target)

	switch action.Type {
	case schemas.ActionNavigate:
		return ToolNavigate, map[string]any{"url": action.Value.URL}, true

	case schemas.ActionClick, schemas.ActionSubmit:
		params := map[string]any{}
		if selector != "" {
			params["selector"] = selector
		}
		if action.Target != nil {
			if action.Target.Text != "" {
				params["text"] = action.Target.Text
			}
			if action.Target.TagName != "" {
				params["tag_name"] = action.Target.TagName
			}
			if action.Target.Role != "" {
				params["role"] = action.Target.Role
			}
			if action.Target.AriaLabel != "" {
				params["aria_label"] = action.Target.AriaLabel
			}
		}
		if len(params) == 0 {
			return "", nil, false
		}
		return ToolClick, params, true

	case schemas.ActionInput:
		if selector == "" {
			return "", nil, false
		}
		return ToolTypeText, map[string]any{
			"selector": selector,
			"text":     action.Value.Text,
			"clear":    true,
		}, true

	case schemas.ActionSelect:
		if selector == "" {
			return "", nil, false
		}
		return ToolSelectOption, map[string]any{
			"selector": selector,
			"value":    action.Value.Option,
		}, true

	case schemas.ActionCheckbox:
		if selector == "" {
			return "", nil, false
		}
		return ToolToggleCheckbox, map[string]any{
			"selector": selector,
			"checked":  action.Value.Checked,
		}, true

	case schemas.ActionRadio:
		if selector == "" {
			return "", nil, false
		}
		return ToolSelectRadio, map[string]any{"selector": selector}, true

	case schemas.ActionKeypress:
		return ToolPressKey, map[string]any{"key": action.Value.Key}, true

	default:
		// tab-switch, file-upload: no driver equivalent.
		return "", nil, false
	}
}

// bestSelector picks the highest-scored CSS-usable selector candidate of the
// target. XPath and text-contains candidates are not valid CSS, so they are
// skipped; the click tool's descriptive fallback covers those cases.
func bestSelector(target *schemas.ElementTarget) string {
	if target == nil {
		return ""
	}
	var best string
	bestScore := -1
	for _, cand := range target.Selectors {
		if cand.Strategy == schemas.StrategyXPath || cand.Strategy == schemas.StrategyTextContains {
			continue
		}
		if cand.Selector != "" && cand.Score > bestScore {
			best = cand.Selector
			bestScore = cand.Score
		}
	}
	return best
}
