// File: internal/agent/replanner_test.go
package agent_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
	"github.com/voyantlabs/pagepilot/internal/config"
)

func newTestReplanner(t *testing.T, llm *scriptedLLM) *agent.LLMReplanner {
	t.Helper()
	logger := zaptest.NewLogger(t)
	reg := agent.NewToolRegistry(logger)
	reg.Register(schemas.ToolSchema{
		Name:        agent.ToolClick,
		Description: "click an element",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string"},
			},
			Required: []string{"selector"},
		},
	}, okHandler("clicked"))
	return agent.NewLLMReplanner(logger, config.NewDefaultConfig().LLM, llm, &fakeExtractor{}, reg)
}

func failedPlan() (*schemas.AutomationPlan, *schemas.ExecutionStep) {
	plan := &schemas.AutomationPlan{
		Goal: "check out the cart",
		Steps: []schemas.ExecutionStep{
			{StepNumber: 1, ToolName: agent.ToolNavigate, Status: schemas.StepSuccess},
			{StepNumber: 2, ToolName: agent.ToolClick, Parameters: map[string]any{"selector": "#old"},
				Status: schemas.StepFailed, Error: "element not found"},
			{StepNumber: 3, ToolName: agent.ToolClick, Parameters: map[string]any{"selector": "#pay"},
				Status: schemas.StepPending},
		},
	}
	return plan, &plan.Steps[1]
}

func textResponse(text string) *schemas.MessageResponse {
	return &schemas.MessageResponse{Content: []schemas.ContentBlock{schemas.TextBlock(text)}}
}

func TestReplanParsesAndValidatesSteps(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		textResponse("Here is the repaired plan:\n```json\n[" +
			`{"tool_name":"click","parameters":{"selector":"#checkout"},"reasoning":"the old selector moved"},` +
			`{"tool_name":"click","parameters":{"selector":"#pay"},"reasoning":"resume the original tail"}` +
			"]\n```"),
	}}
	replanner := newTestReplanner(t, llm)
	plan, failed := failedPlan()

	steps, err := replanner.Replan(context.Background(), plan, failed)
	require.NoError(t, err)
	require.Len(t, steps, 2)

	assert.Equal(t, agent.ToolClick, steps[0].ToolName)
	assert.Equal(t, "#checkout", steps[0].Parameters["selector"])
	assert.Equal(t, schemas.StepPending, steps[0].Status)
	assert.Equal(t, "resume the original tail", steps[1].Reasoning)

	// The one-shot request carries the failure report and the page snapshot.
	require.Len(t, llm.requests, 1)
	req := llm.requests[0]
	require.Len(t, req.System, 1)
	assert.True(t, req.System[0].Cache)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content[0].Text
	assert.Contains(t, prompt, "element not found")
	assert.Contains(t, prompt, "check out the cart")
	assert.Contains(t, prompt, "https://example.com")
}

func TestReplanEmptyArrayMeansNoRecovery(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{textResponse("[]")}}
	replanner := newTestReplanner(t, llm)
	plan, failed := failedPlan()

	steps, err := replanner.Replan(context.Background(), plan, failed)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestReplanRejectsUnknownTool(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		textResponse(`[{"tool_name":"teleport","parameters":{},"reasoning":"?"}]`),
	}}
	replanner := newTestReplanner(t, llm)
	plan, failed := failedPlan()

	_, err := replanner.Replan(context.Background(), plan, failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replanned step rejected")
}

func TestReplanRejectsMissingRequiredField(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		textResponse(`[{"tool_name":"click","parameters":{},"reasoning":"no selector"}]`),
	}}
	replanner := newTestReplanner(t, llm)
	plan, failed := failedPlan()

	_, err := replanner.Replan(context.Background(), plan, failed)
	require.Error(t, err)
}

func TestReplanProseWithoutJSONIsAnError(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		textResponse("I cannot repair this plan."),
	}}
	replanner := newTestReplanner(t, llm)
	plan, failed := failedPlan()

	_, err := replanner.Replan(context.Background(), plan, failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no JSON array")
}

func TestReplanModelFailure(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("api down")}
	replanner := newTestReplanner(t, llm)
	plan, failed := failedPlan()

	_, err := replanner.Replan(context.Background(), plan, failed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replan model request failed")
}
