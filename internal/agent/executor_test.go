// File: internal/agent/executor_test.go
package agent_test

import (
	"context"
	encodingjson "encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
	"github.com/voyantlabs/pagepilot/internal/config"
)

func fastExecutorConfig() config.ExecutorConfig {
	return config.ExecutorConfig{
		MaxRetries:             2,
		RetryBaseDelay:         time.Millisecond,
		MaxConsecutiveFailures: 3,
		InterStepDelay:         0,
		CriticalTools:          []string{agent.ToolNavigate},
	}
}

// newExecutorFixture registers an always-succeeding tool, an always-failing
// tool, a critical navigate tool, and a flaky tool failing failFirst times.
func newExecutorFixture(t *testing.T, cfg config.ExecutorConfig, replanner agent.Replanner, failFirst int) (*agent.Executor, *int) {
	t.Helper()
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))

	attempts := 0
	plain := schemas.InputSchema{Type: "object"}
	reg.Register(schemas.ToolSchema{Name: "ok", Description: "always works", InputSchema: plain},
		func(context.Context, encodingjson.RawMessage) (string, error) { return "done", nil })
	reg.Register(schemas.ToolSchema{Name: "broken", Description: "always fails", InputSchema: plain},
		func(context.Context, encodingjson.RawMessage) (string, error) { return "", errors.New("boom") })
	reg.Register(schemas.ToolSchema{Name: agent.ToolNavigate, Description: "navigate", InputSchema: plain},
		func(context.Context, encodingjson.RawMessage) (string, error) { return "", errors.New("net down") })
	reg.Register(schemas.ToolSchema{Name: "flaky", Description: "fails then recovers", InputSchema: plain},
		func(context.Context, encodingjson.RawMessage) (string, error) {
			attempts++
			if attempts <= failFirst {
				return "", errors.New("transient")
			}
			return "recovered", nil
		})

	return agent.NewExecutor(zaptest.NewLogger(t), cfg, reg, replanner), &attempts
}

func step(n int, tool string) schemas.ExecutionStep {
	return schemas.ExecutionStep{StepNumber: n, ToolName: tool, Status: schemas.StepPending}
}

func TestExecuteEmptyPlan(t *testing.T) {
	exec, _ := newExecutorFixture(t, fastExecutorConfig(), nil, 0)
	_, err := exec.Execute(context.Background(), &schemas.AutomationPlan{Goal: "nothing"})
	assert.Error(t, err)
}

func TestExecuteAllStepsSucceed(t *testing.T) {
	exec, _ := newExecutorFixture(t, fastExecutorConfig(), nil, 0)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{step(1, "ok"), step(2, "ok")}}

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "All 2 steps completed", result.Summary)
	assert.Equal(t, schemas.PlanCompleted, plan.Status)
	assert.Equal(t, 2, plan.CompletedSteps)
	assert.Zero(t, plan.FailedSteps)
	for _, s := range plan.Steps {
		assert.Equal(t, schemas.StepSuccess, s.Status)
	}
	require.Len(t, result.ExecutionHistory, 2)
	assert.Equal(t, "done", result.ExecutionHistory[0].Output)
}

func TestExecuteRetriesThenSucceeds(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.MaxRetries = 3
	exec, attempts := newExecutorFixture(t, cfg, nil, 2)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{step(1, "flaky")}}

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, *attempts)
	assert.Equal(t, 2, plan.Steps[0].RetryCount)
	assert.Equal(t, schemas.StepSuccess, plan.Steps[0].Status)
}

func TestExecuteRetriesExhausted(t *testing.T) {
	exec, attempts := newExecutorFixture(t, fastExecutorConfig(), nil, 99)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{step(1, "flaky")}}

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, 2, *attempts, "MaxRetries bounds total attempts")
	assert.Contains(t, result.Error, "EXECUTION_FAILURE")
	assert.Contains(t, plan.Steps[0].Error, "after 2 attempts")
	// Ran to completion, so the plan is PlanCompleted; PlanFailed marks aborts.
	assert.Equal(t, schemas.PlanCompleted, plan.Status)
}

func TestExecuteCriticalStepAbortsPlan(t *testing.T) {
	exec, _ := newExecutorFixture(t, fastExecutorConfig(), nil, 0)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{
		step(1, "ok"),
		step(2, agent.ToolNavigate),
		step(3, "ok"),
		step(4, "ok"),
	}}

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "CRITICAL_STEP_FAILED")
	assert.Equal(t, schemas.PlanFailed, plan.Status)
	assert.Equal(t, schemas.StepSuccess, plan.Steps[0].Status)
	assert.Equal(t, schemas.StepFailed, plan.Steps[1].Status)
	assert.Equal(t, schemas.StepSkipped, plan.Steps[2].Status)
	assert.Equal(t, schemas.StepSkipped, plan.Steps[3].Status)
}

func TestExecuteConsecutiveFailuresAbortPlan(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.MaxConsecutiveFailures = 2
	exec, _ := newExecutorFixture(t, cfg, nil, 0)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{
		step(1, "broken"),
		step(2, "broken"),
		step(3, "ok"),
	}}

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "CONSECUTIVE_FAILURES")
	assert.Equal(t, schemas.PlanFailed, plan.Status)
	assert.Equal(t, schemas.StepSkipped, plan.Steps[2].Status)
}

// tailReplanner swaps the unexecuted tail for a single recovery step.
type tailReplanner struct {
	steps []schemas.ExecutionStep
	calls int
}

func (r *tailReplanner) Replan(context.Context, *schemas.AutomationPlan, *schemas.ExecutionStep) ([]schemas.ExecutionStep, error) {
	r.calls++
	return r.steps, nil
}

func TestExecuteReplanSplicesTail(t *testing.T) {
	replanner := &tailReplanner{steps: []schemas.ExecutionStep{{ToolName: "ok", Status: schemas.StepFailed, RetryCount: 7}}}
	exec, _ := newExecutorFixture(t, fastExecutorConfig(), replanner, 0)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{
		step(1, "ok"),
		step(2, "broken"),
		step(3, "ok"), // replaced by the replanned tail
	}}

	result, err := exec.Execute(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, 1, replanner.calls)

	require.Len(t, plan.Steps, 3)
	assert.Equal(t, 3, plan.Steps[2].StepNumber, "spliced step is renumbered")
	assert.Zero(t, plan.Steps[2].RetryCount, "spliced step state is reset")
	assert.Equal(t, schemas.StepSuccess, plan.Steps[2].Status)

	// The failed step still counts against the rollup.
	assert.False(t, result.Success)
	assert.Equal(t, schemas.PlanCompleted, plan.Status)
	assert.Equal(t, 2, plan.CompletedSteps)
	assert.Equal(t, 1, plan.FailedSteps)
}

func TestExecuteCancelledContext(t *testing.T) {
	exec, _ := newExecutorFixture(t, fastExecutorConfig(), nil, 0)
	plan := &schemas.AutomationPlan{Goal: "g", Steps: []schemas.ExecutionStep{step(1, "ok")}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := exec.Execute(ctx, plan)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "RUN_CANCELLED")
	assert.Equal(t, schemas.PlanCancelled, plan.Status)
}
