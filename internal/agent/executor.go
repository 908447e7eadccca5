// File: internal/agent/executor.go
package agent

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
)

// Replanner produces replacement steps after a step failure. The returned
// steps are spliced over the unexecuted tail of the plan.
type Replanner interface {
	Replan(ctx context.Context, plan *schemas.AutomationPlan, failed *schemas.ExecutionStep) ([]schemas.ExecutionStep, error)
}

// Executor runs a static, pre-planned step sequence with per-step retry,
// critical-step abort, and optional replanning. It is the non-conversational
// counterpart to the Orchestrator: no model call is needed once the plan
// exists.
type Executor struct {
	logger    *zap.Logger
	cfg       config.ExecutorConfig
	tools     *ToolRegistry
	replanner Replanner

	critical map[string]bool
}

// NewExecutor creates an executor. replanner may be nil to disable replanning.
func NewExecutor(logger *zap.Logger, cfg config.ExecutorConfig, tools *ToolRegistry, replanner Replanner) *Executor {
	critical := make(map[string]bool, len(cfg.CriticalTools))
	for _, name := range cfg.CriticalTools {
		critical[name] = true
	}
	return &Executor{
		logger:    logger.Named("executor"),
		cfg:       cfg,
		tools:     tools,
		replanner: replanner,
		critical:  critical,
	}
}

// Execute runs the plan to completion or abort. The plan is mutated in place:
// step statuses, retry counts and rollup counters reflect the outcome.
func (e *Executor) Execute(ctx context.Context, plan *schemas.AutomationPlan) (*schemas.AutomationResult, error) {
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}

	plan.Status = schemas.PlanRunning
	result := &schemas.AutomationResult{Plan: plan, ExecutionHistory: []schemas.ExecutedStep{}}
	consecutiveFailures := 0

	e.logger.Info("Plan execution started",
		zap.String("goal", plan.Goal),
		zap.Int("steps", len(plan.Steps)))

	for i := 0; i < len(plan.Steps); i++ {
		select {
		case <-ctx.Done():
			plan.Status = schemas.PlanCancelled
			result.Error = fmt.Sprintf("[%s] plan cancelled at step %d", ErrCodeRunCancelled, i+1)
			return result, nil
		default:
		}

		step := &plan.Steps[i]
		step.Status = schemas.StepRunning

		output, err := e.executeStepWithRetry(ctx, step)
		executed := schemas.ExecutedStep{
			Iteration: step.StepNumber,
			ToolName:  step.ToolName,
			Input:     marshalParams(step.Parameters),
			Timestamp: time.Now().UTC(),
		}

		if err == nil {
			step.Status = schemas.StepSuccess
			plan.CompletedSteps++
			consecutiveFailures = 0
			executed.Success = true
			executed.Output = output
			result.ExecutionHistory = append(result.ExecutionHistory, executed)
		} else {
			step.Status = schemas.StepFailed
			step.Error = err.Error()
			plan.FailedSteps++
			consecutiveFailures++
			executed.Error = err.Error()
			result.ExecutionHistory = append(result.ExecutionHistory, executed)

			if e.critical[step.ToolName] {
				plan.Status = schemas.PlanFailed
				e.skipRemaining(plan, i+1)
				result.Error = fmt.Sprintf("[%s] critical step %d (%s) failed: %v",
					ErrCodeCriticalStepFailed, step.StepNumber, step.ToolName, err)
				e.logger.Error("Critical step failed, aborting plan",
					zap.Int("step", step.StepNumber),
					zap.String("tool", step.ToolName),
					zap.Error(err))
				return result, nil
			}

			if consecutiveFailures >= e.cfg.MaxConsecutiveFailures {
				plan.Status = schemas.PlanFailed
				e.skipRemaining(plan, i+1)
				result.Error = fmt.Sprintf("[%s] aborted after %d consecutive step failures",
					ErrCodeConsecutiveFailures, consecutiveFailures)
				e.logger.Error("Too many consecutive step failures, aborting plan",
					zap.Int("consecutive_failures", consecutiveFailures))
				return result, nil
			}

			if e.replanner != nil {
				if replanned := e.tryReplan(ctx, plan, i); replanned {
					consecutiveFailures = 0
				}
			}
		}

		// Pause between steps so page state settles.
		if i < len(plan.Steps)-1 && e.cfg.InterStepDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.cfg.InterStepDelay):
			}
		}
	}

	if plan.FailedSteps == 0 {
		plan.Status = schemas.PlanCompleted
		result.Success = true
		result.Summary = fmt.Sprintf("All %d steps completed", plan.CompletedSteps)
	} else {
		// A plan that ran every step terminates as PlanCompleted even with
		// failures; PlanFailed is reserved for aborts. Success carries the
		// partial-failure signal.
		plan.Status = schemas.PlanCompleted
		result.Success = false
		result.Error = fmt.Sprintf("[%s] %d of %d steps failed",
			ErrCodeExecutionFailure, plan.FailedSteps, len(plan.Steps))
	}

	e.logger.Info("Plan execution finished",
		zap.String("status", string(plan.Status)),
		zap.Int("completed", plan.CompletedSteps),
		zap.Int("failed", plan.FailedSteps))
	return result, nil
}

// executeStepWithRetry attempts the step up to MaxRetries times. The first
// attempt runs immediately; attempt k waits base * 2^(k-2) beforehand.
func (e *Executor) executeStepWithRetry(ctx context.Context, step *schemas.ExecutionStep) (string, error) {
	maxAttempts := e.cfg.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	input := marshalParams(step.Parameters)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			delay := retryDelay(e.cfg.RetryBaseDelay, attempt)
			e.logger.Debug("Retrying step",
				zap.Int("step", step.StepNumber),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
			step.RetryCount++
		}

		toolResult := e.tools.Dispatch(ctx, schemas.ToolUse{
			ID:    fmt.Sprintf("step-%d-attempt-%d", step.StepNumber, attempt),
			Name:  step.ToolName,
			Input: input,
		})
		if !toolResult.IsError {
			return toolResult.Content, nil
		}
		lastErr = fmt.Errorf("%s", toolResult.Content)
	}
	return "", fmt.Errorf("step failed after %d attempts: %w", maxAttempts, lastErr)
}

// retryDelay computes the exponential backoff for attempt k (k >= 2):
// base * 2^(k-2), so the first retry waits exactly base.
func retryDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	return base * (1 << (attempt - 2))
}

// tryReplan asks the replanner for replacement steps and splices them over
// the unexecuted tail. Returns false when replanning yields nothing.
func (e *Executor) tryReplan(ctx context.Context, plan *schemas.AutomationPlan, failedIdx int) bool {
	failed := &plan.Steps[failedIdx]
	newSteps, err := e.replanner.Replan(ctx, plan, failed)
	if err != nil {
		e.logger.Warn("Replanning failed, continuing with original plan",
			zap.Int("failed_step", failed.StepNumber),
			zap.Error(err))
		return false
	}
	if len(newSteps) == 0 {
		return false
	}

	plan.Steps = append(plan.Steps[:failedIdx+1], newSteps...)
	for i := failedIdx + 1; i < len(plan.Steps); i++ {
		plan.Steps[i].StepNumber = i + 1
		plan.Steps[i].Status = schemas.StepPending
		plan.Steps[i].RetryCount = 0
		plan.Steps[i].Error = ""
	}
	e.logger.Info("Plan tail replaced after failure",
		zap.Int("failed_step", failed.StepNumber),
		zap.Int("new_steps", len(newSteps)))
	return true
}

func (e *Executor) skipRemaining(plan *schemas.AutomationPlan, from int) {
	for i := from; i < len(plan.Steps); i++ {
		plan.Steps[i].Status = schemas.StepSkipped
	}
}

func marshalParams(params map[string]any) encodingjson.RawMessage {
	if len(params) == 0 {
		return encodingjson.RawMessage("{}")
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return encodingjson.RawMessage("{}")
	}
	return raw
}
