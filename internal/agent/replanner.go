// File: internal/agent/replanner.go
package agent

import (
	"context"
	"fmt"
	"strings"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
)

// LLMReplanner produces replacement steps after a retry-ceiling breach by
// asking the model to repair the plan. Each Replan call is a one-shot request
// seeded with the failure details and a fresh page snapshot; no conversation
// state is kept between calls.
type LLMReplanner struct {
	logger    *zap.Logger
	llmCfg    config.LLMConfig
	llm       schemas.LLMClient
	extractor schemas.ContextExtractor
	tools     *ToolRegistry
}

// NewLLMReplanner creates a replanner backed by the given model client. The
// extractor may be nil; replanning then proceeds without a page snapshot.
func NewLLMReplanner(logger *zap.Logger, llmCfg config.LLMConfig, llm schemas.LLMClient, extractor schemas.ContextExtractor, tools *ToolRegistry) *LLMReplanner {
	return &LLMReplanner{
		logger:    logger.Named("replanner"),
		llmCfg:    llmCfg,
		llm:       llm,
		extractor: extractor,
		tools:     tools,
	}
}

// replannedStep is the shape the model is instructed to emit, one element per
// replacement step.
type replannedStep struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters"`
	Reasoning  string         `json:"reasoning"`
}

// Replan asks the model for replacement steps. An empty slice with a nil
// error means the model saw no sensible recovery; the executor then continues
// with the original tail.
func (r *LLMReplanner) Replan(ctx context.Context, plan *schemas.AutomationPlan, failed *schemas.ExecutionStep) ([]schemas.ExecutionStep, error) {
	req := &schemas.MessageRequest{
		Model:  r.llmCfg.Model,
		System: []schemas.SystemBlock{{Text: replanSystemPrompt, Cache: true}},
		Messages: []schemas.Message{{
			Role:    schemas.RoleUser,
			Content: []schemas.ContentBlock{schemas.TextBlock(r.buildPrompt(ctx, plan, failed))},
		}},
		MaxTokens:   r.llmCfg.MaxTokens,
		Temperature: r.llmCfg.Temperature,
	}

	resp, err := r.llm.CreateMessage(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("replan model request failed: %w", err)
	}

	proposed, err := parseReplannedSteps(resp.Text())
	if err != nil {
		return nil, err
	}
	if len(proposed) == 0 {
		r.logger.Info("Model proposed no recovery steps", zap.Int("failed_step", failed.StepNumber))
		return nil, nil
	}

	steps := make([]schemas.ExecutionStep, 0, len(proposed))
	for _, p := range proposed {
		if err := r.tools.ValidateInput(p.ToolName, marshalParams(p.Parameters)); err != nil {
			return nil, fmt.Errorf("replanned step rejected: %w", err)
		}
		steps = append(steps, schemas.ExecutionStep{
			ToolName:   p.ToolName,
			Parameters: p.Parameters,
			Reasoning:  p.Reasoning,
			Status:     schemas.StepPending,
		})
	}
	r.logger.Info("Model proposed replacement steps",
		zap.Int("failed_step", failed.StepNumber),
		zap.Int("new_steps", len(steps)))
	return steps, nil
}

// buildPrompt assembles the failure report the model repairs from: goal,
// failed step, abandoned tail, available tools, and the current page.
func (r *LLMReplanner) buildPrompt(ctx context.Context, plan *schemas.AutomationPlan, failed *schemas.ExecutionStep) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\n\n", plan.Goal)
	fmt.Fprintf(&b, "Step %d failed after exhausting its retries.\n", failed.StepNumber)
	fmt.Fprintf(&b, "Tool: %s\nParameters: %s\nError: %s\n",
		failed.ToolName, string(marshalParams(failed.Parameters)), failed.Error)

	var tail []schemas.ExecutionStep
	for _, step := range plan.Steps {
		if step.StepNumber > failed.StepNumber {
			tail = append(tail, step)
		}
	}
	if len(tail) > 0 {
		b.WriteString("\nRemaining steps that will be discarded if you replan:\n")
		for _, step := range tail {
			fmt.Fprintf(&b, "  %d. %s %s\n", step.StepNumber, step.ToolName, string(marshalParams(step.Parameters)))
		}
	}

	b.WriteString("\nAvailable tools:\n")
	for _, schema := range r.tools.Schemas() {
		if IsTerminal(schema.Name) {
			continue
		}
		fmt.Fprintf(&b, "  - %s: %s\n", schema.Name, schema.Description)
	}

	if r.extractor != nil {
		if pc, err := r.extractor.GetContext(ctx, schemas.DefaultContextOptions()); err == nil {
			b.WriteString("\n")
			b.WriteString(FormatPageContext(pc))
		} else {
			r.logger.Warn("Page context unavailable for replanning", zap.Error(err))
		}
	}
	return b.String()
}

// parseReplannedSteps extracts the JSON array from the model's reply,
// tolerating surrounding prose and Markdown code fences.
func parseReplannedSteps(text string) ([]replannedStep, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("replan response carries no JSON array")
	}
	var steps []replannedStep
	if err := json.Unmarshal([]byte(text[start:end+1]), &steps); err != nil {
		return nil, fmt.Errorf("failed to decode replanned steps: %w", err)
	}
	return steps, nil
}
