// File: internal/agent/orchestrator.go
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
)

// Orchestrator drives the iterative think-act-observe loop: it sends the
// conversation to the model, executes the tools the model requests, folds the
// observations back in, and repeats until a terminal tool or a budget stops
// it. At most one run is active at a time.
type Orchestrator struct {
	logger    *zap.Logger
	cfg       config.AgentConfig
	llmCfg    config.LLMConfig
	llm       schemas.LLMClient
	extractor schemas.ContextExtractor
	driver    schemas.PageDriver
	store     schemas.SessionStore
	tools     *ToolRegistry

	runGate *semaphore.Weighted

	mu        sync.Mutex
	cancelRun context.CancelFunc
}

// NewOrchestrator assembles the agent. The store may be nil when recorded
// demonstrations are not used.
func NewOrchestrator(
	logger *zap.Logger,
	cfg config.AgentConfig,
	llmCfg config.LLMConfig,
	llm schemas.LLMClient,
	driver schemas.PageDriver,
	extractor schemas.ContextExtractor,
	store schemas.SessionStore,
	tools *ToolRegistry,
) *Orchestrator {
	return &Orchestrator{
		logger:    logger.Named("orchestrator"),
		cfg:       cfg,
		llmCfg:    llmCfg,
		llm:       llm,
		driver:    driver,
		extractor: extractor,
		store:     store,
		tools:     tools,
		runGate:   semaphore.NewWeighted(1),
	}
}

// Cancel aborts the active run, if any. The run returns a failed result with
// partial progress preserved.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancelRun != nil {
		o.cancelRun()
	}
}

// Run executes one automation to completion. It returns ErrRunInProgress
// without blocking when another run holds the gate.
func (o *Orchestrator) Run(ctx context.Context, req *schemas.AutomationRequest) (*schemas.AutomationResult, error) {
	if !o.runGate.TryAcquire(1) {
		return nil, ErrRunInProgress
	}
	defer o.runGate.Release(1)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.mu.Lock()
	o.cancelRun = cancel
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.cancelRun = nil
		o.mu.Unlock()
	}()

	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = o.cfg.MaxIterations
	}
	maxConsecutiveErrors := req.MaxConsecutiveErrors
	if maxConsecutiveErrors <= 0 {
		maxConsecutiveErrors = o.cfg.MaxConsecutiveErrors
	}

	o.logger.Info("Automation run started",
		zap.String("goal", req.Goal),
		zap.String("recording_id", req.RecordingID),
		zap.Int("max_iterations", maxIterations))

	conv := NewConversation(o.cfg, o.logger)
	result := &schemas.AutomationResult{ExecutionHistory: []schemas.ExecutedStep{}}

	if req.RecordingID != "" {
		if err := o.loadRecording(runCtx, conv, req.RecordingID); err != nil {
			return o.fail(result, conv, ErrCodeRecordingUnavailable, err.Error()), nil
		}
	}

	if req.StartURL != "" {
		if err := o.driver.Navigate(runCtx, req.StartURL, true); err != nil {
			return o.fail(result, conv, ErrCodeNavigationError,
				fmt.Sprintf("failed to open start URL %s: %v", req.StartURL, err)), nil
		}
	}

	o.refreshPageContext(runCtx, conv)
	conv.AddUserMessage(fmt.Sprintf("Goal: %s", req.Goal))

	consecutiveErrors := 0
	var recentTools []string

	for iteration := 1; iteration <= maxIterations; iteration++ {
		result.Iterations = iteration

		// Cooperative cancellation check at the top of every iteration.
		select {
		case <-runCtx.Done():
			return o.fail(result, conv, ErrCodeRunCancelled, "run cancelled"), nil
		default:
		}

		resp, err := o.llm.CreateMessage(runCtx, conv.BuildRequest(o.llmCfg, o.tools.Schemas()))
		if err != nil {
			if runCtx.Err() != nil {
				return o.fail(result, conv, ErrCodeRunCancelled, "run cancelled"), nil
			}
			return o.fail(result, conv, ErrCodeModelRequestFailed,
				fmt.Sprintf("model request failed: %v", err)), nil
		}
		conv.RecordUsage(resp.Usage)
		conv.AddAssistantMessage(resp.Content)

		if thought := resp.Text(); thought != "" {
			o.logger.Debug("Agent reasoning", zap.Int("iteration", iteration), zap.String("thought", thought))
		}

		toolUses := resp.ToolUses()

		// Terminal tools short-circuit before anything else is dispatched, so
		// a response pairing task_complete with further actions stops cleanly.
		if done, terminalResult := o.checkTerminal(result, conv, iteration, toolUses); done {
			return terminalResult, nil
		}

		if len(toolUses) == 0 {
			conv.AddUserMessage("No tool was called. Use a tool to make progress, or call task_complete / task_failed to end the run.")
			continue
		}

		results := make([]schemas.ToolResult, 0, len(toolUses))
		allFailed := true
		for _, use := range toolUses {
			toolResult := o.tools.Dispatch(runCtx, use)
			results = append(results, toolResult)

			step := schemas.ExecutedStep{
				Iteration: iteration,
				ToolName:  use.Name,
				Input:     use.Input,
				Success:   !toolResult.IsError,
				Timestamp: time.Now().UTC(),
			}
			if toolResult.IsError {
				step.Error = toolResult.Content
			} else {
				step.Output = toolResult.Content
				allFailed = false
			}
			result.ExecutionHistory = append(result.ExecutionHistory, step)
		}
		conv.AddToolResults(results)

		if allFailed {
			consecutiveErrors++
			if consecutiveErrors >= maxConsecutiveErrors {
				return o.fail(result, conv, ErrCodeConsecutiveFailures,
					fmt.Sprintf("aborted after %d consecutive failed iterations", consecutiveErrors)), nil
			}
		} else {
			consecutiveErrors = 0
		}

		for _, use := range toolUses {
			recentTools = append(recentTools, use.Name)
		}
		if o.isLooping(recentTools) {
			o.logger.Warn("Loop detected, nudging the model",
				zap.String("tool", recentTools[len(recentTools)-1]))
			conv.AddUserMessage(loopNudge)
			recentTools = recentTools[:0]
		}

		o.refreshPageContext(runCtx, conv)
	}

	return o.fail(result, conv, ErrCodeMaxIterations,
		fmt.Sprintf("goal not reached within %d iterations", maxIterations)), nil
}

// checkTerminal scans the response's tool calls for task_complete or
// task_failed and finalizes the result when found.
func (o *Orchestrator) checkTerminal(result *schemas.AutomationResult, conv *Conversation, iteration int, uses []schemas.ToolUse) (bool, *schemas.AutomationResult) {
	for _, use := range uses {
		if !IsTerminal(use.Name) {
			continue
		}

		var params struct {
			Summary string `json:"summary"`
			Reason  string `json:"reason"`
		}
		_ = json.Unmarshal(use.Input, &params)

		result.ExecutionHistory = append(result.ExecutionHistory, schemas.ExecutedStep{
			Iteration: iteration,
			ToolName:  use.Name,
			Input:     use.Input,
			Success:   use.Name == ToolTaskComplete,
			Timestamp: time.Now().UTC(),
		})
		result.Usage = conv.Usage()
		result.EstimatedCost = conv.EstimatedCost()

		if use.Name == ToolTaskComplete {
			result.Success = true
			result.Summary = params.Summary
			o.logger.Info("Automation completed",
				zap.Int("iterations", result.Iterations),
				zap.Float64("estimated_cost_usd", result.EstimatedCost))
		} else {
			result.Success = false
			result.Error = params.Reason
			if result.Error == "" {
				result.Error = "the agent declared the task failed"
			}
			o.logger.Warn("Automation declared failed",
				zap.Int("iterations", result.Iterations),
				zap.String("reason", result.Error))
		}
		return true, result
	}
	return false, nil
}

// isLooping reports whether the last LoopDetectionWindow dispatched tool
// names are identical.
func (o *Orchestrator) isLooping(recent []string) bool {
	window := o.cfg.LoopDetectionWindow
	if window <= 0 || len(recent) < window {
		return false
	}
	last := recent[len(recent)-1]
	for _, name := range recent[len(recent)-window:] {
		if name != last {
			return false
		}
	}
	return true
}

func (o *Orchestrator) loadRecording(ctx context.Context, conv *Conversation, id string) error {
	if o.store == nil {
		return fmt.Errorf("recording %s requested but no session store is configured", id)
	}
	session, err := o.store.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load recording %s: %w", id, err)
	}
	text := FormatRecordingContext(session)
	conv.SetRecordingContext(text)
	o.logger.Info("Recording context loaded",
		zap.String("recording_id", id),
		zap.Int("actions", session.ActionCount),
		zap.Int("estimated_tokens", conv.EstimateTokens(text)))
	return nil
}

// refreshPageContext replaces the page snapshot block after every iteration.
// Extraction failures degrade to the previous snapshot; once that snapshot
// outlives the cache TTL, the model is told not to trust it.
func (o *Orchestrator) refreshPageContext(ctx context.Context, conv *Conversation) {
	pc, err := o.extractor.GetContext(ctx, schemas.DefaultContextOptions())
	if err != nil {
		if conv.ContextStale(o.cfg.CacheTTL) {
			o.logger.Warn("Page context refresh failed and cached snapshot is past its TTL",
				zap.Duration("cache_ttl", o.cfg.CacheTTL), zap.Error(err))
			conv.AddUserMessage(staleContextNote)
		} else {
			o.logger.Warn("Page context refresh failed, keeping previous snapshot", zap.Error(err))
		}
		return
	}
	conv.SetPageContext(FormatPageContext(pc))
}

func (o *Orchestrator) fail(result *schemas.AutomationResult, conv *Conversation, code ErrorCode, message string) *schemas.AutomationResult {
	result.Success = false
	result.Error = fmt.Sprintf("[%s] %s", code, message)
	result.Usage = conv.Usage()
	result.EstimatedCost = conv.EstimatedCost()
	o.logger.Error("Automation run failed",
		zap.String("code", string(code)),
		zap.String("error", message),
		zap.Int("iterations", result.Iterations))
	return result
}
