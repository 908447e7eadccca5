// File: api/schemas/agent.go
package schemas

import (
	"encoding/json"
	"time"
)

// StepStatus is the lifecycle of one ExecutionStep.
type StepStatus string

const (
	StepPending StepStatus = "pending"
	StepRunning StepStatus = "running"
	StepSuccess StepStatus = "success"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// ExecutionStep is one entry of a static, pre-planned automation.
type ExecutionStep struct {
	StepNumber int            `json:"stepNumber"`
	Reasoning  string         `json:"reasoning,omitempty"`
	ToolName   string         `json:"toolName"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Status     StepStatus     `json:"status"`
	RetryCount int            `json:"retryCount"`
	Error      string         `json:"error,omitempty"`
}

// PlanStatus is the lifecycle of an AutomationPlan.
type PlanStatus string

const (
	PlanPending   PlanStatus = "pending"
	PlanRunning   PlanStatus = "running"
	PlanCompleted PlanStatus = "completed"
	PlanFailed    PlanStatus = "failed"
	PlanCancelled PlanStatus = "cancelled"
)

// AutomationPlan aggregates an ordered step sequence with rollup counters.
type AutomationPlan struct {
	Goal           string          `json:"goal"`
	Steps          []ExecutionStep `json:"steps"`
	CompletedSteps int             `json:"completedSteps"`
	FailedSteps    int             `json:"failedSteps"`
	Status         PlanStatus      `json:"status"`
}

// AutomationRequest describes one agent run: a natural-language goal plus an
// optional recorded demonstration used as context.
type AutomationRequest struct {
	Goal        string `json:"goal"`
	RecordingID string `json:"recordingId,omitempty"`
	StartURL    string `json:"startUrl,omitempty"`

	// Zero values fall back to configured defaults.
	MaxIterations        int `json:"maxIterations,omitempty"`
	MaxConsecutiveErrors int `json:"maxConsecutiveErrors,omitempty"`
}

// ExecutedStep is one append-only audit entry of a tool the agent executed.
type ExecutedStep struct {
	Iteration int             `json:"iteration"`
	ToolName  string          `json:"toolName"`
	Input     json.RawMessage `json:"input,omitempty"`
	Success   bool            `json:"success"`
	Output    string          `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AutomationResult is the terminal outcome of an agent run. Partial progress
// (ExecutionHistory) is populated on failure as well as success, and Error is
// always non-empty when Success is false.
type AutomationResult struct {
	Success          bool           `json:"success"`
	Summary          string         `json:"summary,omitempty"`
	Error            string         `json:"error,omitempty"`
	Plan             *AutomationPlan `json:"plan,omitempty"`
	ExecutionHistory []ExecutedStep `json:"executionHistory"`
	Iterations       int            `json:"iterations"`
	Usage            Usage          `json:"usage"`
	EstimatedCost    float64        `json:"estimatedCost"`
}
