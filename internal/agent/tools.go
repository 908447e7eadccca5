// File: internal/agent/tools.go
package agent

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// Names of the tools exposed to the model. The two terminal tools end the run
// and are checked before anything else in a response is dispatched.
const (
	ToolNavigate       = "navigate"
	ToolClick          = "click"
	ToolTypeText       = "type_text"
	ToolSelectOption   = "select_option"
	ToolToggleCheckbox = "toggle_checkbox"
	ToolSelectRadio    = "select_radio"
	ToolPressKey       = "press_key"
	ToolScroll         = "scroll"
	ToolWait           = "wait"
	ToolWaitForElement = "wait_for_element"
	ToolGetText        = "get_text"
	ToolGetPageContext = "get_page_context"
	ToolTaskComplete   = "task_complete"
	ToolTaskFailed     = "task_failed"
)

// ToolHandler executes one tool invocation and returns the observation text
// handed back to the model.
type ToolHandler func(ctx context.Context, input encodingjson.RawMessage) (string, error)

type registeredTool struct {
	schema  schemas.ToolSchema
	handler ToolHandler
}

// ToolRegistry owns the tool catalogue: schemas for the model, input
// validation, and dispatch to handlers.
type ToolRegistry struct {
	logger *zap.Logger
	tools  map[string]registeredTool
	order  []string
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry(logger *zap.Logger) *ToolRegistry {
	return &ToolRegistry{
		logger: logger.Named("tools"),
		tools:  make(map[string]registeredTool),
	}
}

// Register adds a tool. Re-registering a name replaces the handler, keeping
// catalogue order stable.
func (r *ToolRegistry) Register(schema schemas.ToolSchema, handler ToolHandler) {
	if _, exists := r.tools[schema.Name]; !exists {
		r.order = append(r.order, schema.Name)
	}
	r.tools[schema.Name] = registeredTool{schema: schema, handler: handler}
}

// Schemas lists the catalogue in registration order.
func (r *ToolRegistry) Schemas() []schemas.ToolSchema {
	out := make([]schemas.ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].schema)
	}
	return out
}

// ValidateInput checks a tool invocation against its declared schema: the
// tool must exist, required fields must be present, and enum fields must hold
// an allowed value.
func (r *ToolRegistry) ValidateInput(name string, input encodingjson.RawMessage) error {
	tool, ok := r.tools[name]
	if !ok {
		return NewToolError(ErrCodeUnknownTool, fmt.Sprintf("unknown tool %q", name), nil)
	}

	var fields map[string]any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &fields); err != nil {
			return NewToolError(ErrCodeInvalidParameters, "tool input is not a JSON object", err)
		}
	}

	for _, required := range tool.schema.InputSchema.Required {
		if _, present := fields[required]; !present {
			return NewToolError(ErrCodeInvalidParameters,
				fmt.Sprintf("tool %q missing required field %q", name, required), nil)
		}
	}

	for field, value := range fields {
		prop, known := tool.schema.InputSchema.Properties[field]
		if !known || len(prop.Enum) == 0 {
			continue
		}
		str, isStr := value.(string)
		if !isStr {
			continue
		}
		if !contains(prop.Enum, str) {
			return NewToolError(ErrCodeInvalidParameters,
				fmt.Sprintf("tool %q field %q: %q is not one of %v", name, field, str, prop.Enum), nil)
		}
	}
	return nil
}

func contains(s []string, v string) bool {
	for _, item := range s {
		if item == v {
			return true
		}
	}
	return false
}

// Dispatch validates and executes one tool invocation, converting every
// failure mode (validation, handler error, panic) into an error-flagged
// ToolResult rather than propagating it.
func (r *ToolRegistry) Dispatch(ctx context.Context, use schemas.ToolUse) schemas.ToolResult {
	result := schemas.ToolResult{ToolUseID: use.ID}

	if err := r.ValidateInput(use.Name, use.Input); err != nil {
		result.IsError = true
		result.Content = err.Error()
		return result
	}

	handler := r.tools[use.Name].handler
	start := time.Now()

	output, err := r.safeInvoke(ctx, use.Name, handler, use.Input)
	duration := time.Since(start)

	if err != nil {
		r.logger.Warn("Tool execution failed",
			zap.String("tool", use.Name),
			zap.Duration("duration", duration),
			zap.Error(err))
		result.IsError = true
		result.Content = err.Error()
		return result
	}

	r.logger.Debug("Tool executed",
		zap.String("tool", use.Name),
		zap.Duration("duration", duration))
	result.Content = output
	return result
}

func (r *ToolRegistry) safeInvoke(ctx context.Context, name string, handler ToolHandler, input encodingjson.RawMessage) (output string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Panic recovered in tool handler",
				zap.String("tool", name),
				zap.Any("panic_value", rec),
				zap.Stack("stack"))
			err = NewToolError(ErrCodeToolPanic, fmt.Sprintf("tool %q panicked: %v", name, rec), nil)
		}
	}()
	return handler(ctx, input)
}

// IsTerminal reports whether the tool name ends the run.
func IsTerminal(name string) bool {
	return name == ToolTaskComplete || name == ToolTaskFailed
}
