// File: internal/agent/browser_tools.go
package agent

import (
	"context"
	encodingjson "encoding/json"
	"fmt"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
)

// RegisterBrowserTools wires the standard browser tool catalogue onto the
// registry, backed by the given driver and context extractor.
func RegisterBrowserTools(reg *ToolRegistry, driver schemas.PageDriver, extractor schemas.ContextExtractor, logger *zap.Logger) {
	b := &browserTools{driver: driver, extractor: extractor, logger: logger.Named("browser_tools")}

	reg.Register(schemas.ToolSchema{
		Name:        ToolNavigate,
		Description: "Navigate the browser to a URL and wait for the page to load.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"url": {Type: "string", Description: "Absolute URL to navigate to."},
			},
			Required: []string{"url"},
		},
	}, b.navigate)

	reg.Register(schemas.ToolSchema{
		Name:        ToolClick,
		Description: "Click an element. Provide a CSS selector from the page context, or descriptive attributes (text, role, aria-label) if no selector is known.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector":   {Type: "string", Description: "CSS selector of the element."},
				"text":       {Type: "string", Description: "Visible text of the element, used as a fallback."},
				"tag_name":   {Type: "string", Description: "Tag name constraint for fallback matching."},
				"role":       {Type: "string", Description: "ARIA role for fallback matching."},
				"aria_label": {Type: "string", Description: "aria-label for fallback matching."},
			},
		},
	}, b.click)

	reg.Register(schemas.ToolSchema{
		Name:        ToolTypeText,
		Description: "Type text into an input or textarea.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string", Description: "CSS selector of the field."},
				"text":     {Type: "string", Description: "Text to type."},
				"clear":    {Type: "boolean", Description: "Clear the field before typing."},
			},
			Required: []string{"selector", "text"},
		},
	}, b.typeText)

	reg.Register(schemas.ToolSchema{
		Name:        ToolSelectOption,
		Description: "Select an option in a <select> element by its value.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string", Description: "CSS selector of the select element."},
				"value":    {Type: "string", Description: "Option value to select."},
			},
			Required: []string{"selector", "value"},
		},
	}, b.selectOption)

	reg.Register(schemas.ToolSchema{
		Name:        ToolToggleCheckbox,
		Description: "Set a checkbox to checked or unchecked.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string", Description: "CSS selector of the checkbox."},
				"checked":  {Type: "boolean", Description: "Desired state."},
			},
			Required: []string{"selector", "checked"},
		},
	}, b.toggleCheckbox)

	reg.Register(schemas.ToolSchema{
		Name:        ToolSelectRadio,
		Description: "Select a radio button.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string", Description: "CSS selector of the radio button."},
			},
			Required: []string{"selector"},
		},
	}, b.selectRadio)

	reg.Register(schemas.ToolSchema{
		Name:        ToolPressKey,
		Description: "Press a keyboard key (e.g. Enter, Escape, Tab, ArrowDown) on the focused element.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"key": {Type: "string", Description: "Key name."},
			},
			Required: []string{"key"},
		},
	}, b.pressKey)

	reg.Register(schemas.ToolSchema{
		Name:        ToolScroll,
		Description: "Scroll an element into view, or scroll the window by a pixel delta.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string", Description: "Element to scroll into view."},
				"x":        {Type: "number", Description: "Horizontal delta in pixels."},
				"y":        {Type: "number", Description: "Vertical delta in pixels."},
			},
		},
	}, b.scroll)

	reg.Register(schemas.ToolSchema{
		Name:        ToolWait,
		Description: "Pause for a fixed duration, e.g. while an animation or redirect settles. Prefer wait_for_element when a specific element is expected.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"duration_ms": {Type: "number", Description: "How long to wait, in milliseconds."},
			},
			Required: []string{"duration_ms"},
		},
	}, b.wait)

	reg.Register(schemas.ToolSchema{
		Name:        ToolWaitForElement,
		Description: "Wait until an element is visible on the page.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector":   {Type: "string", Description: "CSS selector to wait for."},
				"timeout_ms": {Type: "number", Description: "Maximum wait in milliseconds."},
			},
			Required: []string{"selector"},
		},
	}, b.waitForElement)

	reg.Register(schemas.ToolSchema{
		Name:        ToolGetText,
		Description: "Read the visible text of an element.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string", Description: "CSS selector of the element."},
			},
			Required: []string{"selector"},
		},
	}, b.getText)

	reg.Register(schemas.ToolSchema{
		Name:        ToolGetPageContext,
		Description: "Get a fresh snapshot of the current page: URL, title, and interactive elements.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"include_network": {Type: "boolean", Description: "Include recent network activity."},
			},
		},
	}, b.getPageContext)

	reg.Register(schemas.ToolSchema{
		Name:        ToolTaskComplete,
		Description: "Declare the task successfully finished. Call this as soon as the goal is achieved.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"summary": {Type: "string", Description: "What was accomplished."},
			},
			Required: []string{"summary"},
		},
	}, terminalHandler)

	reg.Register(schemas.ToolSchema{
		Name:        ToolTaskFailed,
		Description: "Declare the task impossible to complete and explain why.",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"reason": {Type: "string", Description: "Why the task cannot be completed."},
			},
			Required: []string{"reason"},
		},
	}, terminalHandler)
}

// terminalHandler exists so terminal tools validate like any other; the
// orchestrator intercepts them before dispatch.
func terminalHandler(_ context.Context, _ encodingjson.RawMessage) (string, error) {
	return "acknowledged", nil
}

type browserTools struct {
	driver    schemas.PageDriver
	extractor schemas.ContextExtractor
	logger    *zap.Logger
}

func (b *browserTools) navigate(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid navigate input", err)
	}
	if err := b.driver.Navigate(ctx, params.URL, true); err != nil {
		return "", NewToolError(ErrCodeNavigationError, fmt.Sprintf("navigation to %s failed", params.URL), err)
	}
	return fmt.Sprintf("Navigated to %s", params.URL), nil
}

func (b *browserTools) click(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector  string `json:"selector"`
		Text      string `json:"text"`
		TagName   string `json:"tag_name"`
		Role      string `json:"role"`
		AriaLabel string `json:"aria_label"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid click input", err)
	}
	if params.Selector == "" && params.Text == "" && params.Role == "" && params.AriaLabel == "" {
		return "", NewToolError(ErrCodeInvalidParameters, "click needs a selector or descriptive attributes", nil)
	}

	target := &schemas.ElementTarget{
		TagName:   params.TagName,
		Role:      params.Role,
		AriaLabel: params.AriaLabel,
		Text:      params.Text,
	}
	if params.Selector != "" {
		target.Selectors = []schemas.SelectorCandidate{{
			Strategy: schemas.StrategyCSS,
			Selector: params.Selector,
			Score:    60,
		}}
	}
	if err := b.driver.Click(ctx, target); err != nil {
		return "", NewToolError(ErrCodeElementNotFound, "click failed", err)
	}
	return describeClick(params.Selector, params.Text), nil
}

func describeClick(selector, text string) string {
	switch {
	case selector != "":
		return fmt.Sprintf("Clicked %s", selector)
	case text != "":
		return fmt.Sprintf("Clicked element with text %q", text)
	default:
		return "Clicked element"
	}
}

func (b *browserTools) typeText(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector string `json:"selector"`
		Text     string `json:"text"`
		Clear    bool   `json:"clear"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid type_text input", err)
	}
	if err := b.driver.Type(ctx, params.Selector, params.Text, schemas.TypeOptions{Clear: params.Clear}); err != nil {
		return "", NewToolError(ErrCodeElementNotFound, fmt.Sprintf("typing into %s failed", params.Selector), err)
	}
	return fmt.Sprintf("Typed %d characters into %s", len(params.Text), params.Selector), nil
}

func (b *browserTools) selectOption(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector string `json:"selector"`
		Value    string `json:"value"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid select_option input", err)
	}
	if err := b.driver.SelectOption(ctx, params.Selector, params.Value); err != nil {
		return "", NewToolError(ErrCodeElementNotFound, fmt.Sprintf("selecting %q in %s failed", params.Value, params.Selector), err)
	}
	return fmt.Sprintf("Selected %q in %s", params.Value, params.Selector), nil
}

func (b *browserTools) toggleCheckbox(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector string `json:"selector"`
		Checked  bool   `json:"checked"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid toggle_checkbox input", err)
	}
	if err := b.driver.ToggleCheckbox(ctx, params.Selector, params.Checked); err != nil {
		return "", NewToolError(ErrCodeElementNotFound, fmt.Sprintf("toggling %s failed", params.Selector), err)
	}
	return fmt.Sprintf("Set %s checked=%t", params.Selector, params.Checked), nil
}

func (b *browserTools) selectRadio(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid select_radio input", err)
	}
	if err := b.driver.SelectRadio(ctx, params.Selector); err != nil {
		return "", NewToolError(ErrCodeElementNotFound, fmt.Sprintf("selecting radio %s failed", params.Selector), err)
	}
	return fmt.Sprintf("Selected radio %s", params.Selector), nil
}

func (b *browserTools) pressKey(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Key string `json:"key"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid press_key input", err)
	}
	if err := b.driver.PressKey(ctx, params.Key); err != nil {
		return "", NewToolError(ErrCodeExecutionFailure, fmt.Sprintf("pressing %s failed", params.Key), err)
	}
	return fmt.Sprintf("Pressed %s", params.Key), nil
}

func (b *browserTools) scroll(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector string  `json:"selector"`
		X        float64 `json:"x"`
		Y        float64 `json:"y"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid scroll input", err)
	}
	if err := b.driver.Scroll(ctx, schemas.ScrollParams{Selector: params.Selector, X: params.X, Y: params.Y}); err != nil {
		return "", NewToolError(ErrCodeExecutionFailure, "scroll failed", err)
	}
	if params.Selector != "" {
		return fmt.Sprintf("Scrolled %s into view", params.Selector), nil
	}
	return fmt.Sprintf("Scrolled by (%.0f, %.0f)", params.X, params.Y), nil
}

// maxWaitDuration caps the fixed-duration wait so a bad model request
// cannot stall an iteration for minutes.
const maxWaitDuration = 30 * time.Second

func (b *browserTools) wait(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		DurationMS float64 `json:"duration_ms"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid wait input", err)
	}
	d := time.Duration(params.DurationMS) * time.Millisecond
	if d <= 0 {
		return "", NewToolError(ErrCodeInvalidParameters, "wait duration must be positive", nil)
	}
	if d > maxWaitDuration {
		d = maxWaitDuration
	}
	select {
	case <-time.After(d):
	case <-ctx.Done():
		return "", NewToolError(ErrCodeRunCancelled, "wait interrupted", ctx.Err())
	}
	return fmt.Sprintf("Waited %s", d), nil
}

func (b *browserTools) waitForElement(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector  string  `json:"selector"`
		TimeoutMS float64 `json:"timeout_ms"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid wait_for_element input", err)
	}
	timeout := time.Duration(params.TimeoutMS) * time.Millisecond
	if err := b.driver.WaitForElementVisible(ctx, params.Selector, timeout); err != nil {
		return "", NewToolError(ErrCodeTimeoutError, fmt.Sprintf("element %s not visible", params.Selector), err)
	}
	return fmt.Sprintf("Element %s is visible", params.Selector), nil
}

func (b *browserTools) getText(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		Selector string `json:"selector"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return "", NewToolError(ErrCodeInvalidParameters, "invalid get_text input", err)
	}
	text, err := b.driver.GetText(ctx, params.Selector)
	if err != nil {
		return "", NewToolError(ErrCodeElementNotFound, fmt.Sprintf("reading %s failed", params.Selector), err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Sprintf("Element %s has no visible text", params.Selector), nil
	}
	return text, nil
}

func (b *browserTools) getPageContext(ctx context.Context, input encodingjson.RawMessage) (string, error) {
	var params struct {
		IncludeNetwork bool `json:"include_network"`
	}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return "", NewToolError(ErrCodeInvalidParameters, "invalid get_page_context input", err)
		}
	}
	opts := schemas.DefaultContextOptions()
	opts.IncludeNetwork = params.IncludeNetwork

	pc, err := b.extractor.GetContext(ctx, opts)
	if err != nil {
		return "", NewToolError(ErrCodeExecutionFailure, "page context extraction failed", err)
	}
	return FormatPageContext(pc), nil
}
