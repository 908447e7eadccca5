// File: internal/agent/tools_test.go
package agent_test

import (
	"context"
	encodingjson "encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
)

func clickSchema() schemas.ToolSchema {
	return schemas.ToolSchema{
		Name:        agent.ToolClick,
		Description: "Click an element",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"selector": {Type: "string"},
			},
			Required: []string{"selector"},
		},
	}
}

func scrollSchema() schemas.ToolSchema {
	return schemas.ToolSchema{
		Name:        agent.ToolScroll,
		Description: "Scroll the page",
		InputSchema: schemas.InputSchema{
			Type: "object",
			Properties: map[string]schemas.SchemaProperty{
				"direction": {Type: "string", Enum: []string{"up", "down"}},
			},
		},
	}
}

func okHandler(output string) agent.ToolHandler {
	return func(context.Context, encodingjson.RawMessage) (string, error) {
		return output, nil
	}
}

func TestRegistrySchemasInRegistrationOrder(t *testing.T) {
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))
	reg.Register(clickSchema(), okHandler("clicked"))
	reg.Register(scrollSchema(), okHandler("scrolled"))

	// Re-registering replaces the handler but keeps catalogue order.
	reg.Register(clickSchema(), okHandler("clicked again"))

	list := reg.Schemas()
	require.Len(t, list, 2)
	assert.Equal(t, agent.ToolClick, list[0].Name)
	assert.Equal(t, agent.ToolScroll, list[1].Name)
}

func TestValidateInput(t *testing.T) {
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))
	reg.Register(clickSchema(), okHandler("clicked"))
	reg.Register(scrollSchema(), okHandler("scrolled"))

	t.Run("unknown tool", func(t *testing.T) {
		err := reg.ValidateInput("teleport", []byte(`{}`))
		require.Error(t, err)
		assert.Equal(t, agent.ErrCodeUnknownTool, agent.CodeOf(err))
	})

	t.Run("missing required field", func(t *testing.T) {
		err := reg.ValidateInput(agent.ToolClick, []byte(`{"text":"Buy"}`))
		require.Error(t, err)
		assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))
	})

	t.Run("non-object input", func(t *testing.T) {
		err := reg.ValidateInput(agent.ToolClick, []byte(`"just a string"`))
		require.Error(t, err)
		assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))
	})

	t.Run("enum violation", func(t *testing.T) {
		err := reg.ValidateInput(agent.ToolScroll, []byte(`{"direction":"sideways"}`))
		require.Error(t, err)
		assert.Equal(t, agent.ErrCodeInvalidParameters, agent.CodeOf(err))
	})

	t.Run("valid input", func(t *testing.T) {
		assert.NoError(t, reg.ValidateInput(agent.ToolClick, []byte(`{"selector":"#buy"}`)))
		assert.NoError(t, reg.ValidateInput(agent.ToolScroll, []byte(`{"direction":"down"}`)))
	})
}

func TestDispatchSuccess(t *testing.T) {
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))
	reg.Register(clickSchema(), okHandler("clicked #buy"))

	result := reg.Dispatch(context.Background(), schemas.ToolUse{
		ID: "t1", Name: agent.ToolClick, Input: []byte(`{"selector":"#buy"}`),
	})
	assert.Equal(t, "t1", result.ToolUseID)
	assert.False(t, result.IsError)
	assert.Equal(t, "clicked #buy", result.Content)
}

func TestDispatchHandlerErrorBecomesErrorResult(t *testing.T) {
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))
	reg.Register(clickSchema(), func(context.Context, encodingjson.RawMessage) (string, error) {
		return "", agent.NewToolError(agent.ErrCodeElementNotFound, "no such element", errors.New("gone"))
	})

	result := reg.Dispatch(context.Background(), schemas.ToolUse{
		ID: "t1", Name: agent.ToolClick, Input: []byte(`{"selector":"#gone"}`),
	})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "ELEMENT_NOT_FOUND")
}

func TestDispatchValidationErrorBecomesErrorResult(t *testing.T) {
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))
	reg.Register(clickSchema(), okHandler("clicked"))

	result := reg.Dispatch(context.Background(), schemas.ToolUse{
		ID: "t1", Name: agent.ToolClick, Input: []byte(`{}`),
	})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "INVALID_PARAMETERS")
}

func TestDispatchRecoversPanic(t *testing.T) {
	reg := agent.NewToolRegistry(zaptest.NewLogger(t))
	reg.Register(clickSchema(), func(context.Context, encodingjson.RawMessage) (string, error) {
		panic("handler blew up")
	})

	result := reg.Dispatch(context.Background(), schemas.ToolUse{
		ID: "t1", Name: agent.ToolClick, Input: []byte(`{"selector":"#buy"}`),
	})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "TOOL_PANIC")
	assert.Contains(t, result.Content, "handler blew up")
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, agent.IsTerminal(agent.ToolTaskComplete))
	assert.True(t, agent.IsTerminal(agent.ToolTaskFailed))
	assert.False(t, agent.IsTerminal(agent.ToolClick))
	assert.False(t, agent.IsTerminal(agent.ToolNavigate))
}
