// File: internal/agent/conversation_test.go
package agent_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
	"github.com/voyantlabs/pagepilot/internal/config"
)

func newTestConversation(t *testing.T, maxMessages int) *agent.Conversation {
	t.Helper()
	cfg := config.NewDefaultConfig().Agent
	cfg.MaxMessages = maxMessages
	return agent.NewConversation(cfg, zaptest.NewLogger(t))
}

func toolUseBlocks(id, name string) []schemas.ContentBlock {
	return []schemas.ContentBlock{{
		Type:    "tool_use",
		ToolUse: &schemas.ToolUse{ID: id, Name: name, Input: []byte(`{}`)},
	}}
}

func TestConversationWindowDropsOrphanedToolResults(t *testing.T) {
	conv := newTestConversation(t, 4)

	conv.AddUserMessage("u1")
	conv.AddAssistantMessage(toolUseBlocks("t1", "click"))
	conv.AddToolResults([]schemas.ToolResult{{ToolUseID: "t1", Content: "ok"}})
	conv.AddUserMessage("u2")
	require.Equal(t, 4, conv.MessageCount())

	// Evicts u1; the window head is the assistant tool_use turn.
	conv.AddAssistantMessage([]schemas.ContentBlock{schemas.TextBlock("a2")})
	assert.Equal(t, 4, conv.MessageCount())

	// Evicts the tool_use turn; its now-orphaned tool_result goes with it.
	conv.AddUserMessage("u3")
	assert.Equal(t, 3, conv.MessageCount())

	req := conv.BuildRequest(config.NewDefaultConfig().LLM, nil)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, "u2", req.Messages[0].Content[0].Text)
	assert.NotEqual(t, "tool_result", req.Messages[0].Content[0].Type)
}

func TestConversationBuildRequestSystemBlocks(t *testing.T) {
	conv := newTestConversation(t, 0)
	llmCfg := config.NewDefaultConfig().LLM

	req := conv.BuildRequest(llmCfg, nil)
	require.Len(t, req.System, 1, "only the base prompt before contexts are set")
	assert.True(t, req.System[0].Cache, "base prompt is cacheable")

	conv.SetRecordingContext("RECORDED DEMONSTRATION\n1. click")
	conv.SetPageContext("CURRENT PAGE\nhttps://a")

	req = conv.BuildRequest(llmCfg, nil)
	require.Len(t, req.System, 3)
	assert.True(t, req.System[1].Cache, "recording context is stable for the run")
	assert.False(t, req.System[2].Cache, "page snapshot changes every iteration")
	assert.Equal(t, llmCfg.Model, req.Model)
	assert.Equal(t, llmCfg.MaxTokens, req.MaxTokens)
}

func TestConversationPageContextReplacedWholesale(t *testing.T) {
	conv := newTestConversation(t, 0)
	llmCfg := config.NewDefaultConfig().LLM

	conv.SetPageContext("snapshot one")
	conv.SetPageContext("snapshot two")

	req := conv.BuildRequest(llmCfg, nil)
	require.Len(t, req.System, 2)
	assert.Equal(t, "snapshot two", req.System[1].Text)
}

func TestConversationUsageAndCost(t *testing.T) {
	conv := newTestConversation(t, 0)

	conv.RecordUsage(schemas.Usage{InputTokens: 600_000, OutputTokens: 500_000})
	conv.RecordUsage(schemas.Usage{
		InputTokens:         400_000,
		OutputTokens:        500_000,
		CacheCreationTokens: 2_000_000,
		CacheReadTokens:     10_000_000,
	})

	u := conv.Usage()
	assert.Equal(t, int64(1_000_000), u.InputTokens)
	assert.Equal(t, int64(1_000_000), u.OutputTokens)

	// 1M input @ $3 + 1M output @ $15 + 2M cache write @ $3.75 + 10M cache read @ $0.30
	assert.InDelta(t, 3.00+15.00+7.50+3.00, conv.EstimatedCost(), 1e-9)
}

func TestConversationEstimateTokens(t *testing.T) {
	conv := newTestConversation(t, 0)

	assert.Zero(t, conv.EstimateTokens(""))
	assert.Positive(t, conv.EstimateTokens("Click the Add to cart button and check out."))
}

func TestConversationContextStale(t *testing.T) {
	conv := newTestConversation(t, 10)

	// No snapshot has ever been set.
	assert.True(t, conv.ContextStale(time.Hour))

	conv.SetPageContext("URL: https://example.com")
	assert.False(t, conv.ContextStale(time.Hour))

	// A zero TTL makes any snapshot stale.
	assert.True(t, conv.ContextStale(0))
}
