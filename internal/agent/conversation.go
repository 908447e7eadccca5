// File: internal/agent/conversation.go
package agent

import (
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
)

// Cost per million tokens for each billing class.
const (
	priceInputPerMTok      = 3.00
	priceOutputPerMTok     = 15.00
	priceCacheWritePerMTok = 3.75
	priceCacheReadPerMTok  = 0.30
)

// Conversation owns the message history for one run: the cached system
// context, the bounded turn window, and usage accounting.
type Conversation struct {
	logger *zap.Logger
	cfg    config.AgentConfig

	mu               sync.Mutex
	recordingContext string
	pageContext      string
	contextUpdatedAt time.Time
	messages         []schemas.Message
	usage            schemas.Usage

	encoder *tiktoken.Tiktoken
}

// NewConversation creates an empty conversation.
func NewConversation(cfg config.AgentConfig, logger *zap.Logger) *Conversation {
	c := &Conversation{
		logger: logger.Named("conversation"),
		cfg:    cfg,
	}
	// cl100k_base covers the models we target closely enough for estimation.
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		c.logger.Warn("Tokenizer unavailable, falling back to character heuristic", zap.Error(err))
	} else {
		c.encoder = enc
	}
	return c
}

// SetRecordingContext replaces the recorded-demonstration block wholesale.
// The block is stable for the whole run, so it is marked cacheable.
func (c *Conversation) SetRecordingContext(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordingContext = text
	c.contextUpdatedAt = time.Now()
}

// SetPageContext replaces the page snapshot block wholesale. Replacement, not
// accretion: stale snapshots must never linger in the prompt.
func (c *Conversation) SetPageContext(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pageContext = text
	c.contextUpdatedAt = time.Now()
}

// ContextStale reports whether the cached context blocks are older than ttl.
// A conversation that never received a snapshot is always stale. The signal
// is informational: callers consult it to decide how to handle a failed
// refresh, it never blocks a request.
func (c *Conversation) ContextStale(ttl time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.contextUpdatedAt.IsZero() {
		return true
	}
	return time.Since(c.contextUpdatedAt) > ttl
}

// AddUserMessage appends a plain-text user turn.
func (c *Conversation) AddUserMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(schemas.Message{
		Role:    schemas.RoleUser,
		Content: []schemas.ContentBlock{schemas.TextBlock(text)},
	})
}

// AddAssistantMessage appends the model's reply verbatim, preserving its
// tool_use blocks.
func (c *Conversation) AddAssistantMessage(content []schemas.ContentBlock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(schemas.Message{Role: schemas.RoleAssistant, Content: content})
}

// AddToolResults appends the results of the assistant's tool invocations as a
// single user turn, in the same order the invocations appeared.
func (c *Conversation) AddToolResults(results []schemas.ToolResult) {
	if len(results) == 0 {
		return
	}
	blocks := make([]schemas.ContentBlock, 0, len(results))
	for i := range results {
		blocks = append(blocks, schemas.ContentBlock{Type: "tool_result", ToolResult: &results[i]})
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(schemas.Message{Role: schemas.RoleUser, Content: blocks})
}

// appendLocked adds a message and enforces the FIFO window. Trimming drops
// whole messages from the front; a leading tool_result turn is dropped along
// with its (already evicted) tool_use partner so the pairing stays intact.
func (c *Conversation) appendLocked(msg schemas.Message) {
	c.messages = append(c.messages, msg)

	max := c.cfg.MaxMessages
	if max <= 0 || len(c.messages) <= max {
		return
	}

	evicted := 0
	for len(c.messages) > max {
		c.messages = c.messages[1:]
		evicted++
	}
	for len(c.messages) > 0 && startsWithToolResult(c.messages[0]) {
		c.messages = c.messages[1:]
		evicted++
	}
	c.logger.Debug("Trimmed conversation window", zap.Int("evicted", evicted), zap.Int("retained", len(c.messages)))
}

func startsWithToolResult(msg schemas.Message) bool {
	return len(msg.Content) > 0 && msg.Content[0].Type == "tool_result"
}

// BuildRequest assembles the exact next model call: cached system blocks,
// the current page snapshot, the bounded history, and the tool catalogue.
func (c *Conversation) BuildRequest(llmCfg config.LLMConfig, tools []schemas.ToolSchema) *schemas.MessageRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	system := []schemas.SystemBlock{{Text: systemPrompt, Cache: true}}
	if c.recordingContext != "" {
		system = append(system, schemas.SystemBlock{Text: c.recordingContext, Cache: true})
	}
	if c.pageContext != "" {
		system = append(system, schemas.SystemBlock{Text: c.pageContext})
	}

	messages := make([]schemas.Message, len(c.messages))
	copy(messages, c.messages)

	return &schemas.MessageRequest{
		Model:       llmCfg.Model,
		System:      system,
		Messages:    messages,
		Tools:       tools,
		MaxTokens:   llmCfg.MaxTokens,
		Temperature: llmCfg.Temperature,
	}
}

// RecordUsage accumulates one response's token counts.
func (c *Conversation) RecordUsage(u schemas.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.usage.Add(u)
}

// Usage returns the accumulated token counts.
func (c *Conversation) Usage() schemas.Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usage
}

// EstimatedCost prices the accumulated usage in US dollars.
func (c *Conversation) EstimatedCost() float64 {
	u := c.Usage()
	return float64(u.InputTokens)/1e6*priceInputPerMTok +
		float64(u.OutputTokens)/1e6*priceOutputPerMTok +
		float64(u.CacheCreationTokens)/1e6*priceCacheWritePerMTok +
		float64(u.CacheReadTokens)/1e6*priceCacheReadPerMTok
}

// EstimateTokens approximates the token count of text before sending it,
// using the real tokenizer when available and a 4-characters-per-token
// heuristic otherwise.
func (c *Conversation) EstimateTokens(text string) int {
	if c.encoder != nil {
		return len(c.encoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}

// MessageCount reports the current window size.
func (c *Conversation) MessageCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}
