// File: api/schemas/llm.go
package schemas

import (
	"context"
	"encoding/json"
)

// Role is the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ToolUse is one tool invocation requested by the model.
type ToolUse struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of one tool invocation, fed back to the model in
// strict correspondence with the order the invocations appeared.
type ToolResult struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ContentBlock is one part of a message. Exactly one of Text, ToolUse or
// ToolResult is set, discriminated by Type.
type ContentBlock struct {
	Type       string      `json:"type"` // "text", "tool_use", "tool_result"
	Text       string      `json:"text,omitempty"`
	ToolUse    *ToolUse    `json:"tool_use,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextBlock builds a plain text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// Message is one turn of the conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// SystemBlock is one segment of the cached system context. Segments with
// Cache=true are marked for provider-side prompt caching.
type SystemBlock struct {
	Text  string `json:"text"`
	Cache bool   `json:"cache,omitempty"`
}

// SchemaProperty describes one input field of a tool schema.
type SchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// InputSchema is the machine-checkable shape of a tool's input.
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties,omitempty"`
	Required   []string                  `json:"required,omitempty"`
}

// ToolSchema is one catalogue entry exposed to the model.
type ToolSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// MessageRequest is the exact payload assembled for one model call.
type MessageRequest struct {
	Model       string        `json:"model"`
	System      []SystemBlock `json:"system,omitempty"`
	Messages    []Message     `json:"messages"`
	Tools       []ToolSchema  `json:"tools,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
}

// Usage counts tokens per billing class across one or more calls.
type Usage struct {
	InputTokens         int64 `json:"input_tokens"`
	OutputTokens        int64 `json:"output_tokens"`
	CacheCreationTokens int64 `json:"cache_creation_input_tokens,omitempty"`
	CacheReadTokens     int64 `json:"cache_read_input_tokens,omitempty"`
}

// Add accumulates another usage sample into u.
func (u *Usage) Add(o Usage) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.CacheCreationTokens += o.CacheCreationTokens
	u.CacheReadTokens += o.CacheReadTokens
}

// MessageResponse is the model's reply to a MessageRequest.
type MessageResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
}

// ToolUses extracts the tool invocations from the response, in order.
func (r *MessageResponse) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, block := range r.Content {
		if block.Type == "tool_use" && block.ToolUse != nil {
			uses = append(uses, *block.ToolUse)
		}
	}
	return uses
}

// Text concatenates the plain-text blocks of the response.
func (r *MessageResponse) Text() string {
	var out string
	for _, block := range r.Content {
		if block.Type == "text" {
			if out != "" {
				out += "\n"
			}
			out += block.Text
		}
	}
	return out
}

// LLMClient abstracts the model provider.
type LLMClient interface {
	CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error)
}
