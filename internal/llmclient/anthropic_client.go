// File: internal/llmclient/anthropic_client.go
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/config"
)

const (
	anthropicDefaultEndpoint = "https://api.anthropic.com/v1/messages"
	anthropicVersion         = "2023-06-01"
)

// AnthropicClient implements schemas.LLMClient against the Anthropic Messages
// API, including prompt caching for the stable system context.
type AnthropicClient struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
	config     config.LLMConfig
}

// -- Anthropic API wire structures (internal to this file) --

type anthropicCacheControl struct {
	Type string `json:"type"` // always "ephemeral"
}

type anthropicSystemBlock struct {
	Type         string                 `json:"type"` // "text"
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	InputSchema schemas.InputSchema `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string                 `json:"model"`
	System      []anthropicSystemBlock `json:"system,omitempty"`
	Messages    []anthropicMessage     `json:"messages"`
	Tools       []anthropicTool        `json:"tools,omitempty"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature float64                `json:"temperature,omitempty"`
}

type anthropicUsage struct {
	InputTokens              int64 `json:"input_tokens"`
	OutputTokens             int64 `json:"output_tokens"`
	CacheCreationInputTokens int64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int64 `json:"cache_read_input_tokens"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      anthropicUsage          `json:"usage"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicClient initializes the client. The API key is required.
func NewAnthropicClient(cfg config.LLMConfig, logger *zap.Logger) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = anthropicDefaultEndpoint
	}

	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 1.0
	}

	return &AnthropicClient{
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		config:   cfg,
		httpClient: &http.Client{
			Timeout: cfg.APITimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:  logger.Named("llm_client.anthropic"),
	}, nil
}

// CreateMessage sends one Messages API call with retries on transient
// failures. Rate limiting applies before every attempt.
func (c *AnthropicClient) CreateMessage(ctx context.Context, req *schemas.MessageRequest) (*schemas.MessageResponse, error) {
	payload := c.buildRequestPayload(req)

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 2 * time.Minute
	b.MaxInterval = 30 * time.Second

	var result *schemas.MessageResponse

	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", c.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicVersion)

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			c.logger.Warn("Network error during LLM request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var responsePayload anthropicResponse
		if err := json.Unmarshal(respBody, &responsePayload); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}

		c.logger.Info("LLM generation complete (Anthropic)",
			zap.Duration("duration", duration),
			zap.String("stop_reason", responsePayload.StopReason),
			zap.Int64("input_tokens", responsePayload.Usage.InputTokens),
			zap.Int64("output_tokens", responsePayload.Usage.OutputTokens),
			zap.Int64("cache_creation_tokens", responsePayload.Usage.CacheCreationInputTokens),
			zap.Int64("cache_read_tokens", responsePayload.Usage.CacheReadInputTokens),
		)

		result = translateResponse(&responsePayload)
		return nil
	}

	if err = backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}

	return result, nil
}

func (c *AnthropicClient) buildRequestPayload(req *schemas.MessageRequest) anthropicRequest {
	out := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if out.Model == "" {
		out.Model = c.config.Model
	}
	if out.MaxTokens <= 0 {
		out.MaxTokens = c.config.MaxTokens
	}

	for _, block := range req.System {
		sys := anthropicSystemBlock{Type: "text", Text: block.Text}
		if block.Cache {
			sys.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
		}
		out.System = append(out.System, sys)
	}

	for _, msg := range req.Messages {
		am := anthropicMessage{Role: string(msg.Role)}
		for _, block := range msg.Content {
			switch block.Type {
			case "text":
				am.Content = append(am.Content, anthropicContentBlock{Type: "text", Text: block.Text})
			case "tool_use":
				if block.ToolUse != nil {
					am.Content = append(am.Content, anthropicContentBlock{
						Type:  "tool_use",
						ID:    block.ToolUse.ID,
						Name:  block.ToolUse.Name,
						Input: block.ToolUse.Input,
					})
				}
			case "tool_result":
				if block.ToolResult != nil {
					am.Content = append(am.Content, anthropicContentBlock{
						Type:      "tool_result",
						ToolUseID: block.ToolResult.ToolUseID,
						Content:   block.ToolResult.Content,
						IsError:   block.ToolResult.IsError,
					})
				}
			}
		}
		out.Messages = append(out.Messages, am)
	}

	for _, tool := range req.Tools {
		out.Tools = append(out.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.InputSchema,
		})
	}
	return out
}

func translateResponse(resp *anthropicResponse) *schemas.MessageResponse {
	out := &schemas.MessageResponse{
		StopReason: resp.StopReason,
		Usage: schemas.Usage{
			InputTokens:         resp.Usage.InputTokens,
			OutputTokens:        resp.Usage.OutputTokens,
			CacheCreationTokens: resp.Usage.CacheCreationInputTokens,
			CacheReadTokens:     resp.Usage.CacheReadInputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			out.Content = append(out.Content, schemas.TextBlock(block.Text))
		case "tool_use":
			out.Content = append(out.Content, schemas.ContentBlock{
				Type: "tool_use",
				ToolUse: &schemas.ToolUse{
					ID:    block.ID,
					Name:  block.Name,
					Input: block.Input,
				},
			})
		}
	}
	return out
}

func (c *AnthropicClient) handleAPIError(statusCode int, body []byte) error {
	c.logger.Error("Anthropic API returned error status", zap.Int("status", statusCode), zap.String("response", string(body)))
	err := fmt.Errorf("anthropic API error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusInternalServerError, http.StatusBadGateway:
		return err // Transient errors, retry.
	default:
		return backoff.Permanent(err) // Permanent errors.
	}
}
