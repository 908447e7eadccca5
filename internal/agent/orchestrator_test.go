// File: internal/agent/orchestrator_test.go
package agent_test

import (
	"context"
	encodingjson "encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/voyantlabs/pagepilot/api/schemas"
	"github.com/voyantlabs/pagepilot/internal/agent"
	"github.com/voyantlabs/pagepilot/internal/config"
)

// scriptedLLM replays canned responses and records every request it saw.
type scriptedLLM struct {
	mu        sync.Mutex
	responses []*schemas.MessageResponse
	err       error
	requests  []*schemas.MessageRequest
	release   chan struct{} // when set, CreateMessage blocks until closed
}

func (s *scriptedLLM) CreateMessage(ctx context.Context, req *schemas.MessageRequest) (*schemas.MessageResponse, error) {
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := s.responses[0]
	s.responses = s.responses[1:]
	return resp, nil
}

// fakeDriver records navigations; every other action is a no-op.
type fakeDriver struct {
	navigations []string
	navErr      error
}

func (d *fakeDriver) Navigate(_ context.Context, url string, _ bool) error {
	if d.navErr != nil {
		return d.navErr
	}
	d.navigations = append(d.navigations, url)
	return nil
}
func (d *fakeDriver) Click(context.Context, *schemas.ElementTarget) error      { return nil }
func (d *fakeDriver) Type(context.Context, string, string, schemas.TypeOptions) error {
	return nil
}
func (d *fakeDriver) SelectOption(context.Context, string, string) error  { return nil }
func (d *fakeDriver) ToggleCheckbox(context.Context, string, bool) error  { return nil }
func (d *fakeDriver) SelectRadio(context.Context, string) error           { return nil }
func (d *fakeDriver) PressKey(context.Context, string) error              { return nil }
func (d *fakeDriver) Scroll(context.Context, schemas.ScrollParams) error  { return nil }
func (d *fakeDriver) WaitForElementVisible(context.Context, string, time.Duration) error {
	return nil
}
func (d *fakeDriver) GetText(context.Context, string) (string, error)          { return "", nil }
func (d *fakeDriver) GetAttribute(context.Context, string, string) (string, error) {
	return "", nil
}

type fakeExtractor struct {
	err error
}

func (e *fakeExtractor) GetContext(context.Context, schemas.ContextOptions) (*schemas.PageContext, error) {
	if e.err != nil {
		return nil, e.err
	}
	return &schemas.PageContext{
		Metadata: schemas.PageMetadata{URL: "https://example.com", Title: "Example"},
		InteractiveElements: []schemas.InteractiveElement{
			{Selector: "#buy", TagName: "button", Text: "Buy", Visible: true},
		},
	}, nil
}

type fixture struct {
	orch      *agent.Orchestrator
	llm       *scriptedLLM
	driver    *fakeDriver
	extractor *fakeExtractor
	clicks    *int
	breaks    *int
}

func newOrchestratorFixture(t *testing.T, llm *scriptedLLM, store schemas.SessionStore) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	cfg := config.NewDefaultConfig()
	cfg.Agent.LoopDetectionWindow = 3

	clicks, breaks := 0, 0
	reg := agent.NewToolRegistry(logger)
	plain := schemas.InputSchema{Type: "object"}
	reg.Register(schemas.ToolSchema{Name: agent.ToolClick, Description: "click", InputSchema: plain},
		func(context.Context, encodingjson.RawMessage) (string, error) {
			clicks++
			return "clicked", nil
		})
	reg.Register(schemas.ToolSchema{Name: "broken", Description: "always fails", InputSchema: plain},
		func(context.Context, encodingjson.RawMessage) (string, error) {
			breaks++
			return "", errors.New("boom")
		})

	driver := &fakeDriver{}
	extractor := &fakeExtractor{}
	orch := agent.NewOrchestrator(logger, cfg.Agent, cfg.LLM, llm, driver, extractor, store, reg)
	return &fixture{orch: orch, llm: llm, driver: driver, extractor: extractor, clicks: &clicks, breaks: &breaks}
}

func toolUseResponse(uses ...schemas.ToolUse) *schemas.MessageResponse {
	resp := &schemas.MessageResponse{
		StopReason: "tool_use",
		Usage:      schemas.Usage{InputTokens: 100, OutputTokens: 50},
	}
	for i := range uses {
		resp.Content = append(resp.Content, schemas.ContentBlock{Type: "tool_use", ToolUse: &uses[i]})
	}
	return resp
}

func use(id, name, input string) schemas.ToolUse {
	return schemas.ToolUse{ID: id, Name: name, Input: []byte(input)}
}

func TestRunTaskCompleteShortCircuitsSameResponse(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(
			use("t1", agent.ToolTaskComplete, `{"summary":"item is in the cart"}`),
			use("t2", agent.ToolClick, `{"selector":"#buy"}`),
		),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy the thing"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "item is in the cart", result.Summary)
	assert.Equal(t, 1, result.Iterations)

	// Nothing after the terminal tool is dispatched.
	assert.Zero(t, *f.clicks)
	require.Len(t, result.ExecutionHistory, 1)
	assert.Equal(t, agent.ToolTaskComplete, result.ExecutionHistory[0].ToolName)
	assert.Equal(t, int64(100), result.Usage.InputTokens)
	assert.Positive(t, result.EstimatedCost)
}

func TestRunTaskFailed(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(use("t1", agent.ToolTaskFailed, `{"reason":"login wall"}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "login wall", result.Error)
}

func TestRunModelRequestFailed(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("api down")}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "MODEL_REQUEST_FAILED")
}

func TestRunConsecutiveFailureCap(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(use("t1", "broken", `{}`)),
		toolUseResponse(use("t2", "broken", `{}`)),
		toolUseResponse(use("t3", "broken", `{}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{
		Goal:                 "buy",
		MaxConsecutiveErrors: 2,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "CONSECUTIVE_FAILURES")
	assert.Equal(t, 2, *f.breaks)
	assert.Equal(t, 2, result.Iterations)
}

func TestRunLoopDetectionNudges(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(use("t1", agent.ToolClick, `{"selector":"#buy"}`)),
		toolUseResponse(use("t2", agent.ToolClick, `{"selector":"#buy"}`)),
		toolUseResponse(use("t3", agent.ToolClick, `{"selector":"#buy"}`)),
		toolUseResponse(use("t4", agent.ToolTaskComplete, `{"summary":"done"}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	// The fourth request carries the nudge injected after three identical calls.
	require.Len(t, llm.requests, 4)
	found := false
	for _, msg := range llm.requests[3].Messages {
		if msg.Role != schemas.RoleUser {
			continue
		}
		for _, block := range msg.Content {
			if block.Type == "text" && strings.Contains(block.Text, "same tool several times") {
				found = true
			}
		}
	}
	assert.True(t, found, "expected a loop nudge in the conversation")
}

func TestRunNoToolCallNudges(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		{Content: []schemas.ContentBlock{schemas.TextBlock("Let me think about this.")}},
		toolUseResponse(use("t1", agent.ToolTaskComplete, `{"summary":"done"}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.Iterations)

	require.Len(t, llm.requests, 2)
	second := llm.requests[1].Messages
	lastMsg := second[len(second)-1]
	assert.Equal(t, schemas.RoleUser, lastMsg.Role)
	assert.Contains(t, lastMsg.Content[0].Text, "No tool was called")
}

func TestRunMaxIterations(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(use("t1", agent.ToolClick, `{"selector":"#a"}`)),
		toolUseResponse(use("t2", agent.ToolClick, `{"selector":"#b"}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{
		Goal:          "buy",
		MaxIterations: 2,
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "MAX_ITERATIONS_REACHED")
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, 2, *f.clicks)
}

func TestRunStartURLNavigationFailure(t *testing.T) {
	llm := &scriptedLLM{}
	f := newOrchestratorFixture(t, llm, nil)
	f.driver.navErr = errors.New("dns failure")

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{
		Goal:     "buy",
		StartURL: "https://unreachable.example",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "NAVIGATION_ERROR")
	assert.Empty(t, llm.requests, "the model is never consulted when setup fails")
}

func TestRunRecordingWithoutStore(t *testing.T) {
	llm := &scriptedLLM{}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{
		Goal:        "buy",
		RecordingID: "rec-123",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "RECORDING_UNAVAILABLE")
}

func TestRunSingleRunGate(t *testing.T) {
	release := make(chan struct{})
	llm := &scriptedLLM{
		release: release,
		responses: []*schemas.MessageResponse{
			toolUseResponse(use("t1", agent.ToolTaskComplete, `{"summary":"done"}`)),
		},
	}
	f := newOrchestratorFixture(t, llm, nil)

	done := make(chan *schemas.AutomationResult, 1)
	go func() {
		result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
		require.NoError(t, err)
		done <- result
	}()

	// The second run bounces off the gate while the first is mid-flight.
	require.Eventually(t, func() bool {
		_, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "another"})
		return errors.Is(err, agent.ErrRunInProgress)
	}, time.Second, 5*time.Millisecond)

	close(release)
	select {
	case result := <-done:
		assert.True(t, result.Success)
	case <-time.After(2 * time.Second):
		t.Fatal("first run never finished")
	}

	// The gate is free again.
	llm.responses = []*schemas.MessageResponse{
		toolUseResponse(use("t2", agent.ToolTaskComplete, `{"summary":"done"}`)),
	}
	llm.release = nil
	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "third"})
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestRunCancelledContext(t *testing.T) {
	llm := &scriptedLLM{}
	f := newOrchestratorFixture(t, llm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.orch.Run(ctx, &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "RUN_CANCELLED")
}

func TestRunCancelAbortsMidFlight(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	llm := &scriptedLLM{release: release}
	f := newOrchestratorFixture(t, llm, nil)

	done := make(chan *schemas.AutomationResult, 1)
	go func() {
		result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
		require.NoError(t, err)
		done <- result
	}()

	// Wait until the run is blocked inside the model call, then cancel it.
	require.Eventually(t, func() bool {
		_, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "second"})
		return errors.Is(err, agent.ErrRunInProgress)
	}, time.Second, 5*time.Millisecond)
	f.orch.Cancel()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "RUN_CANCELLED")
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled run never returned")
	}
}

// requestHasUserText reports whether any user turn in the request carries a
// text block containing substr.
func requestHasUserText(req *schemas.MessageRequest, substr string) bool {
	for _, msg := range req.Messages {
		if msg.Role != schemas.RoleUser {
			continue
		}
		for _, block := range msg.Content {
			if block.Type == "text" && strings.Contains(block.Text, substr) {
				return true
			}
		}
	}
	return false
}

func TestRunLoopDetectionCountsEveryInvocation(t *testing.T) {
	// A single response carrying three identical calls fills the window on
	// its own.
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(
			use("t1", agent.ToolClick, `{"selector":"#buy"}`),
			use("t2", agent.ToolClick, `{"selector":"#buy"}`),
			use("t3", agent.ToolClick, `{"selector":"#buy"}`),
		),
		toolUseResponse(use("t4", agent.ToolTaskComplete, `{"summary":"done"}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, *f.clicks)

	require.Len(t, llm.requests, 2)
	assert.True(t, requestHasUserText(llm.requests[1], "same tool several times"),
		"expected a loop nudge after one response repeated the same call")
}

func TestRunStaleSnapshotWarnsTheModel(t *testing.T) {
	llm := &scriptedLLM{responses: []*schemas.MessageResponse{
		toolUseResponse(use("t1", agent.ToolTaskComplete, `{"summary":"done"}`)),
	}}
	f := newOrchestratorFixture(t, llm, nil)
	// Every extraction fails, so no snapshot is ever cached and the context
	// is stale from the start.
	f.extractor.err = errors.New("page detached")

	result, err := f.orch.Run(context.Background(), &schemas.AutomationRequest{Goal: "buy"})
	require.NoError(t, err)
	assert.True(t, result.Success)

	require.Len(t, llm.requests, 1)
	assert.True(t, requestHasUserText(llm.requests[0], "could not be refreshed"),
		"expected a staleness note when extraction keeps failing")
}
