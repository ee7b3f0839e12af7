package agent

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/ordermind/internal/tools"
)

// scriptedModel replays canned responses; the last one repeats.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	err       error
	calls     int
	seen      [][]llms.MessageContent
}

func (m *scriptedModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.seen = append(m.seen, messages)
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	i := m.calls - 1
	if i >= len(m.responses) {
		i = len(m.responses) - 1
	}
	return m.responses[i], nil
}

func (m *scriptedModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *scriptedModel) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func textResponse(text string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		Content:        text,
		GenerationInfo: map[string]any{"PromptTokens": 120, "CompletionTokens": 30},
	}}}
}

func toolResponse(id, name string, args map[string]any) *llms.ContentResponse {
	raw, _ := json.Marshal(args)
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: string(raw)},
		}},
		GenerationInfo: map[string]any{"PromptTokens": 100, "CompletionTokens": 10},
	}}}
}

// countingTool records how often its body runs.
type countingTool struct {
	mu    sync.Mutex
	desc  tools.Descriptor
	calls int
	fn    func(call int, args map[string]any) tools.Result
}

func (c *countingTool) Describe() tools.Descriptor { return c.desc }

func (c *countingTool) Invoke(ctx context.Context, args map[string]any) (tools.Result, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()
	if c.fn != nil {
		return c.fn(n, args), nil
	}
	return tools.Result{"type": "ok"}, nil
}

func (c *countingTool) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}
