package agent

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model. Arguments holds
// the raw JSON the model produced.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Turn is one entry of the conversation. Turns are only ever appended.
type Turn struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

func UserTurn(content string) Turn {
	return Turn{Role: RoleUser, Content: content}
}

// LatestUserTurn returns the last user-authored turn.
func LatestUserTurn(turns []Turn) (Turn, bool) {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleUser {
			return turns[i], true
		}
	}
	return Turn{}, false
}

// ParseArguments decodes the model's JSON arguments. Empty input is an
// empty map.
func (c ToolCall) ParseArguments() (map[string]any, error) {
	args := map[string]any{}
	if c.Arguments == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(c.Arguments), &args); err != nil {
		return nil, fmt.Errorf("invalid JSON arguments for %s: %w", c.Name, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func toolCallsFromChoice(choice *llms.ContentChoice) []ToolCall {
	out := make([]ToolCall, 0, len(choice.ToolCalls))
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		out = append(out, ToolCall{ID: id, Name: tc.FunctionCall.Name, Arguments: tc.FunctionCall.Arguments})
	}
	return out
}

// toMessages converts turns into the model backend's message format.
func toMessages(turns []Turn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case RoleSystem:
			messages = append(messages, llms.MessageContent{
				Role:  llms.ChatMessageTypeSystem,
				Parts: []llms.ContentPart{llms.TextPart(t.Content)},
			})
		case RoleUser:
			messages = append(messages, llms.MessageContent{
				Role:  llms.ChatMessageTypeHuman,
				Parts: []llms.ContentPart{llms.TextPart(t.Content)},
			})
		case RoleAssistant:
			var parts []llms.ContentPart
			if t.Content != "" {
				parts = append(parts, llms.TextContent{Text: t.Content})
			}
			for _, tc := range t.ToolCalls {
				parts = append(parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			if len(parts) == 0 {
				parts = append(parts, llms.TextContent{Text: ""})
			}
			messages = append(messages, llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts})
		case RoleTool:
			messages = append(messages, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{
					llms.ToolCallResponse{
						ToolCallID: t.ToolCallID,
						Name:       t.Name,
						Content:    t.Content,
					},
				},
			})
		}
	}
	return messages
}

// TrimHistory drops leading turns until the first user turn so a window
// cut never starts with an orphaned tool result. Assistant tool calls
// without a reply for every call id are removed with their partial
// replies, since model backends reject such histories.
func TrimHistory(turns []Turn) []Turn {
	start := -1
	for i, t := range turns {
		if t.Role == RoleUser {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	turns = turns[start:]

	out := make([]Turn, 0, len(turns))
	for i := 0; i < len(turns); i++ {
		t := turns[i]
		switch {
		case t.Role == RoleTool:
			// Replies are only kept together with their assistant turn.
			continue
		case t.Role == RoleAssistant && len(t.ToolCalls) > 0:
			j := i + 1
			for j < len(turns) && turns[j].Role == RoleTool {
				j++
			}
			replies := turns[i+1 : j]
			if paired(t.ToolCalls, replies) {
				out = append(out, t)
				out = append(out, replies...)
			}
			i = j - 1
		default:
			out = append(out, t)
		}
	}
	return out
}

func paired(calls []ToolCall, replies []Turn) bool {
	answered := make(map[string]bool, len(replies))
	for _, r := range replies {
		answered[r.ToolCallID] = true
	}
	for _, c := range calls {
		if !answered[c.ID] {
			return false
		}
	}
	return len(replies) == len(calls)
}
