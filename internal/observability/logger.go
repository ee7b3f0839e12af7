package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeToolCall     EventType = "tool_call"
	EventTypeToolResult   EventType = "tool_result"
	EventTypePolicyCheck  EventType = "policy_check"
	EventTypeContextUsage EventType = "context_usage"
	EventTypePlan         EventType = "plan"
	EventTypeCritic       EventType = "critic"
	EventTypeWorkflow     EventType = "workflow"
	EventTypeHeartbeat    EventType = "heartbeat"
	EventTypeLLM          EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	ChatID    string    `json:"chat_id,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging. Every event goes to out as one JSON
// line; model transcripts are also appended to a rotated jsonl file.
type Logger struct {
	mu         sync.Mutex
	out        io.Writer
	llmLogPath string
	maxSize    int64
}

func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = "logs"
	}
	return &Logger{
		out:        os.Stdout,
		llmLogPath: filepath.Join(dir, "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// NewWriterLogger logs to w only; transcripts are not persisted.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{out: w}
}

// Log emits a structured JSON event.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		data = []byte(fmt.Sprintf(`{"error": "failed to marshal event: %v"}`, err))
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))

	if evt.Type == EventTypeLLM && l.llmLogPath != "" {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogToolCall(chatID, tool string, args map[string]any) {
	l.Log(Event{
		Type:   EventTypeToolCall,
		ChatID: chatID,
		Data: map[string]any{
			"tool": tool,
			"args": args,
		},
	})
}

func (l *Logger) LogToolResult(chatID, tool, resultType string, attempts int) {
	l.Log(Event{
		Type:   EventTypeToolResult,
		ChatID: chatID,
		Data: map[string]any{
			"tool":     tool,
			"type":     resultType,
			"attempts": attempts,
		},
	})
}

func (l *Logger) LogPolicyCheck(chatID, tool string, allowed bool, risk, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		ChatID: chatID,
		Data: map[string]any{
			"tool":    tool,
			"allowed": allowed,
			"risk":    risk,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogContextUsage(chatID string, promptTokens, completionTokens, window int, model string) {
	l.Log(Event{
		Type:   EventTypeContextUsage,
		ChatID: chatID,
		Data: map[string]any{
			"prompt_tokens":     promptTokens,
			"completion_tokens": completionTokens,
			"total_tokens":      promptTokens + completionTokens,
			"window":            window,
			"model":             model,
		},
	})
}

func (l *Logger) LogPlan(chatID string, plan any) {
	l.Log(Event{Type: EventTypePlan, ChatID: chatID, Data: plan})
}

func (l *Logger) LogCritic(chatID, tool string, verdict any) {
	l.Log(Event{
		Type:   EventTypeCritic,
		ChatID: chatID,
		Data: map[string]any{
			"tool":    tool,
			"verdict": verdict,
		},
	})
}

func (l *Logger) LogWorkflow(taskID, event string, affected int) {
	l.Log(Event{
		Type:   EventTypeWorkflow,
		TaskID: taskID,
		Data: map[string]any{
			"event":    event,
			"affected": affected,
		},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}

func (l *Logger) LogLLM(chatID string, prompt any, response string, toolCalls any) {
	l.Log(Event{
		Type:   EventTypeLLM,
		ChatID: chatID,
		Data: map[string]any{
			"prompt":     prompt,
			"response":   response,
			"tool_calls": toolCalls,
		},
	})
}
