package agent

import (
	"context"
	"errors"
	"log"
	"sync"

	"github.com/rahul/ordermind/internal/tools"
)

// Brain defines the core intelligence interface used by chat gateways.
type Brain interface {
	Think(ctx context.Context, chatID string, input string) (string, error)
}

// HistoryStore persists conversation turns per chat.
type HistoryStore interface {
	AppendTurns(chatID string, turns []Turn) error
	GetHistory(chatID string, limit int) ([]Turn, error)
}

// ChatBrain runs one conversation loop per message, replaying the chat's
// history and persisting the new turns. Messages of one chat are handled
// one at a time.
type ChatBrain struct {
	Runner  *Runner
	History HistoryStore
	Limit   int

	mu    sync.Mutex
	chats map[string]*sync.Mutex
}

func NewChatBrain(runner *Runner, history HistoryStore, limit int) *ChatBrain {
	if limit <= 0 {
		limit = 20
	}
	return &ChatBrain{Runner: runner, History: history, Limit: limit, chats: make(map[string]*sync.Mutex)}
}

func (b *ChatBrain) lock(chatID string) func() {
	b.mu.Lock()
	m, ok := b.chats[chatID]
	if !ok {
		m = &sync.Mutex{}
		b.chats[chatID] = m
	}
	b.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Stream runs the loop for input and forwards every event to emit.
func (b *ChatBrain) Stream(ctx context.Context, chatID, input string, emit EmitFunc) (*RunResult, error) {
	defer b.lock(chatID)()
	ctx = tools.WithCaller(ctx, chatID)

	var turns []Turn
	if b.History != nil {
		past, err := b.History.GetHistory(chatID, b.Limit)
		if err != nil {
			log.Printf("Warning: failed to load history for %s: %v", chatID, err)
		}
		turns = TrimHistory(past)
	}
	user := UserTurn(input)
	turns = append(turns, user)

	res, err := b.Runner.Run(ctx, turns, emit)
	if b.History != nil && res != nil {
		persist := append([]Turn{user}, res.Turns...)
		if herr := b.History.AppendTurns(chatID, persist); herr != nil {
			log.Printf("Warning: failed to save history for %s: %v", chatID, herr)
		}
	}
	return res, err
}

func (b *ChatBrain) Think(ctx context.Context, chatID string, input string) (string, error) {
	res, err := b.Stream(ctx, chatID, input, nil)
	switch {
	case err == nil:
		return res.Text, nil
	case errors.Is(err, ErrIterationCapExceeded):
		return "I've reached the maximum number of steps for this request. Please try a simpler request.", nil
	case res != nil && res.Text != "":
		return res.Text, err
	}
	return "", err
}
