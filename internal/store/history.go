package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rahul/ordermind/internal/agent"
)

// HistoryStore persists conversation turns per chat.
type HistoryStore struct {
	DB *sql.DB
}

func NewHistoryStore(db *sql.DB) *HistoryStore {
	return &HistoryStore{DB: db}
}

// AppendTurns stores turns in order within one transaction.
func (h *HistoryStore) AppendTurns(chatID string, turns []agent.Turn) error {
	tx, err := h.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `INSERT INTO messages (chat_id, role, content, tool_calls, tool_call_id, name) VALUES (?, ?, ?, ?, ?, ?)`
	for _, t := range turns {
		var calls any
		if len(t.ToolCalls) > 0 {
			data, err := json.Marshal(t.ToolCalls)
			if err != nil {
				return fmt.Errorf("failed to encode tool calls: %w", err)
			}
			calls = string(data)
		}
		if _, err := tx.Exec(query, chatID, string(t.Role), t.Content, calls, t.ToolCallID, t.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetHistory returns the most recent limit turns in chronological order.
func (h *HistoryStore) GetHistory(chatID string, limit int) ([]agent.Turn, error) {
	query := `SELECT role, content, tool_calls, tool_call_id, name FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?`
	rows, err := h.DB.Query(query, chatID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []agent.Turn
	for rows.Next() {
		var role, content string
		var calls, callID, name sql.NullString
		if err := rows.Scan(&role, &content, &calls, &callID, &name); err != nil {
			return nil, err
		}
		t := agent.Turn{
			Role:       agent.Role(role),
			Content:    content,
			ToolCallID: callID.String,
			Name:       name.String,
		}
		if calls.Valid && calls.String != "" {
			if err := json.Unmarshal([]byte(calls.String), &t.ToolCalls); err != nil {
				return nil, fmt.Errorf("failed to decode tool calls: %w", err)
			}
		}
		history = append(history, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse to get chronological order
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// Clear forgets a chat's history.
func (h *HistoryStore) Clear(chatID string) error {
	_, err := h.DB.Exec(`DELETE FROM messages WHERE chat_id = ?`, chatID)
	return err
}
