package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// WhatsAppSender delivers a text message to an international phone number.
type WhatsAppSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
}

// CloudAPIClient talks to the WhatsApp Business Cloud API.
type CloudAPIClient struct {
	BaseURL       string // e.g. https://graph.facebook.com/v19.0
	PhoneNumberID string
	Token         string
	HTTP          *http.Client
}

func NewCloudAPIClient(baseURL, phoneNumberID, token string) *CloudAPIClient {
	if baseURL == "" {
		baseURL = "https://graph.facebook.com/v19.0"
	}
	return &CloudAPIClient{
		BaseURL:       strings.TrimRight(baseURL, "/"),
		PhoneNumberID: phoneNumberID,
		Token:         token,
		HTTP:          &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *CloudAPIClient) SendText(ctx context.Context, to, body string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                strings.TrimPrefix(to, "+"),
		"type":              "text",
		"text":              map[string]any{"body": body},
	})
	if err != nil {
		return "", err
	}
	endpoint := fmt.Sprintf("%s/%s/messages", c.BaseURL, c.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("whatsapp api: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var out struct {
		Messages []struct {
			ID string `json:"id"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("whatsapp api: bad response: %w", err)
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("whatsapp api: no message id in response")
	}
	return out.Messages[0].ID, nil
}

// SendWhatsAppTool sends a WhatsApp text to a customer.
type SendWhatsAppTool struct {
	Sender WhatsAppSender
}

func (t *SendWhatsAppTool) Describe() Descriptor {
	return Descriptor{
		Name:        "send_whatsapp",
		Description: "Send a WhatsApp text message to a phone number in international format. Requires confirmed=true.",
		Risk:        RiskHigh,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"phone":     map[string]any{"type": "string", "description": "Recipient phone, e.g. +14155550123"},
				"text":      map[string]any{"type": "string", "description": "Message body"},
				"confirmed": map[string]any{"type": "boolean", "description": "Set to true after the user approved sending"},
			},
			"required": []string{"phone", "text"},
		},
	}
}

func (t *SendWhatsAppTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	phone := stringArg(args, "phone")
	text := stringArg(args, "text")
	if text == "" {
		return Errorf("text is required"), nil
	}
	if !e164.MatchString(phone) {
		return ErrorResult(
			fmt.Sprintf("invalid phone number %q: expected international format like +14155550123", phone),
			map[string]any{"field": "phone"},
		), nil
	}
	id, err := t.Sender.SendText(ctx, phone, text)
	if err != nil {
		return nil, err
	}
	return Result{"type": "message_sent", "channel": "whatsapp", "to": phone, "message_id": id}, nil
}

// ChatSender is a chat gateway able to push a message to a chat.
type ChatSender interface {
	Send(chatID string, text string) error
}

// SendNotificationTool pushes a message through a chat gateway.
type SendNotificationTool struct {
	Channels map[string]ChatSender
}

func (t *SendNotificationTool) Describe() Descriptor {
	names := make([]string, 0, len(t.Channels))
	for name := range t.Channels {
		names = append(names, name)
	}
	return Descriptor{
		Name:        "send_notification",
		Description: "Send a message to a Telegram or Discord chat. Defaults to the current chat. Requires confirmed=true.",
		Risk:        RiskHigh,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"channel":   map[string]any{"type": "string", "enum": names, "description": "Gateway to use (defaults to the current chat's)"},
				"chat_id":   map[string]any{"type": "string", "description": "Target chat id (defaults to the current chat)"},
				"text":      map[string]any{"type": "string", "description": "Message body"},
				"confirmed": map[string]any{"type": "boolean", "description": "Set to true after the user approved sending"},
			},
			"required": []string{"text"},
		},
	}
}

func (t *SendNotificationTool) Invoke(ctx context.Context, args map[string]any) (Result, error) {
	callerChannel, callerChat := SplitCaller(CallerFrom(ctx))
	channel := strings.ToLower(stringArg(args, "channel"))
	if channel == "" {
		channel = callerChannel
	}
	sender, ok := t.Channels[channel]
	if !ok {
		return Errorf("unknown channel %q", channel), nil
	}
	chatID := stringArg(args, "chat_id")
	if prefix, rest := SplitCaller(chatID); prefix == channel {
		chatID = rest
	}
	if chatID == "" && (callerChannel == "" || callerChannel == channel) {
		chatID = callerChat
	}
	text := stringArg(args, "text")
	if chatID == "" || text == "" {
		return Errorf("chat_id and text are required"), nil
	}
	if err := sender.Send(chatID, text); err != nil {
		return nil, err
	}
	return Result{"type": "message_sent", "channel": channel, "to": chatID}, nil
}
