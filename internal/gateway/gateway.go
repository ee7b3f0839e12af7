package gateway

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rahul/ordermind/internal/tools"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

// Router delivers messages addressed to "channel:chat" owners through the
// gateway registered for that channel.
type Router struct {
	mu       sync.RWMutex
	channels map[string]Messenger
}

func NewRouter() *Router {
	return &Router{channels: make(map[string]Messenger)}
}

// Add registers m under channel. A later Add for the same channel wins.
func (r *Router) Add(channel string, m Messenger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[strings.ToLower(channel)] = m
}

func (r *Router) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.channels))
	for name := range r.channels {
		out = append(out, name)
	}
	return out
}

// Send routes text to owner, which must carry a channel prefix.
func (r *Router) Send(owner string, text string) error {
	channel, chatID := tools.SplitCaller(owner)
	if channel == "" {
		return fmt.Errorf("owner %q has no channel prefix", owner)
	}
	r.mu.RLock()
	m, ok := r.channels[channel]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no gateway for channel %q", channel)
	}
	return m.Send(chatID, text)
}

// Sender returns a ChatSender bound to channel. It resolves the gateway at
// send time, so it can be handed to tools before the gateway exists.
func (r *Router) Sender(channel string) tools.ChatSender {
	return channelSender{router: r, channel: strings.ToLower(channel)}
}

type channelSender struct {
	router  *Router
	channel string
}

func (s channelSender) Send(chatID, text string) error {
	return s.router.Send(s.channel+":"+chatID, text)
}

// chunks splits text into pieces of at most limit runes, preferring line
// breaks. Chat platforms reject oversized messages.
func chunks(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var out []string
	for len(runes) > limit {
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i + 1
				break
			}
		}
		out = append(out, string(runes[:cut]))
		runes = runes[cut:]
	}
	if len(runes) > 0 {
		out = append(out, string(runes))
	}
	return out
}
