package gateway

import (
	"context"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/tools"
)

const discordLimit = 1900

// DiscordGateway answers messages in channels and DMs the bot can read.
// Guild messages are only handled when they mention the bot.
type DiscordGateway struct {
	Session *discordgo.Session
	Brain   agent.Brain

	done chan struct{}
}

func NewDiscordGateway(token string, brain agent.Brain) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	dg := &DiscordGateway{Session: s, Brain: brain, done: make(chan struct{})}
	s.AddHandler(dg.onMessage)
	return dg, nil
}

// Start opens the session and blocks until Stop.
func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	if u := dg.Session.State.User; u != nil {
		log.Printf("Authorized on Discord as %s", u.Username)
	}
	<-dg.done
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	text, ok := addressedText(s.State.User, m)
	if !ok {
		return
	}

	log.Printf("[discord:%s] %s", m.Author.Username, text)
	_ = s.ChannelTyping(m.ChannelID)

	owner := "discord:" + m.ChannelID
	response, err := dg.Brain.Think(context.Background(), owner, text)
	if err != nil {
		log.Printf("Error thinking: %v", err)
		if response == "" {
			response = "I'm having trouble thinking right now..."
		}
	}
	if err := dg.Send(m.ChannelID, response); err != nil {
		log.Printf("Error replying to %s: %v", owner, err)
	}
}

// addressedText strips the bot mention. DMs need no mention.
func addressedText(self *discordgo.User, m *discordgo.MessageCreate) (string, bool) {
	text := strings.TrimSpace(m.Content)
	if m.GuildID == "" {
		return text, text != ""
	}
	if self == nil {
		return "", false
	}
	for _, u := range m.Mentions {
		if u.ID == self.ID {
			text = strings.NewReplacer("<@"+self.ID+">", "", "<@!"+self.ID+">", "").Replace(text)
			text = strings.TrimSpace(text)
			return text, text != ""
		}
	}
	return "", false
}

// Send accepts both a bare channel id and the "discord:<id>" owner form.
func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, channelID := tools.SplitCaller(chatID)
	for _, part := range chunks(text, discordLimit) {
		if _, err := dg.Session.ChannelMessageSend(channelID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	select {
	case <-dg.done:
	default:
		close(dg.done)
	}
	return dg.Session.Close()
}
