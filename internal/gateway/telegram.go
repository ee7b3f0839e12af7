package gateway

import (
	"context"
	"fmt"
	"log"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/rahul/ordermind/internal/agent"
	"github.com/rahul/ordermind/internal/tools"
)

const telegramLimit = 4000

type TelegramGateway struct {
	Bot   *tgbotapi.BotAPI
	Brain agent.Brain
}

func NewTelegramGateway(token string, brain agent.Brain) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:   bot,
		Brain: brain,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil || update.Message.Text == "" {
			continue
		}

		log.Printf("[telegram:%s] %s", update.Message.From.UserName, update.Message.Text)

		chatID := update.Message.Chat.ID
		_, _ = tg.Bot.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))

		owner := fmt.Sprintf("telegram:%d", chatID)
		response, err := tg.Brain.Think(context.Background(), owner, update.Message.Text)
		if err != nil {
			log.Printf("Error thinking: %v", err)
			if response == "" {
				response = "I'm having trouble thinking right now..."
			}
		}

		for _, part := range chunks(response, telegramLimit) {
			if _, err := tg.Bot.Send(tgbotapi.NewMessage(chatID, part)); err != nil {
				log.Printf("Error replying to %s: %v", owner, err)
				break
			}
		}
	}
	return nil
}

// Send accepts both a bare chat id and the "telegram:<id>" owner form.
func (tg *TelegramGateway) Send(chatID string, text string) error {
	_, raw := tools.SplitCaller(chatID)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range chunks(text, telegramLimit) {
		msg := tgbotapi.NewMessage(id, part)
		msg.ParseMode = tgbotapi.ModeMarkdown
		if _, err := tg.Bot.Send(msg); err != nil {
			// Retry as plain text; model output is not always valid Markdown.
			msg.ParseMode = ""
			if _, err := tg.Bot.Send(msg); err != nil {
				return err
			}
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
