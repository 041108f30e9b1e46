package telegram

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"economic-news-bot/internal/alert"
	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/subscription"
)

// BotConfig configuration of the bot
type BotConfig struct {
	Token          string
	Debug          bool
	UpdatesTimeout int
}

// Bot telegram interaction client. It is both the command surface and the
// scheduler's dispatcher.
type Bot struct {
	Bot      *tgbotapi.BotAPI
	Config   BotConfig
	Store    *calendar.Store
	Registry *subscription.Registry
	Ledger   *alert.Ledger

	// tzPromptChats maps a force-reply prompt message to the chat waiting
	// for a timezone reply.
	tzPromptChats map[int]int64
}

// Message a telegram message struct
type Message struct {
	ChatID    int
	MessageID int
	Text      string
}
