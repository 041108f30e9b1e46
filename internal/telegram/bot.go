package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	"economic-news-bot/internal/alert"
	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/commands"
	"economic-news-bot/internal/subscription"
	"economic-news-bot/internal/types"
	"economic-news-bot/lib/helpers"
	"economic-news-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig, store *calendar.Store, registry *subscription.Registry, ledger *alert.Ledger) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	bot.Debug = c.Debug

	return &Bot{
		Bot:           bot,
		Config:        c,
		Store:         store,
		Registry:      registry,
		Ledger:        ledger,
		tzPromptChats: make(map[int]int64),
	}, nil
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() (tgbotapi.UpdatesChannel, error) {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.Bot.GetUpdatesChan(updatesConfig), nil
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(int64(m.ChatID), m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return errors.Wrapf(err, "could not send message: %v", m)
}

// HandleUpdate processes Telegram updates
func (b *Bot) HandleUpdate(u tgbotapi.Update) string {
	text := b.helpText()
	log.Debugf("received command: %s", u.Message.Command())

	chatID := u.Message.Chat.ID
	args := strings.Fields(u.Message.CommandArguments())
	now := time.Now()

	switch u.Message.Command() {
	case "ping":
		text = "pong"
	case "source":
		text = "https://github\\.com/economic\\-news\\-bot/bot"
	case "start":
		if _, err := b.Registry.Ensure(chatID); err != nil {
			log.Error(err)
			text = translation.Translate("Failed to save settings\\. Please try again later\\.")
		} else {
			text = b.welcomeText()
		}
	case "stop":
		if !b.canConfigure(u.Message) {
			text = translation.Translate("Only chat administrators can change settings here\\.")
			break
		}
		if err := b.Registry.Remove(chatID); err != nil {
			log.Error(err)
			text = translation.Translate("Failed to save settings\\. Please try again later\\.")
		} else {
			text = translation.Translate("Subscription removed\\. Send /start to subscribe again\\.")
		}
	case "help":
		text = b.helpText()
	case "today":
		sub, err := b.Registry.Get(chatID)
		if err != nil {
			log.Error(err)
			break
		}
		if len(args) > 0 && strings.EqualFold(args[0], "chart") {
			if b.sendTodayChart(u, sub, now) {
				return ""
			}
		}
		return b.sendChunked(chatID, u.Message.MessageID, commands.CommandToday(b.Store, sub, now))
	case "state":
		sub, err := b.Registry.Get(chatID)
		if err != nil {
			log.Error(err)
			break
		}
		text = commands.CommandState(b.Store, sub, now)
	case "now":
		sub, err := b.Registry.Get(chatID)
		if err != nil {
			log.Error(err)
			break
		}
		text = commands.CommandNow(sub, b.Store.Location(), now)
	case "currencies":
		text = b.handleSettings(u.Message, func() (types.Subscriber, error) {
			return b.Registry.SetSummaryCurrencies(chatID, args)
		}, func(sub types.Subscriber) string {
			return fmt.Sprintf(translation.Translate("Summary currencies set to `%s`\\."), formatSet(sub.SummaryCurrencies))
		})
	case "impacts":
		text = b.handleSettings(u.Message, func() (types.Subscriber, error) {
			return b.Registry.SetImpacts(chatID, args)
		}, func(sub types.Subscriber) string {
			return fmt.Sprintf(translation.Translate("Impact filter set to `%s`\\."), formatImpacts(sub.Impacts))
		})
	case "alerts":
		if len(args) == 0 {
			if !b.canConfigure(u.Message) {
				text = translation.Translate("Only chat administrators can change settings here\\.")
				break
			}
			b.sendAlertsKeyboard(chatID)
			return ""
		}
		text = b.handleSettings(u.Message, func() (types.Subscriber, error) {
			return b.Registry.SetAlertCurrencies(chatID, args)
		}, alertConfirmation)
	case "daily":
		text = b.handleSettings(u.Message, func() (types.Subscriber, error) {
			return b.Registry.SetDailyTime(chatID, strings.Join(args, " "))
		}, func(sub types.Subscriber) string {
			if sub.DailyTime == "" {
				return translation.Translate("Daily summary switched off\\.")
			}
			return fmt.Sprintf(translation.Translate("Daily summary set to `%s` in your timezone\\."), sub.DailyTime)
		})
	case "timezone":
		if len(args) == 0 {
			if !b.canConfigure(u.Message) {
				text = translation.Translate("Only chat administrators can change settings here\\.")
				break
			}
			b.promptTimezone(chatID)
			return ""
		}
		text = b.handleSettings(u.Message, func() (types.Subscriber, error) {
			return b.Registry.SetTimezone(chatID, strings.Join(args, " "))
		}, func(sub types.Subscriber) string {
			return fmt.Sprintf(translation.Translate("Timezone set to `%s`\\."), helpers.EscapePre(sub.Timezone))
		})
	case "refresh":
		if !b.canConfigure(u.Message) {
			text = translation.Translate("Only chat administrators can refresh the calendar\\.")
			break
		}
		text = b.refreshCalendar(now)
	case "quote":
		quote, err := commands.CommandQuote()
		if err != nil {
			log.Error(err)
			text = translation.Translate("No quote right now, try again later\\.")
		} else {
			text = quote
		}
	case "debug":
		if !b.Config.Debug || !b.canConfigure(u.Message) {
			break
		}
		subs, err := b.Registry.All()
		if err != nil {
			log.Error(err)
			break
		}
		return b.sendChunked(chatID, u.Message.MessageID, commands.CommandDebug(b.Store, b.Ledger, subs))
	}

	return text
}

// handleSettings runs one registry mutation behind the admin gate and renders
// either the confirmation or the validation error.
func (b *Bot) handleSettings(msg *tgbotapi.Message, mutate func() (types.Subscriber, error), confirm func(types.Subscriber) string) string {
	if !b.canConfigure(msg) {
		return translation.Translate("Only chat administrators can change settings here\\.")
	}

	sub, err := mutate()
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidConfig) {
			return helpers.EscapeMarkdownV2(err.Error())
		}
		log.Error(err)
		return translation.Translate("Failed to save settings\\. Please try again later\\.")
	}
	return confirm(sub)
}

// canConfigure reports whether the sender may mutate this chat's settings:
// anyone in a private chat, administrators elsewhere.
func (b *Bot) canConfigure(msg *tgbotapi.Message) bool {
	if msg.Chat.IsPrivate() {
		return true
	}
	if msg.From == nil {
		// Channel posts have no sender; only admins can post there.
		return msg.Chat.IsChannel()
	}

	member, err := b.Bot.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: msg.Chat.ID,
			UserID: msg.From.ID,
		},
	})
	if err != nil {
		log.Error("failed to check chat member: ", err)
		return false
	}
	return member.IsAdministrator() || member.IsCreator()
}

// sendTodayChart sends the schedule chart as a photo; false means the caller
// should fall back to the text listing.
func (b *Bot) sendTodayChart(u tgbotapi.Update, sub types.Subscriber, now time.Time) bool {
	chartData, caption, err := commands.CommandTodayChart(b.Store, sub, now)
	if err != nil {
		log.Error(err)
		return false
	}

	photo := tgbotapi.NewPhoto(u.Message.Chat.ID, tgbotapi.FileBytes{
		Name:  "today.png",
		Bytes: chartData,
	})
	photo.Caption = caption
	photo.ParseMode = "MarkdownV2"
	photo.ReplyToMessageID = u.Message.MessageID
	if _, err = b.Bot.Send(photo); err != nil {
		log.Error("error sending chart:", err)
	}
	return true
}

// sendChunked sends long listings in message-sized pieces. A single chunk is
// returned to the caller to send as the command reply.
func (b *Bot) sendChunked(chatID int64, messageID int, text string) string {
	chunks := helpers.ChunkLines(text, messageLimit)
	if len(chunks) == 1 {
		return text
	}
	for _, chunk := range chunks {
		if err := b.SendMessage(Message{ChatID: int(chatID), MessageID: messageID, Text: chunk}); err != nil {
			log.Error(err)
		}
		messageID = 0
	}
	return ""
}

func (b *Bot) refreshCalendar(now time.Time) string {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	refNow := now.In(b.Store.Location())
	total := 0
	for _, day := range []string{refNow.Format("2006-01-02"), refNow.AddDate(0, 0, 1).Format("2006-01-02")} {
		count, err := b.Store.LoadDay(ctx, day)
		if err != nil {
			log.Error(err)
			return translation.Translate("Calendar data unavailable, kept the previous data\\.")
		}
		total += count
	}
	return fmt.Sprintf(translation.Translate("Calendar refreshed, %d events loaded\\."), total)
}

// sendAlertsKeyboard offers the per-currency toggles plus All and Off.
func (b *Bot) sendAlertsKeyboard(chatID int64) {
	var rows [][]tgbotapi.InlineKeyboardButton
	var row []tgbotapi.InlineKeyboardButton
	for _, c := range types.KnownCurrencies {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(
			fmt.Sprintf("%s %s", helpers.CurrencyFlag(c), c),
			"alerts_set|"+c,
		))
		if len(row) == 3 {
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(translation.Translate("All"), "alerts_set|ALL"),
		tgbotapi.NewInlineKeyboardButtonData(translation.Translate("Off"), "alerts_set|OFF"),
	))

	msg := tgbotapi.NewMessage(chatID, translation.Translate("Pick the currencies to get real\\-time alerts for:"))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.Bot.Send(msg); err != nil {
		log.Error("failed to send alert currency buttons: ", err)
	}
}

func (b *Bot) HandleCallbackQuery(callbackQuery *tgbotapi.CallbackQuery) {
	data := callbackQuery.Data
	chatID := callbackQuery.Message.Chat.ID
	messageID := callbackQuery.Message.MessageID

	if !strings.HasPrefix(data, "alerts_set|") {
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Unknown action. Please try again.")))
		return
	}

	parts := strings.Split(data, "|")
	if len(parts) < 2 {
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Invalid selection.")))
		return
	}

	var sub types.Subscriber
	var err error
	switch parts[1] {
	case "ALL":
		sub, err = b.Registry.SetAlertCurrencies(chatID, []string{types.CurrencyAll})
	case "OFF":
		sub, err = b.Registry.SetAlertCurrencies(chatID, nil)
	default:
		sub, err = b.Registry.ToggleAlertCurrency(chatID, parts[1])
	}
	if err != nil {
		log.Error(err)
		b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Failed to save alert settings. Please try again later.")))
		return
	}

	// Delete the options message
	deleteMsg := tgbotapi.NewDeleteMessage(chatID, messageID)
	if _, err := b.Bot.Request(deleteMsg); err != nil {
		log.Error("Failed to delete options message: ", err)
	}

	msg := tgbotapi.NewMessage(chatID, alertConfirmation(sub))
	msg.ParseMode = "MarkdownV2"
	b.Bot.Send(msg)
	b.Bot.Send(tgbotapi.NewCallback(callbackQuery.ID, translation.Translate("Alert settings saved.")))
}

// promptTimezone asks for the zone with a force-reply message; the reply is
// picked up by HandleReply.
func (b *Bot) promptTimezone(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, translation.Translate("Reply with your timezone: an IANA name like `Europe/Warsaw` or an offset like `UTC+2`\\."))
	msg.ParseMode = "MarkdownV2"
	msg.ReplyMarkup = tgbotapi.ForceReply{
		ForceReply:            true,
		Selective:             true,
		InputFieldPlaceholder: translation.Translate("e.g., Europe/Warsaw"),
	}

	m, err := b.Bot.Send(msg)
	if err != nil {
		log.Error("Failed to prompt for timezone: ", err)
		return
	}
	b.tzPromptChats[m.MessageID] = chatID
}

func (b *Bot) HandleReply(message *tgbotapi.Message) {
	if message.ReplyToMessage == nil {
		return
	}

	chatID, exists := b.tzPromptChats[message.ReplyToMessage.MessageID]
	if !exists {
		return
	}

	sub, err := b.Registry.SetTimezone(chatID, strings.TrimSpace(message.Text))
	if err != nil {
		if errors.Is(err, subscription.ErrInvalidConfig) {
			b.SendMessage(Message{
				ChatID:    int(chatID),
				MessageID: message.MessageID,
				Text:      helpers.EscapeMarkdownV2(err.Error()),
			})
			return
		}
		log.Error(err)
		b.SendMessage(Message{
			ChatID: int(chatID),
			Text:   translation.Translate("Failed to save settings\\. Please try again later\\."),
		})
		return
	}

	delete(b.tzPromptChats, message.ReplyToMessage.MessageID)
	b.SendMessage(Message{
		ChatID: int(chatID),
		Text:   fmt.Sprintf(translation.Translate("Timezone set to `%s`\\."), helpers.EscapePre(sub.Timezone)),
	})
}

func alertConfirmation(sub types.Subscriber) string {
	if len(sub.AlertCurrencies) == 0 {
		return translation.Translate("Real\\-time alerts switched off\\.")
	}
	return fmt.Sprintf(translation.Translate("Real\\-time alerts on for `%s`\\."), formatSet(sub.AlertCurrencies))
}

func formatSet(set []string) string {
	for _, c := range set {
		if c == types.CurrencyAll {
			return translation.Translate("all currencies")
		}
	}
	return strings.Join(set, ", ")
}

func formatImpacts(set []types.Impact) string {
	names := make([]string, 0, len(set))
	for _, i := range set {
		names = append(names, i.String())
	}
	return strings.Join(names, ", ")
}

func (b *Bot) welcomeText() string {
	return translation.Translate("Subscribed\\! You will get a daily summary of USD news at `07:00`\\.\nUse /help to see every command, /alerts to enable real\\-time alerts\\.")
}

func (b *Bot) helpText() string {
	return translation.Translate(`*Economic news bot*

/start \- subscribe this chat with the default settings
/stop \- remove this chat's subscription
/today \- today's events for your filters \(add "chart" for a picture\)
/state \- current settings and data freshness
/currencies \- set summary currencies, e\.g\. ` + "`/currencies USD EUR`" + ` or ` + "`all`" + `
/impacts \- set the impact filter, e\.g\. ` + "`/impacts high medium`" + `
/alerts \- set real\-time alert currencies \(no argument shows buttons\)
/daily \- daily summary time, e\.g\. ` + "`/daily 07:30`" + ` or ` + "`off`" + `
/timezone \- set your display timezone
/now \- current reference and local time
/refresh \- reload the calendar files
/quote \- a random quote`)
}
