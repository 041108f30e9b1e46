package telegram

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"economic-news-bot/internal/alert"
	"economic-news-bot/internal/commands"
	"economic-news-bot/internal/timezone"
	"economic-news-bot/internal/types"
	"economic-news-bot/lib/helpers"
	"economic-news-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// messageLimit keeps rendered chunks under Telegram's 4096-character cap with
// headroom for the markup.
const messageLimit = 4000

// Dispatch renders and sends one warning or release alert. Unrecoverable
// Telegram responses come back wrapped in alert.ErrDeliveryPermanent so the
// scheduler stops retrying the key.
func (b *Bot) Dispatch(ctx context.Context, sub types.Subscriber, ev types.NewsEvent, kind types.AlertKind) error {
	return b.deliver(ctx, sub.ChatID, b.renderAlert(sub, ev, kind))
}

// DispatchSummary renders and sends the daily summary, chunked under the
// message size limit.
func (b *Bot) DispatchSummary(ctx context.Context, sub types.Subscriber, day string, events []types.NewsEvent) error {
	for _, chunk := range helpers.ChunkLines(b.renderSummary(sub, day, events), messageLimit) {
		if err := b.deliver(ctx, sub.ChatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bot) renderAlert(sub types.Subscriber, ev types.NewsEvent, kind types.AlertKind) string {
	loc := timezone.ForSubscriber(sub.Timezone, b.Store.Location())
	when := fmt.Sprintf("%s %s", ev.At.In(loc).Format("15:04"), loc.String())
	head := fmt.Sprintf("%s *%s* %s %s",
		helpers.CurrencyFlag(ev.Currency), ev.Currency, ev.Impact.Emoji(),
		helpers.EscapeMarkdownV2(ev.Title))

	if kind == types.AlertWarning {
		minutes := int(math.Round(time.Until(ev.At).Minutes()))
		if minutes < 1 {
			minutes = 1
		}
		tail := fmt.Sprintf(translation.TranslateN(
			"Releases in %d minute (%s)", "Releases in %d minutes (%s)", minutes), minutes, when)
		return "⚠️ " + head + "\n" + helpers.EscapeMarkdownV2(tail)
	}

	tail := fmt.Sprintf(translation.Translate("Released at %s"), when)
	return "🔔 " + head + "\n" + helpers.EscapeMarkdownV2(tail)
}

func (b *Bot) renderSummary(sub types.Subscriber, day string, events []types.NewsEvent) string {
	loc := timezone.ForSubscriber(sub.Timezone, b.Store.Location())

	displayDay := day
	if d, err := time.Parse("2006-01-02", day); err == nil {
		displayDay = d.Format("Mon, 02 Jan 2006")
	}

	var bld strings.Builder
	bld.WriteString(fmt.Sprintf("🗞 *%s*\n\n",
		helpers.EscapeMarkdownV2(fmt.Sprintf(translation.Translate("Economic calendar for %s"), displayDay))))

	if len(events) == 0 {
		bld.WriteString(translation.Translate("No news today for your filters\\."))
		return bld.String()
	}
	for _, ev := range events {
		bld.WriteString(commands.FormatEventLine(ev, loc))
		bld.WriteString("\n")
	}
	return strings.TrimRight(bld.String(), "\n")
}

// deliver sends one rendered message. tgbotapi has no per-request context, so
// the attempt timeout is approximated by the ctx check here plus the API
// client's own HTTP timeout.
func (b *Bot) deliver(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	msg.ParseMode = "MarkdownV2"
	_, err := b.Bot.Send(msg)
	return classifyDeliveryError(err)
}

// classifyDeliveryError separates permanent Telegram failures (bot blocked,
// chat gone) from transient ones worth a retry.
func classifyDeliveryError(err error) error {
	if err == nil {
		return nil
	}
	var tgErr *tgbotapi.Error
	if errors.As(err, &tgErr) && (tgErr.Code == 403 || tgErr.Code == 400) {
		return errors.Wrapf(alert.ErrDeliveryPermanent, "telegram %d: %s", tgErr.Code, tgErr.Message)
	}
	return errors.Wrap(err, "could not send message")
}
