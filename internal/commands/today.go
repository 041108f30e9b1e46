package commands

import (
	"fmt"
	"strings"
	"time"

	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/timezone"
	"economic-news-bot/internal/types"
	"economic-news-bot/lib/helpers"
	"economic-news-bot/lib/translation"

	log "github.com/sirupsen/logrus"
)

// CommandToday lists today's events matching the chat's summary filters,
// times shown in the chat's display zone.
func CommandToday(store *calendar.Store, sub types.Subscriber, now time.Time) string {
	log.Debugf("processing command /today for chat %d", sub.ChatID)

	day := now.In(store.Location()).Format(dayLayout)
	events := summaryEvents(store, sub, day)
	loc := timezone.ForSubscriber(sub.Timezone, store.Location())

	if len(events) == 0 {
		return translation.Translate("No news today for your filters\\. Check /state for the current settings\\.")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("🗞 *%s* — %s\n\n",
		helpers.EscapeMarkdownV2(translation.Translate("Today's economic calendar")),
		FormatEventCount(len(events))))
	for _, ev := range events {
		b.WriteString(FormatEventLine(ev, loc))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func summaryEvents(store *calendar.Store, sub types.Subscriber, day string) []types.NewsEvent {
	var out []types.NewsEvent
	for _, ev := range store.Query(calendar.Filter{Day: day}) {
		if sub.WantsSummary(ev) {
			out = append(out, ev)
		}
	}
	return out
}
