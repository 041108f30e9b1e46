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

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// CommandState shows the chat's filters, zone and summary time, plus the
// freshness of the loaded calendar data.
func CommandState(store *calendar.Store, sub types.Subscriber, now time.Time) string {
	log.Debugf("processing command /state for chat %d", sub.ChatID)

	zone := sub.Timezone
	if zone == "" {
		zone = store.Location().String()
	}
	daily := sub.DailyTime
	if daily == "" {
		daily = translation.Translate("off")
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("*%s*\n\n", helpers.EscapeMarkdownV2(translation.Translate("Settings for this chat"))))
	b.WriteString(fmt.Sprintf("▫️ %s: `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Summary currencies")), formatCurrencySet(sub.SummaryCurrencies)))
	b.WriteString(fmt.Sprintf("▫️ %s: `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Alert currencies")), formatCurrencySet(sub.AlertCurrencies)))
	b.WriteString(fmt.Sprintf("▫️ %s: `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Impacts")), formatImpactSet(sub.Impacts)))
	b.WriteString(fmt.Sprintf("▫️ %s: `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Timezone")), helpers.EscapePre(zone)))
	b.WriteString(fmt.Sprintf("▫️ %s: `%s`\n", helpers.EscapeMarkdownV2(translation.Translate("Daily summary")), daily))

	b.WriteString(fmt.Sprintf("\n*%s*\n", helpers.EscapeMarkdownV2(translation.Translate("Calendar data"))))
	days := store.LoadedDays()
	if len(days) == 0 {
		b.WriteString(helpers.EscapeMarkdownV2(translation.Translate("No calendar data loaded.")))
		return b.String()
	}
	for _, day := range days {
		n := len(store.Query(calendar.Filter{Day: day}))
		line := fmt.Sprintf("▫️ `%s`: %s", day, FormatEventCount(n))
		if loadedAt, ok := store.LoadedAt(day); ok {
			line += fmt.Sprintf(", %s %s",
				helpers.EscapeMarkdownV2(translation.Translate("refreshed")),
				helpers.EscapeMarkdownV2(humanize.Time(loadedAt)))
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("▫️ %s: %s",
		helpers.EscapeMarkdownV2(translation.Translate("Total events")),
		helpers.FormatCountUS(store.Count())))
	return b.String()
}

// CommandNow shows the current instant in the reference zone and the chat's
// display zone.
func CommandNow(sub types.Subscriber, refZone *time.Location, now time.Time) string {
	log.Debugf("processing command /now for chat %d", sub.ChatID)

	loc := timezone.ForSubscriber(sub.Timezone, refZone)
	const layout = "02 Jan 2006 15:04"
	return fmt.Sprintf("🕐 %s \\(`%s`\\): `%s`\n🕐 %s \\(`%s`\\): `%s`",
		helpers.EscapeMarkdownV2(translation.Translate("Reference time")),
		helpers.EscapePre(refZone.String()),
		now.In(refZone).Format(layout),
		helpers.EscapeMarkdownV2(translation.Translate("Your time")),
		helpers.EscapePre(loc.String()),
		now.In(loc).Format(layout))
}
