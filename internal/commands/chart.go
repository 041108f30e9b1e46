package commands

import (
	"fmt"
	"log"
	"time"

	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/chart"
	"economic-news-bot/internal/timezone"
	"economic-news-bot/internal/types"
	"economic-news-bot/lib/helpers"
	"economic-news-bot/lib/translation"

	"github.com/pkg/errors"
)

// CommandTodayChart renders today's schedule as a PNG with a caption. Results
// are cached per chat and day for a few minutes. Days without timed events
// return an error; the caller falls back to the text listing.
func CommandTodayChart(store *calendar.Store, sub types.Subscriber, now time.Time) ([]byte, string, error) {
	log.Printf("processing command /today chart for chat %d", sub.ChatID)

	day := now.In(store.Location()).Format(dayLayout)
	cacheKey := fmt.Sprintf("today-chart|%d|%s", sub.ChatID, day)
	if cachedItem, found := cacheGet(cacheKey); found {
		log.Printf("returning cached chart for %s", cacheKey)
		return cachedItem.ChartData, cachedItem.Caption, nil
	}

	events := summaryEvents(store, sub, day)
	loc := timezone.ForSubscriber(sub.Timezone, store.Location())

	chartData, err := chart.RenderDay(day, events, loc)
	if err != nil {
		return nil, "", errors.Wrap(err, "command /today chart")
	}

	timed := 0
	for _, ev := range events {
		if ev.HasTime {
			timed++
		}
	}
	caption := fmt.Sprintf("🗞 *%s* — %s",
		helpers.EscapeMarkdownV2(translation.Translate("Today's schedule")),
		FormatEventCount(timed))

	cacheSet(cacheKey, chartData, caption, 5*time.Minute)
	return chartData, caption, nil
}
