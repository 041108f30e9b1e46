package commands

import (
	"fmt"
	"strings"
	"time"

	"economic-news-bot/internal/types"
	"economic-news-bot/lib/helpers"
	"economic-news-bot/lib/translation"
)

const dayLayout = "2006-01-02"

// FormatEventLine renders one calendar entry for a list: impact emoji,
// currency flag, clock in the display zone, title.
func FormatEventLine(ev types.NewsEvent, loc *time.Location) string {
	clock := translation.Translate("All day")
	if ev.HasTime {
		clock = ev.At.In(loc).Format("15:04")
	}
	return fmt.Sprintf("%s %s `%s` %s", ev.Impact.Emoji(), helpers.CurrencyFlag(ev.Currency), clock, helpers.EscapeMarkdownV2(ev.Title))
}

func FormatEventCount(n int) string {
	return helpers.EscapeMarkdownV2(fmt.Sprintf(translation.TranslateN("%d event", "%d events", n), n))
}

// formatCurrencySet renders a stored currency set for display.
func formatCurrencySet(set []string) string {
	if len(set) == 0 {
		return translation.Translate("off")
	}
	for _, c := range set {
		if c == types.CurrencyAll {
			return translation.Translate("all")
		}
	}
	return strings.Join(set, ", ")
}

func formatImpactSet(set []types.Impact) string {
	names := make([]string, 0, len(set))
	for _, i := range set {
		names = append(names, i.String())
	}
	return strings.Join(names, ", ")
}
