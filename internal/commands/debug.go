package commands

import (
	"economic-news-bot/internal/alert"
	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/types"
	"economic-news-bot/lib/helpers"

	"github.com/davecgh/go-spew/spew"
)

type debugSnapshot struct {
	LoadedDays    []string
	EventCount    int
	Subscribers   int
	LedgerEntries []alert.Entry
}

// CommandDebug dumps the scheduler-visible state: loaded days, subscriber
// count and the dedup ledger.
func CommandDebug(store *calendar.Store, ledger *alert.Ledger, subs []types.Subscriber) string {
	dump := spew.Sdump(debugSnapshot{
		LoadedDays:    store.LoadedDays(),
		EventCount:    store.Count(),
		Subscribers:   len(subs),
		LedgerEntries: ledger.Snapshot(),
	})
	return "```\n" + helpers.EscapePre(dump) + "```"
}
