package alert

import (
	"context"
	"sync"
	"testing"
	"time"

	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	rows map[string][]calendar.Row
}

func (s *stubSource) Rows(_ context.Context, day string) ([]calendar.Row, error) {
	return s.rows[day], nil
}

type stubRegistry struct {
	subs []types.Subscriber
	err  error
}

func (r *stubRegistry) All() ([]types.Subscriber, error) {
	return r.subs, r.err
}

type sentAlert struct {
	ChatID int64
	Title  string
	Kind   types.AlertKind
}

type sentSummary struct {
	ChatID int64
	Day    string
	Events []types.NewsEvent
}

// fakeDispatcher fails the first failures calls with failWith (a generic
// transient error when nil), then records successful deliveries.
type fakeDispatcher struct {
	mu        sync.Mutex
	failures  int
	failWith  error
	attempts  int
	alerts    []sentAlert
	summaries []sentSummary
}

func (d *fakeDispatcher) fail() error {
	d.attempts++
	if d.failures > 0 {
		d.failures--
		if d.failWith != nil {
			return d.failWith
		}
		return errors.New("telegram unreachable")
	}
	return nil
}

func (d *fakeDispatcher) Dispatch(_ context.Context, sub types.Subscriber, ev types.NewsEvent, kind types.AlertKind) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return err
	}
	d.alerts = append(d.alerts, sentAlert{ChatID: sub.ChatID, Title: ev.Title, Kind: kind})
	return nil
}

func (d *fakeDispatcher) DispatchSummary(_ context.Context, sub types.Subscriber, day string, events []types.NewsEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail(); err != nil {
		return err
	}
	d.summaries = append(d.summaries, sentSummary{ChatID: sub.ChatID, Day: day, Events: events})
	return nil
}

type fakeObserver struct {
	sent     map[types.AlertKind]int
	failed   map[types.AlertKind]int
	purged   int
	cleanups int
}

func newFakeObserver() *fakeObserver {
	return &fakeObserver{sent: make(map[types.AlertKind]int), failed: make(map[types.AlertKind]int)}
}

func (o *fakeObserver) AlertSent(kind types.AlertKind)   { o.sent[kind]++ }
func (o *fakeObserver) AlertFailed(kind types.AlertKind) { o.failed[kind]++ }
func (o *fakeObserver) CleanupRan(purged, _ int)         { o.purged += purged; o.cleanups++ }

func at(day string, hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", day+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

func newTestScheduler(t *testing.T, rows map[string][]calendar.Row, subs []types.Subscriber, d *fakeDispatcher, obs *fakeObserver) *Scheduler {
	t.Helper()

	store := calendar.NewStore(&stubSource{rows: rows}, time.UTC)
	for day := range rows {
		_, err := store.LoadDay(context.Background(), day)
		require.NoError(t, err)
	}

	return NewScheduler(store, &stubRegistry{subs: subs}, NewLedger(), d, obs, Options{
		DispatchBackoff: 1, // effectively no backoff between test attempts
	})
}

func usdSubscriber(chatID int64) types.Subscriber {
	return types.Subscriber{
		ChatID:          chatID,
		AlertCurrencies: []string{"USD"},
		Impacts:         []types.Impact{types.ImpactHigh, types.ImpactMedium},
	}
}

func TestWarningAndReleaseFireExactlyOnce(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "Non-Farm Employment Change"}},
	}
	d := &fakeDispatcher{}
	obs := newFakeObserver()
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, obs)
	ctx := context.Background()

	// 14:25: inside the warning window, outside the release window.
	s.Tick(ctx, at("2026-08-21", "14:25"))
	require.Len(t, d.alerts, 1)
	assert.Equal(t, types.AlertWarning, d.alerts[0].Kind)

	// Repeated observation of the same window adds nothing.
	s.Tick(ctx, at("2026-08-21", "14:26"))
	s.Tick(ctx, at("2026-08-21", "14:27"))
	assert.Len(t, d.alerts, 1)

	// 14:30: the event releases.
	s.Tick(ctx, at("2026-08-21", "14:30"))
	require.Len(t, d.alerts, 2)
	assert.Equal(t, types.AlertRelease, d.alerts[1].Kind)

	// 14:31: nothing further for this event.
	s.Tick(ctx, at("2026-08-21", "14:31"))
	assert.Len(t, d.alerts, 2)

	assert.Equal(t, 1, obs.sent[types.AlertWarning])
	assert.Equal(t, 1, obs.sent[types.AlertRelease])
	assert.Empty(t, obs.failed)
}

func TestBoundaryInstantFiresBothKindsOnce(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "CPI m/m"}},
	}
	d := &fakeDispatcher{}
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, newFakeObserver())

	// Exactly at the event instant it borders both inclusive windows.
	s.Tick(context.Background(), at("2026-08-21", "14:30"))
	require.Len(t, d.alerts, 2)
	kinds := map[types.AlertKind]int{}
	for _, a := range d.alerts {
		kinds[a.Kind]++
	}
	assert.Equal(t, 1, kinds[types.AlertWarning])
	assert.Equal(t, 1, kinds[types.AlertRelease])
}

func TestFiltersKeepUnwantedEventsOutOfLedger(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {
			{Time: "14:30", Currency: "USD", Impact: "yellow", Title: "Low Impact USD"},
			{Time: "14:30", Currency: "EUR", Impact: "red", Title: "High Impact EUR"},
		},
	}
	d := &fakeDispatcher{}
	allHigh := types.Subscriber{
		ChatID:          1,
		AlertCurrencies: []string{types.CurrencyAll},
		Impacts:         []types.Impact{types.ImpactHigh},
	}
	s := newTestScheduler(t, rows, []types.Subscriber{allHigh}, d, newFakeObserver())

	s.Tick(context.Background(), at("2026-08-21", "14:28"))
	require.Len(t, d.alerts, 1)
	assert.Equal(t, "High Impact EUR", d.alerts[0].Title)
	assert.Equal(t, 1, s.Ledger().Len(), "filtered-out pairs never enter the ledger")
}

func TestEmptyAlertCurrenciesMeansAlertsOff(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	d := &fakeDispatcher{}
	sub := types.Subscriber{ChatID: 1, Impacts: []types.Impact{types.ImpactHigh}}
	s := newTestScheduler(t, rows, []types.Subscriber{sub}, d, newFakeObserver())

	s.Tick(context.Background(), at("2026-08-21", "14:28"))
	assert.Empty(t, d.alerts)
	assert.Zero(t, s.Ledger().Len())
}

func TestAllDayEventsNeverAlert(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "All Day", Currency: "USD", Impact: "red", Title: "Bank Holiday"}},
	}
	d := &fakeDispatcher{}
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, newFakeObserver())

	s.Tick(context.Background(), at("2026-08-21", "00:01"))
	assert.Empty(t, d.alerts)
}

func TestTransientFailureRetriesThenSucceeds(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	d := &fakeDispatcher{failures: 2}
	obs := newFakeObserver()
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, obs)

	s.Tick(context.Background(), at("2026-08-21", "14:28"))
	require.Len(t, d.alerts, 1)
	assert.Equal(t, 3, d.attempts, "two failed attempts then the successful one")
	assert.Equal(t, 1, obs.sent[types.AlertWarning])
	assert.Empty(t, obs.failed)
}

func TestAttemptCapMarksFailedAndNeverRetries(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	d := &fakeDispatcher{failures: 99}
	obs := newFakeObserver()
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, obs)
	ctx := context.Background()

	s.Tick(ctx, at("2026-08-21", "14:28"))
	assert.Empty(t, d.alerts)
	assert.Equal(t, 3, d.attempts, "attempt cap bounds the retries")
	assert.Equal(t, 1, obs.failed[types.AlertWarning], "exactly one failure notice")

	entries := s.Ledger().Snapshot()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed)

	// Later ticks leave the failed key alone.
	s.Tick(ctx, at("2026-08-21", "14:29"))
	assert.Equal(t, 3, d.attempts)
	assert.Equal(t, 1, obs.failed[types.AlertWarning])
}

func TestPermanentErrorAbortsRetriesImmediately(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	d := &fakeDispatcher{failures: 99, failWith: errors.Wrap(ErrDeliveryPermanent, "bot was blocked")}
	obs := newFakeObserver()
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, obs)

	s.Tick(context.Background(), at("2026-08-21", "14:28"))
	assert.Equal(t, 1, d.attempts, "permanent failures are not retried")
	assert.Equal(t, 1, obs.failed[types.AlertWarning])
}

func TestFailingChatDoesNotStopOthers(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	// Chat 1 is evaluated first and burns all three attempts; chat 2 must
	// still get its warning in the same tick.
	d := &fakeDispatcher{failures: 3}
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1), usdSubscriber(2)}, d, newFakeObserver())

	s.Tick(context.Background(), at("2026-08-21", "14:28"))
	require.Len(t, d.alerts, 1)
	assert.Equal(t, int64(2), d.alerts[0].ChatID)
}

func TestRegistryErrorSkipsTick(t *testing.T) {
	store := calendar.NewStore(&stubSource{}, time.UTC)
	d := &fakeDispatcher{}
	s := NewScheduler(store, &stubRegistry{err: errors.New("db locked")}, NewLedger(), d, nil, Options{})

	s.Tick(context.Background(), time.Now())
	assert.Empty(t, d.alerts)
}

func TestDailySummaryFiresOnceWithinLatenessBound(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {
			{Time: "08:30", Currency: "USD", Impact: "red", Title: "CPI m/m"},
			{Time: "All Day", Currency: "USD", Impact: "gray", Title: "Holiday"},
			{Time: "09:00", Currency: "EUR", Impact: "red", Title: "German CPI"},
		},
	}
	d := &fakeDispatcher{}
	obs := newFakeObserver()
	sub := types.Subscriber{
		ChatID:            1,
		SummaryCurrencies: []string{"USD"},
		Impacts:           []types.Impact{types.ImpactHigh, types.ImpactNone},
		DailyTime:         "07:00",
	}
	s := newTestScheduler(t, rows, []types.Subscriber{sub}, d, obs)
	ctx := context.Background()

	s.Tick(ctx, at("2026-08-21", "06:59"))
	assert.Empty(t, d.summaries, "not due yet")

	s.Tick(ctx, at("2026-08-21", "07:01"))
	require.Len(t, d.summaries, 1)
	assert.Equal(t, "2026-08-21", d.summaries[0].Day)
	require.Len(t, d.summaries[0].Events, 2, "summary honors the summary filters, untimed entries included")
	assert.Equal(t, 1, obs.sent[types.AlertSummary])

	s.Tick(ctx, at("2026-08-21", "07:02"))
	assert.Len(t, d.summaries, 1, "one summary per chat per day")
}

func TestDailySummaryRespectsDisplayZone(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "08:30", Currency: "USD", Impact: "red", Title: "CPI m/m"}},
	}
	d := &fakeDispatcher{}
	sub := types.Subscriber{
		ChatID:            1,
		SummaryCurrencies: []string{"USD"},
		Impacts:           []types.Impact{types.ImpactHigh},
		Timezone:          "UTC+2",
		DailyTime:         "09:00",
	}
	s := newTestScheduler(t, rows, []types.Subscriber{sub}, d, newFakeObserver())
	ctx := context.Background()

	// 09:00 local UTC+2 is 07:00 in the reference zone (UTC here).
	s.Tick(ctx, at("2026-08-21", "06:59"))
	assert.Empty(t, d.summaries)

	s.Tick(ctx, at("2026-08-21", "07:00"))
	assert.Len(t, d.summaries, 1)
}

func TestOverdueSummaryIsSkippedNotBackfilled(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "08:30", Currency: "USD", Impact: "red", Title: "CPI m/m"}},
	}
	d := &fakeDispatcher{}
	sub := types.Subscriber{
		ChatID:            1,
		SummaryCurrencies: []string{"USD"},
		Impacts:           []types.Impact{types.ImpactHigh},
		DailyTime:         "07:00",
	}
	s := newTestScheduler(t, rows, []types.Subscriber{sub}, d, newFakeObserver())

	// More than two tick intervals late, e.g. the process was down.
	s.Tick(context.Background(), at("2026-08-21", "07:05"))
	assert.Empty(t, d.summaries)
}

func TestCleanupPurgesLedgerAndStaleDays(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-18": {{Time: "08:30", Currency: "USD", Impact: "red", Title: "Old Event"}},
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	d := &fakeDispatcher{}
	obs := newFakeObserver()
	s := newTestScheduler(t, rows, []types.Subscriber{usdSubscriber(1)}, d, obs)

	now := at("2026-08-21", "12:00")
	oldKey := Key{EventID: "stale", ChatID: 1, Kind: types.AlertRelease}
	require.True(t, s.Ledger().Reserve(oldKey, at("2026-08-18", "08:30"), now))

	s.Tick(context.Background(), now)
	assert.Equal(t, 1, obs.purged)
	assert.Zero(t, s.Ledger().Len())
	assert.True(t, s.Ledger().Reserve(oldKey, now, now), "purged entries stay purged")
}

func TestCleanupIsRateLimited(t *testing.T) {
	rows := map[string][]calendar.Row{
		"2026-08-21": {{Time: "14:30", Currency: "USD", Impact: "red", Title: "NFP"}},
	}
	d := &fakeDispatcher{}
	obs := newFakeObserver()
	s := newTestScheduler(t, rows, nil, d, obs)
	ctx := context.Background()

	s.Tick(ctx, at("2026-08-21", "12:00"))
	s.Tick(ctx, at("2026-08-21", "12:01"))
	s.Tick(ctx, at("2026-08-21", "12:02"))
	assert.Equal(t, 1, obs.cleanups, "cleanup runs at most once per cleanup interval")

	s.Tick(ctx, at("2026-08-21", "13:01"))
	assert.Equal(t, 2, obs.cleanups)
}
