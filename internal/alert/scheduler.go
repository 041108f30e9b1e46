package alert

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"economic-news-bot/internal/calendar"
	"economic-news-bot/internal/timezone"
	"economic-news-bot/internal/types"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
)

// ErrDeliveryPermanent marks delivery failures that must not be retried: the
// dispatcher classifies unrecoverable Telegram responses with it, and the
// scheduler produces it when the attempt cap is exhausted.
var ErrDeliveryPermanent = errors.New("delivery permanently failed")

// Dispatcher delivers one rendered notification. Implementations classify
// unrecoverable failures with ErrDeliveryPermanent; anything else is treated
// as transient and retried.
type Dispatcher interface {
	Dispatch(ctx context.Context, sub types.Subscriber, ev types.NewsEvent, kind types.AlertKind) error
	DispatchSummary(ctx context.Context, sub types.Subscriber, day string, events []types.NewsEvent) error
}

// Registry is the scheduler's read-only view of the subscriptions.
type Registry interface {
	All() ([]types.Subscriber, error)
}

// Options tune the scheduler windows and delivery policy. The zero value gets
// the production defaults; the tick interval must stay at or below the
// warning window or an event's warning window could be skipped entirely.
type Options struct {
	WarningWindow    time.Duration
	ReleaseGrace     time.Duration
	TickInterval     time.Duration
	CleanupInterval  time.Duration
	Retention        time.Duration
	DispatchTimeout  time.Duration
	DispatchAttempts int
	DispatchBackoff  time.Duration
}

func (o Options) withDefaults() Options {
	if o.WarningWindow <= 0 {
		o.WarningWindow = 5 * time.Minute
	}
	if o.ReleaseGrace <= 0 {
		o.ReleaseGrace = time.Minute
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Minute
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = time.Hour
	}
	if o.Retention <= 0 {
		o.Retention = 48 * time.Hour
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 10 * time.Second
	}
	if o.DispatchAttempts <= 0 {
		o.DispatchAttempts = 3
	}
	if o.DispatchBackoff < 0 {
		o.DispatchBackoff = 0
	}
	return o
}

// Scheduler is the alert engine: on every tick it scans the calendar store
// against the subscriptions, fires warning and release alerts through the
// ledger, evaluates due daily summaries, and periodically purges old state.
// Tick is an explicit function of the supplied now, so tests drive it with a
// fake clock.
type Scheduler struct {
	store      *calendar.Store
	registry   Registry
	ledger     *Ledger
	dispatcher Dispatcher
	observer   Observer
	opts       Options

	// tickMu serializes ticks; a slow dispatch delays the next tick instead of
	// racing it.
	tickMu      sync.Mutex
	lastCleanup time.Time

	now func() time.Time
}

func NewScheduler(store *calendar.Store, registry Registry, ledger *Ledger, dispatcher Dispatcher, observer Observer, opts Options) *Scheduler {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Scheduler{
		store:      store,
		registry:   registry,
		ledger:     ledger,
		dispatcher: dispatcher,
		observer:   observer,
		opts:       opts.withDefaults(),
		now:        time.Now,
	}
}

// Ledger exposes the dedup ledger, for /debug.
func (s *Scheduler) Ledger() *Ledger {
	return s.ledger
}

// Tick runs one full scheduling pass at the given instant. A single failing
// event, chat or dispatch never stops the pass for the others.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	now = now.In(s.store.Location())
	log.Println("🔄 Checking alerts...")

	subs, err := s.registry.All()
	if err != nil {
		log.Printf("❌ Failed to read subscriptions: %v\n", err)
		return
	}

	s.fireWindows(ctx, now, subs)
	s.fireSummaries(ctx, now, subs)
	s.cleanup(now)

	log.Println("✅ Alert check completed.")
}

// fireWindows dispatches warnings for events inside [now, now+warning] and
// releases for events inside [now-grace, now]. Both windows are inclusive, so
// an event exactly at now is a candidate for both kinds; the per-kind ledger
// keys keep each at one send.
func (s *Scheduler) fireWindows(ctx context.Context, now time.Time, subs []types.Subscriber) {
	candidates := []struct {
		kind   types.AlertKind
		events []types.NewsEvent
	}{
		{types.AlertWarning, s.store.Query(calendar.Filter{From: now, To: now.Add(s.opts.WarningWindow)})},
		{types.AlertRelease, s.store.Query(calendar.Filter{From: now.Add(-s.opts.ReleaseGrace), To: now})},
	}

	for _, c := range candidates {
		for _, ev := range c.events {
			for _, sub := range subs {
				if !sub.WantsAlert(ev) {
					continue
				}

				key := Key{EventID: ev.ID, ChatID: sub.ChatID, Kind: c.kind}
				if !s.ledger.Reserve(key, ev.At, now) {
					continue
				}

				ev, sub, kind := ev, sub, c.kind
				err := s.deliver(ctx, func(ctx context.Context) error {
					return s.dispatcher.Dispatch(ctx, sub, ev, kind)
				})
				if err != nil {
					s.ledger.MarkFailed(key)
					s.observer.AlertFailed(kind)
					log.Printf("❌ Giving up on %s alert for %q to chat %d: %v\n", kind, ev.Title, sub.ChatID, err)
					continue
				}
				s.observer.AlertSent(kind)
				log.Printf("✅ Sent %s alert for %q to chat %d\n", kind, ev.Title, sub.ChatID)
			}
		}
	}
}

// fireSummaries dispatches the daily summary to every chat whose configured
// local time has just passed. A summary overdue by more than two tick
// intervals is skipped, not backfilled.
func (s *Scheduler) fireSummaries(ctx context.Context, now time.Time, subs []types.Subscriber) {
	day := now.Format("2006-01-02")

	for _, sub := range subs {
		if sub.DailyTime == "" {
			continue
		}

		loc := timezone.ForSubscriber(sub.Timezone, s.store.Location())
		fireAt, err := summaryFireTime(sub.DailyTime, now, loc)
		if err != nil {
			log.Printf("⚠️ Bad daily time %q for chat %d: %v\n", sub.DailyTime, sub.ChatID, err)
			continue
		}
		if now.Before(fireAt) || now.Sub(fireAt) > 2*s.opts.TickInterval {
			continue
		}

		key := Key{EventID: "summary:" + day, ChatID: sub.ChatID, Kind: types.AlertSummary}
		if !s.ledger.Reserve(key, fireAt, now) {
			continue
		}

		sub := sub
		events := s.summaryEvents(day, sub)
		err = s.deliver(ctx, func(ctx context.Context) error {
			return s.dispatcher.DispatchSummary(ctx, sub, day, events)
		})
		if err != nil {
			s.ledger.MarkFailed(key)
			s.observer.AlertFailed(types.AlertSummary)
			log.Printf("❌ Giving up on daily summary to chat %d: %v\n", sub.ChatID, err)
			continue
		}
		s.observer.AlertSent(types.AlertSummary)
		log.Printf("✅ Sent daily summary to chat %d\n", sub.ChatID)
	}
}

func (s *Scheduler) summaryEvents(day string, sub types.Subscriber) []types.NewsEvent {
	var out []types.NewsEvent
	for _, ev := range s.store.Query(calendar.Filter{Day: day}) {
		if sub.WantsSummary(ev) {
			out = append(out, ev)
		}
	}
	return out
}

// deliver runs one delivery with bounded retries. Each attempt carries its own
// timeout; backoff grows linearly with the attempt number. A permanent error
// aborts immediately, and an exhausted attempt cap is reported as permanent so
// the caller marks the key failed exactly once.
func (s *Scheduler) deliver(ctx context.Context, send func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= s.opts.DispatchAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.opts.DispatchTimeout)
		err := send(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if errors.Is(err, ErrDeliveryPermanent) {
			return err
		}
		log.Printf("⚠️ Dispatch attempt %d/%d failed: %v\n", attempt, s.opts.DispatchAttempts, err)
		if attempt < s.opts.DispatchAttempts {
			time.Sleep(time.Duration(attempt) * s.opts.DispatchBackoff)
		}
	}
	return errors.Wrapf(ErrDeliveryPermanent, "%d attempts: %v", s.opts.DispatchAttempts, lastErr)
}

// cleanup bounds memory: ledger entries past the retention horizon go away,
// as do whole store days. Guarded to run at most once per cleanup interval.
func (s *Scheduler) cleanup(now time.Time) {
	if !s.lastCleanup.IsZero() && now.Sub(s.lastCleanup) < s.opts.CleanupInterval {
		return
	}
	s.lastCleanup = now

	horizon := now.Add(-s.opts.Retention)
	purged := s.ledger.PurgeOlderThan(horizon)
	dropped := s.store.DropDaysBefore(horizon.In(s.store.Location()).Format("2006-01-02"))
	s.observer.CleanupRan(purged, dropped)

	if purged > 0 || dropped > 0 {
		log.Printf("🧹 Cleanup purged %d ledger entries, dropped %d stale days\n", purged, dropped)
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// summaryFireTime computes today's summary instant for an HH:MM wall-clock
// time in the chat's display zone.
func summaryFireTime(hhmm string, now time.Time, loc *time.Location) (time.Time, error) {
	parts := strings.Split(hhmm, ":")
	if len(parts) != 2 {
		return time.Time{}, errors.Errorf("not an HH:MM time: %q", hhmm)
	}
	sched, err := cronParser.Parse(fmt.Sprintf("%s %s * * *", parts[1], parts[0]))
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "daily time %q", hhmm)
	}

	local := now.In(loc)
	startOfDay := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return sched.Next(startOfDay.Add(-time.Second)), nil
}
