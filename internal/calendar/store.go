package calendar

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"economic-news-bot/internal/types"

	"github.com/pkg/errors"
)

// ErrDataUnavailable reports that a day could not be loaded from the source.
// The previously loaded snapshot for that day, if any, stays in place.
var ErrDataUnavailable = errors.New("calendar data unavailable")

// Store holds the loaded calendar days as immutable snapshots. A snapshot is
// swapped in atomically once a load fully succeeds; readers never observe a
// partially loaded day.
type Store struct {
	source Source
	zone   *time.Location

	mu       sync.RWMutex
	days     map[string][]types.NewsEvent
	loadedAt map[string]time.Time
}

func NewStore(source Source, zone *time.Location) *Store {
	return &Store{
		source:   source,
		zone:     zone,
		days:     make(map[string][]types.NewsEvent),
		loadedAt: make(map[string]time.Time),
	}
}

// Location is the reference timezone all event instants are expressed in.
func (s *Store) Location() *time.Location {
	return s.zone
}

// LoadDay pulls the day's rows from the source, converts them and atomically
// replaces the day's snapshot. On failure the previous snapshot is untouched
// and the returned error matches ErrDataUnavailable.
func (s *Store) LoadDay(ctx context.Context, day string) (int, error) {
	rows, err := s.source.Rows(ctx, day)
	if err != nil {
		return 0, errors.Wrapf(ErrDataUnavailable, "day %s: %v", day, err)
	}

	events, err := s.convert(day, rows)
	if err != nil {
		return 0, errors.Wrapf(ErrDataUnavailable, "day %s: %v", day, err)
	}

	s.mu.Lock()
	s.days[day] = events
	s.loadedAt[day] = time.Now()
	s.mu.Unlock()

	return len(events), nil
}

// Filter selects events for Query. Nil currency/impact sets match everything;
// a currency set containing types.CurrencyAll matches every currency. A
// non-zero From or To restricts to timed events with At inside the inclusive
// window.
type Filter struct {
	Day        string
	Currencies []string
	Impacts    []types.Impact
	From       time.Time
	To         time.Time
}

// Query returns matching events ordered by day, all-day entries first, then by
// time, currency and title.
func (s *Store) Query(f Filter) []types.NewsEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]string, 0, len(s.days))
	for day := range s.days {
		if f.Day != "" && day != f.Day {
			continue
		}
		days = append(days, day)
	}
	sort.Strings(days)

	windowed := !f.From.IsZero() || !f.To.IsZero()

	var out []types.NewsEvent
	for _, day := range days {
		for _, ev := range s.days[day] {
			if windowed {
				if !ev.HasTime {
					continue
				}
				if !f.From.IsZero() && ev.At.Before(f.From) {
					continue
				}
				if !f.To.IsZero() && ev.At.After(f.To) {
					continue
				}
			}
			if !filterCurrency(f.Currencies, ev.Currency) {
				continue
			}
			if !filterImpact(f.Impacts, ev.Impact) {
				continue
			}
			out = append(out, ev)
		}
	}
	return out
}

// DropDaysBefore removes whole day snapshots older than the given day and
// returns how many days were dropped.
func (s *Store) DropDaysBefore(day string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for d := range s.days {
		if d < day {
			delete(s.days, d)
			delete(s.loadedAt, d)
			dropped++
		}
	}
	return dropped
}

// Count returns the total number of loaded events across all days.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, evs := range s.days {
		n += len(evs)
	}
	return n
}

// LoadedDays returns the loaded day keys in ascending order.
func (s *Store) LoadedDays() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]string, 0, len(s.days))
	for day := range s.days {
		days = append(days, day)
	}
	sort.Strings(days)
	return days
}

// LoadedAt reports when the day's snapshot was last replaced.
func (s *Store) LoadedAt(day string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	at, ok := s.loadedAt[day]
	return at, ok
}

func (s *Store) convert(day string, rows []Row) ([]types.NewsEvent, error) {
	base, err := time.ParseInLocation("2006-01-02", day, s.zone)
	if err != nil {
		return nil, errors.Wrapf(err, "bad day %q", day)
	}

	events := make([]types.NewsEvent, 0, len(rows))
	for _, r := range rows {
		at, hasTime, err := parseClock(base, r.Time, s.zone)
		if err != nil {
			return nil, err
		}

		impact, err := types.ParseImpact(r.Impact)
		if err != nil {
			// The feed carries holiday rows and the like with colors we
			// do not track; they stay visible as no-impact entries.
			log.Printf("⚠️ Unknown impact %q for %q, keeping as none\n", r.Impact, r.Title)
			impact = types.ImpactNone
		}

		currency := strings.ToUpper(strings.TrimSpace(r.Currency))
		title := strings.TrimSpace(r.Title)

		ev := types.NewsEvent{
			Day:      day,
			At:       at,
			HasTime:  hasTime,
			Currency: currency,
			Impact:   impact,
			Title:    title,
		}
		ev.ID = types.EventID(day, ev.Clock(), currency, title)
		events = append(events, ev)
	}

	sortEvents(events)
	return events, nil
}

// parseClock understands 24h ("14:30"), 12h ("8:30am") and the untimed marker
// forms. Anything else fails the load.
func parseClock(base time.Time, raw string, zone *time.Location) (time.Time, bool, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if untimedMarkers[v] {
		return base, false, nil
	}

	for _, layout := range []string{"15:04", "3:04pm", "3:04 pm"} {
		if t, err := time.Parse(layout, v); err == nil {
			at := time.Date(base.Year(), base.Month(), base.Day(), t.Hour(), t.Minute(), 0, 0, zone)
			return at, true, nil
		}
	}
	return time.Time{}, false, errors.Errorf("unparseable time %q", raw)
}

func sortEvents(events []types.NewsEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.HasTime != b.HasTime {
			return !a.HasTime
		}
		if !a.At.Equal(b.At) {
			return a.At.Before(b.At)
		}
		if a.Currency != b.Currency {
			return a.Currency < b.Currency
		}
		return a.Title < b.Title
	})
}

func filterCurrency(set []string, code string) bool {
	if len(set) == 0 {
		return true
	}
	for _, c := range set {
		if c == types.CurrencyAll || strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

func filterImpact(set []types.Impact, impact types.Impact) bool {
	if len(set) == 0 {
		return true
	}
	for _, i := range set {
		if i == impact {
			return true
		}
	}
	return false
}
