package calendar

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Updater keeps the store's snapshots of today and tomorrow fresh: an initial
// load, a fixed refresh interval, and an optional directory watch that reloads
// when a calendar file changes. Load failures leave stale data in place.
type Updater struct {
	store    *Store
	dir      string
	interval time.Duration

	// OnResult, when set, observes every load attempt.
	OnResult func(day string, count int, err error)

	now func() time.Time
}

// NewUpdater creates an updater refreshing every interval. dir is the watched
// calendar directory; empty disables the watcher.
func NewUpdater(store *Store, dir string, interval time.Duration) *Updater {
	return &Updater{
		store:    store,
		dir:      dir,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the refresh loop in the background.
func (u *Updater) Start(ctx context.Context) {
	go u.run(ctx)
	log.Println("🚀 Calendar updater started.")
}

func (u *Updater) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🔥 Panic recovered in calendar updater: %v. Restarting updater in 10 seconds...\n", r)
			time.Sleep(10 * time.Second)
			go u.run(ctx)
		}
	}()

	changes := u.watch(ctx)
	u.Refresh(ctx)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Refresh(ctx)
		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			log.Println("🔄 Calendar files changed, reloading...")
			u.Refresh(ctx)
		}
	}
}

// Refresh loads today and tomorrow in the reference zone.
func (u *Updater) Refresh(ctx context.Context) {
	now := u.now().In(u.store.Location())
	today := now.Format("2006-01-02")
	tomorrow := now.AddDate(0, 0, 1).Format("2006-01-02")

	for _, day := range []string{today, tomorrow} {
		count, err := u.store.LoadDay(ctx, day)
		if u.OnResult != nil {
			u.OnResult(day, count, err)
		}
		if err != nil {
			log.Printf("❌ Calendar load failed for %s: %v\n", day, err)
			continue
		}
		log.Printf("✅ Loaded %d events for %s\n", count, day)
	}
}

// watch emits a signal whenever a *.csv in the calendar directory is created,
// written or renamed. Bursts coalesce through the buffered channel. Returns a
// nil channel (never ready) when watching is disabled or unavailable.
func (u *Updater) watch(ctx context.Context) <-chan struct{} {
	if u.dir == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("⚠️ Calendar watcher unavailable: %v\n", err)
		return nil
	}
	if err := watcher.Add(u.dir); err != nil {
		log.Printf("⚠️ Cannot watch %s: %v\n", u.dir, err)
		watcher.Close()
		return nil
	}

	out := make(chan struct{}, 1)
	go func() {
		defer watcher.Close()
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if !strings.HasSuffix(strings.ToLower(ev.Name), ".csv") {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("⚠️ Calendar watcher error: %v\n", err)
			}
		}
	}()
	return out
}
