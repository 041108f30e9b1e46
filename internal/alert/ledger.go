package alert

import (
	"sort"
	"sync"
	"time"

	"economic-news-bot/internal/types"
)

// Key identifies one notification: an event, a chat, and whether it is the
// warning, the release, or a daily summary.
type Key struct {
	EventID string
	ChatID  int64
	Kind    types.AlertKind
}

// Entry is one ledger record. SentAt is when the key was reserved, EventAt is
// the event's instant (the purge horizon compares against it), Failed marks
// keys whose delivery gave up permanently.
type Entry struct {
	Key     Key
	SentAt  time.Time
	EventAt time.Time
	Failed  bool
}

// Ledger is the at-most-once delivery record and the sole concurrency-control
// point of the scheduler. Reserve is an atomic check-and-set; a key, once
// present, is never reserved again, whether its delivery succeeded or not.
// The lock covers only map access, never delivery I/O.
type Ledger struct {
	mu      sync.Mutex
	entries map[Key]Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[Key]Entry)}
}

// Reserve creates the entry for key and reports whether this call created it.
// Exactly one caller ever gets true for a given key.
func (l *Ledger) Reserve(key Key, eventAt, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.entries[key]; exists {
		return false
	}
	l.entries[key] = Entry{Key: key, SentAt: now, EventAt: eventAt}
	return true
}

// MarkFailed flags the key's entry after delivery gave up. The entry stays in
// place so the key is never retried.
func (l *Ledger) MarkFailed(key Key) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, exists := l.entries[key]
	if !exists {
		return
	}
	entry.Failed = true
	l.entries[key] = entry
}

// PurgeOlderThan removes entries whose event instant is before horizon and
// returns how many were removed.
func (l *Ledger) PurgeOlderThan(horizon time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	purged := 0
	for key, entry := range l.entries {
		if entry.EventAt.Before(horizon) {
			delete(l.entries, key)
			purged++
		}
	}
	return purged
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a stable-ordered copy of the entries, for /debug.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := make([]Entry, 0, len(l.entries))
	for _, entry := range l.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Key.EventID != b.Key.EventID {
			return a.Key.EventID < b.Key.EventID
		}
		if a.Key.ChatID != b.Key.ChatID {
			return a.Key.ChatID < b.Key.ChatID
		}
		return a.Key.Kind < b.Key.Kind
	})
	return entries
}
