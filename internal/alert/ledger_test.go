package alert

import (
	"sync"
	"testing"
	"time"

	"economic-news-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserveIsAtMostOnce(t *testing.T) {
	l := NewLedger()
	key := Key{EventID: "ev", ChatID: 1, Kind: types.AlertWarning}
	now := time.Now()

	assert.True(t, l.Reserve(key, now, now))
	assert.False(t, l.Reserve(key, now, now))
	assert.Equal(t, 1, l.Len())
}

func TestReserveDistinguishesKinds(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	assert.True(t, l.Reserve(Key{EventID: "ev", ChatID: 1, Kind: types.AlertWarning}, now, now))
	assert.True(t, l.Reserve(Key{EventID: "ev", ChatID: 1, Kind: types.AlertRelease}, now, now))
	assert.True(t, l.Reserve(Key{EventID: "ev", ChatID: 2, Kind: types.AlertWarning}, now, now))
	assert.Equal(t, 3, l.Len())
}

func TestReserveAtomicUnderConcurrency(t *testing.T) {
	l := NewLedger()
	key := Key{EventID: "ev", ChatID: 1, Kind: types.AlertRelease}
	now := time.Now()

	const goroutines = 64
	var wg sync.WaitGroup
	wins := make(chan struct{}, goroutines)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Reserve(key, now, now) {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for range wins {
		won++
	}
	assert.Equal(t, 1, won, "exactly one concurrent reservation may win")
}

func TestPurgeOlderThan(t *testing.T) {
	l := NewLedger()
	now := time.Date(2026, 8, 21, 12, 0, 0, 0, time.UTC)

	old := Key{EventID: "old", ChatID: 1, Kind: types.AlertRelease}
	fresh := Key{EventID: "fresh", ChatID: 1, Kind: types.AlertRelease}
	l.Reserve(old, now.Add(-49*time.Hour), now)
	l.Reserve(fresh, now.Add(-time.Hour), now)

	purged := l.PurgeOlderThan(now.Add(-48 * time.Hour))
	assert.Equal(t, 1, purged)
	assert.Equal(t, 1, l.Len())

	assert.True(t, l.Reserve(old, now, now), "a purged key is gone, not resurrected")
	assert.Equal(t, 0, l.PurgeOlderThan(now.Add(-48*time.Hour)))
}

func TestMarkFailed(t *testing.T) {
	l := NewLedger()
	key := Key{EventID: "ev", ChatID: 1, Kind: types.AlertWarning}
	now := time.Now()

	l.MarkFailed(key) // absent key is a no-op
	assert.Equal(t, 0, l.Len())

	require.True(t, l.Reserve(key, now, now))
	l.MarkFailed(key)

	entries := l.Snapshot()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Failed)
	assert.False(t, l.Reserve(key, now, now), "a failed key stays reserved")
}

func TestSnapshotIsSorted(t *testing.T) {
	l := NewLedger()
	now := time.Now()

	l.Reserve(Key{EventID: "b", ChatID: 2, Kind: types.AlertWarning}, now, now)
	l.Reserve(Key{EventID: "a", ChatID: 9, Kind: types.AlertWarning}, now, now)
	l.Reserve(Key{EventID: "b", ChatID: 1, Kind: types.AlertRelease}, now, now)

	entries := l.Snapshot()
	require.Len(t, entries, 3)
	assert.Equal(t, "a", entries[0].Key.EventID)
	assert.Equal(t, int64(1), entries[1].Key.ChatID)
	assert.Equal(t, int64(2), entries[2].Key.ChatID)
}
