package alert

import "economic-news-bot/internal/types"

// Observer receives the scheduler's delivery and cleanup counters. The
// process wires it to prometheus; tests record calls directly.
type Observer interface {
	AlertSent(kind types.AlertKind)
	AlertFailed(kind types.AlertKind)
	CleanupRan(purgedEntries, droppedDays int)
}

// NopObserver drops every observation.
type NopObserver struct{}

func (NopObserver) AlertSent(types.AlertKind)   {}
func (NopObserver) AlertFailed(types.AlertKind) {}
func (NopObserver) CleanupRan(int, int)         {}
