package types

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Impact is the market impact category of a calendar event. Values are ordered:
// ImpactNone < ImpactLow < ImpactMedium < ImpactHigh.
type Impact int

const (
	ImpactNone Impact = iota
	ImpactLow
	ImpactMedium
	ImpactHigh
)

// AllImpacts lists every impact from lowest to highest.
var AllImpacts = []Impact{ImpactNone, ImpactLow, ImpactMedium, ImpactHigh}

// ParseImpact accepts level names as well as the calendar feed's color names.
func ParseImpact(s string) (Impact, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "gray", "grey":
		return ImpactNone, nil
	case "low", "yellow":
		return ImpactLow, nil
	case "medium", "med", "orange":
		return ImpactMedium, nil
	case "high", "red":
		return ImpactHigh, nil
	}
	return ImpactNone, fmt.Errorf("unknown impact: %q", s)
}

func (i Impact) String() string {
	switch i {
	case ImpactLow:
		return "low"
	case ImpactMedium:
		return "medium"
	case ImpactHigh:
		return "high"
	}
	return "none"
}

// Color is the calendar feed's color name for the impact.
func (i Impact) Color() string {
	switch i {
	case ImpactLow:
		return "yellow"
	case ImpactMedium:
		return "orange"
	case ImpactHigh:
		return "red"
	}
	return "gray"
}

func (i Impact) Emoji() string {
	switch i {
	case ImpactLow:
		return "🟡"
	case ImpactMedium:
		return "🟠"
	case ImpactHigh:
		return "🔴"
	}
	return "⚪️"
}

// AlertKind distinguishes ledger entries and rendered notifications.
type AlertKind string

const (
	AlertWarning AlertKind = "warning"
	AlertRelease AlertKind = "release"
	AlertSummary AlertKind = "summary"
)

// CurrencyAll is the filter sentinel matching every currency.
const CurrencyAll = "all"

// KnownCurrencies are the codes the calendar feed carries; settings commands
// reject anything else.
var KnownCurrencies = []string{"USD", "EUR", "GBP", "JPY", "AUD", "CAD", "CHF", "CNY", "NZD"}

func IsKnownCurrency(code string) bool {
	for _, c := range KnownCurrencies {
		if strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}

// NewsEvent is one scheduled calendar entry. Instances are immutable once a day
// is loaded. At is always an instant in the reference timezone; for all-day
// entries it is midnight and HasTime is false.
type NewsEvent struct {
	ID       string    `json:"id"`
	Day      string    `json:"day"`
	At       time.Time `json:"at"`
	HasTime  bool      `json:"has_time"`
	Currency string    `json:"currency"`
	Impact   Impact    `json:"impact"`
	Title    string    `json:"title"`
}

// Clock returns the canonical time-of-day form that participates in the event
// identity: "15:04" for timed entries, "all-day" otherwise.
func (e NewsEvent) Clock() string {
	if !e.HasTime {
		return "all-day"
	}
	return e.At.Format("15:04")
}

// EventID derives the stable identity of an event from its calendar slot.
// Title participates so two distinct releases in the same slot are never
// conflated. Re-deriving from the same inputs always yields the same ID.
func EventID(day, clock, currency, title string) string {
	sum := md5.Sum([]byte(day + "|" + clock + "|" + currency + "|" + title))
	return hex.EncodeToString(sum[:])
}

// Subscriber is one alert destination, keyed by Telegram chat ID.
// SummaryCurrencies drives the daily summary and /today, AlertCurrencies the
// real-time alerts (empty set = alerts off), Impacts applies to both. Timezone
// is display-only; scheduling comparisons never use it.
type Subscriber struct {
	ChatID            int64    `json:"chat_id"`
	SummaryCurrencies []string `json:"summary_currencies"`
	AlertCurrencies   []string `json:"alert_currencies"`
	Impacts           []Impact `json:"impacts"`
	Timezone          string   `json:"timezone"`
	DailyTime         string   `json:"daily_time"`
	CreatedAt         string   `json:"created_at"`
}

// WantsAlert reports whether a real-time alert for ev should reach this chat.
func (s Subscriber) WantsAlert(ev NewsEvent) bool {
	return matchCurrency(s.AlertCurrencies, ev.Currency) && s.matchImpact(ev.Impact)
}

// WantsSummary reports whether ev belongs in this chat's daily summary.
func (s Subscriber) WantsSummary(ev NewsEvent) bool {
	return matchCurrency(s.SummaryCurrencies, ev.Currency) && s.matchImpact(ev.Impact)
}

func (s Subscriber) matchImpact(i Impact) bool {
	for _, want := range s.Impacts {
		if want == i {
			return true
		}
	}
	return false
}

func matchCurrency(set []string, code string) bool {
	for _, c := range set {
		if c == CurrencyAll || strings.EqualFold(c, code) {
			return true
		}
	}
	return false
}
