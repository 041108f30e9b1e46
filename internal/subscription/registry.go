package subscription

import (
	"strings"

	"economic-news-bot/internal/timezone"
	"economic-news-bot/internal/types"

	"github.com/pkg/errors"
)

// ErrInvalidConfig reports a rejected settings mutation. The previously stored
// record is kept as-is.
var ErrInvalidConfig = errors.New("invalid configuration")

// Store is the persistence the registry sits on.
type Store interface {
	UpsertSubscription(types.Subscriber) error
	GetSubscription(chatID int64) (types.Subscriber, bool, error)
	AllSubscriptions() ([]types.Subscriber, error)
	DeleteSubscription(chatID int64) error
}

// Registry owns per-chat subscription records: filters, display timezone and
// the daily summary time. Every mutation validates its input first and only
// persists valid state.
type Registry struct {
	db Store
}

func NewRegistry(db Store) *Registry {
	return &Registry{db: db}
}

// Defaults is the record a chat gets before it configures anything: a USD
// summary at 07:00, high and medium impacts, real-time alerts off.
func Defaults(chatID int64) types.Subscriber {
	return types.Subscriber{
		ChatID:            chatID,
		SummaryCurrencies: []string{"USD"},
		AlertCurrencies:   nil,
		Impacts:           []types.Impact{types.ImpactHigh, types.ImpactMedium},
		Timezone:          "",
		DailyTime:         "07:00",
	}
}

// Get returns the chat's record, or the defaults when nothing is stored yet.
func (r *Registry) Get(chatID int64) (types.Subscriber, error) {
	sub, found, err := r.db.GetSubscription(chatID)
	if err != nil {
		return types.Subscriber{}, errors.Wrap(err, "registry get")
	}
	if !found {
		return Defaults(chatID), nil
	}
	return sub, nil
}

// All returns every persisted record. Chats that never ran /start or a
// settings command are not included; the scheduler has nothing to send them.
func (r *Registry) All() ([]types.Subscriber, error) {
	subs, err := r.db.AllSubscriptions()
	if err != nil {
		return nil, errors.Wrap(err, "registry all")
	}
	return subs, nil
}

// Ensure persists the default record for a chat unless one already exists.
func (r *Registry) Ensure(chatID int64) (types.Subscriber, error) {
	sub, found, err := r.db.GetSubscription(chatID)
	if err != nil {
		return types.Subscriber{}, errors.Wrap(err, "registry ensure")
	}
	if found {
		return sub, nil
	}
	sub = Defaults(chatID)
	if err := r.db.UpsertSubscription(sub); err != nil {
		return types.Subscriber{}, errors.Wrap(err, "registry ensure")
	}
	return sub, nil
}

// Remove deletes the chat's record entirely; removing an absent chat is fine.
func (r *Registry) Remove(chatID int64) error {
	return errors.Wrap(r.db.DeleteSubscription(chatID), "registry remove")
}

// SetSummaryCurrencies sets the currencies shown in the daily summary and
// /today. "all" is accepted; an empty list is not.
func (r *Registry) SetSummaryCurrencies(chatID int64, args []string) (types.Subscriber, error) {
	set, err := parseCurrencies(args, false)
	if err != nil {
		return types.Subscriber{}, err
	}
	return r.update(chatID, func(sub *types.Subscriber) {
		sub.SummaryCurrencies = set
	})
}

// SetAlertCurrencies sets the currencies that fire real-time alerts. "all"
// matches everything, "off" (or an empty list) disables alerts.
func (r *Registry) SetAlertCurrencies(chatID int64, args []string) (types.Subscriber, error) {
	set, err := parseCurrencies(args, true)
	if err != nil {
		return types.Subscriber{}, err
	}
	return r.update(chatID, func(sub *types.Subscriber) {
		sub.AlertCurrencies = set
	})
}

// ToggleAlertCurrency flips one currency in the alert set, used by the inline
// keyboard flow.
func (r *Registry) ToggleAlertCurrency(chatID int64, code string) (types.Subscriber, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !types.IsKnownCurrency(code) {
		return types.Subscriber{}, errors.Wrapf(ErrInvalidConfig, "unknown currency %q", code)
	}
	return r.update(chatID, func(sub *types.Subscriber) {
		for i, c := range sub.AlertCurrencies {
			if strings.EqualFold(c, code) || c == types.CurrencyAll {
				sub.AlertCurrencies = append(sub.AlertCurrencies[:i], sub.AlertCurrencies[i+1:]...)
				if c == types.CurrencyAll {
					// Narrowing from "all" keeps just the toggled code off.
					rest := make([]string, 0, len(types.KnownCurrencies)-1)
					for _, k := range types.KnownCurrencies {
						if !strings.EqualFold(k, code) {
							rest = append(rest, k)
						}
					}
					sub.AlertCurrencies = rest
				}
				return
			}
		}
		sub.AlertCurrencies = append(sub.AlertCurrencies, code)
	})
}

// SetImpacts sets the impact filter applied to both summaries and alerts.
// Level names and the feed's color names are accepted; "all" expands to every
// level.
func (r *Registry) SetImpacts(chatID int64, args []string) (types.Subscriber, error) {
	set, err := parseImpacts(args)
	if err != nil {
		return types.Subscriber{}, err
	}
	return r.update(chatID, func(sub *types.Subscriber) {
		sub.Impacts = set
	})
}

// SetTimezone sets the display zone: an IANA name or a UTC offset shorthand.
// The zone only affects rendering, never scheduling.
func (r *Registry) SetTimezone(chatID int64, name string) (types.Subscriber, error) {
	name = strings.TrimSpace(name)
	if _, err := timezone.Resolve(name); err != nil {
		return types.Subscriber{}, errors.Wrapf(ErrInvalidConfig, "timezone: %v", err)
	}
	return r.update(chatID, func(sub *types.Subscriber) {
		sub.Timezone = name
	})
}

// SetDailyTime sets the chat-local wall-clock time of the daily summary;
// "off" disables it.
func (r *Registry) SetDailyTime(chatID int64, value string) (types.Subscriber, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "off" {
		value = ""
	} else if !validDailyTime(value) {
		return types.Subscriber{}, errors.Wrapf(ErrInvalidConfig, "daily time must be HH:MM or off, got %q", value)
	}
	return r.update(chatID, func(sub *types.Subscriber) {
		sub.DailyTime = value
	})
}

func (r *Registry) update(chatID int64, mutate func(*types.Subscriber)) (types.Subscriber, error) {
	sub, err := r.Get(chatID)
	if err != nil {
		return types.Subscriber{}, err
	}
	mutate(&sub)
	if err := r.db.UpsertSubscription(sub); err != nil {
		return types.Subscriber{}, errors.Wrap(err, "registry update")
	}
	return sub, nil
}

// parseCurrencies validates a user-supplied currency list. The whole list is
// rejected on the first unknown code so prior state survives a typo.
func parseCurrencies(args []string, allowOff bool) ([]string, error) {
	var set []string
	for _, arg := range args {
		for _, code := range strings.FieldsFunc(arg, isListSeparator) {
			switch strings.ToLower(code) {
			case types.CurrencyAll:
				return []string{types.CurrencyAll}, nil
			case "off":
				if allowOff {
					return nil, nil
				}
				return nil, errors.Wrap(ErrInvalidConfig, "off is only valid for alert currencies")
			default:
				if !types.IsKnownCurrency(code) {
					return nil, errors.Wrapf(ErrInvalidConfig, "unknown currency %q", code)
				}
				set = append(set, strings.ToUpper(code))
			}
		}
	}
	if len(set) == 0 {
		if allowOff {
			return nil, nil
		}
		return nil, errors.Wrap(ErrInvalidConfig, "currency list is empty")
	}
	return dedupe(set), nil
}

func parseImpacts(args []string) ([]types.Impact, error) {
	var set []types.Impact
	for _, arg := range args {
		for _, name := range strings.FieldsFunc(arg, isListSeparator) {
			if strings.EqualFold(name, "all") {
				return append([]types.Impact(nil), types.AllImpacts...), nil
			}
			impact, err := types.ParseImpact(name)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidConfig, "%v", err)
			}
			set = append(set, impact)
		}
	}
	if len(set) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "impact list is empty")
	}

	var out []types.Impact
	for _, i := range set {
		seen := false
		for _, o := range out {
			if o == i {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, i)
		}
	}
	return out, nil
}

func validDailyTime(value string) bool {
	parts := strings.Split(value, ":")
	if len(parts) != 2 || len(parts[1]) != 2 {
		return false
	}
	h, m := atoi(parts[0]), atoi(parts[1])
	return h >= 0 && h <= 23 && m >= 0 && m <= 59
}

func atoi(s string) int {
	n := 0
	if s == "" {
		return -1
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func isListSeparator(r rune) bool {
	return r == ',' || r == ' '
}

func dedupe(set []string) []string {
	var out []string
	seen := make(map[string]bool, len(set))
	for _, c := range set {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
