package database

import (
	"database/sql"
	"fmt"
	"strings"

	"economic-news-bot/internal/types"
)

// UpsertSubscription writes a chat's full subscription record.
func (d *DB) UpsertSubscription(s types.Subscriber) error {
	query := `
	INSERT INTO subscriptions (chat_id, summary_currencies, alert_currencies, impacts, timezone, daily_time)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(chat_id) DO UPDATE SET
		summary_currencies = excluded.summary_currencies,
		alert_currencies = excluded.alert_currencies,
		impacts = excluded.impacts,
		timezone = excluded.timezone,
		daily_time = excluded.daily_time,
		updated_at = CURRENT_TIMESTAMP;`

	_, err := d.conn.Exec(query,
		s.ChatID, joinSet(s.SummaryCurrencies), joinSet(s.AlertCurrencies),
		joinImpacts(s.Impacts), s.Timezone, s.DailyTime)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

// GetSubscription fetches one chat's record; found is false when absent.
func (d *DB) GetSubscription(chatID int64) (types.Subscriber, bool, error) {
	query := `
	SELECT chat_id, summary_currencies, alert_currencies, impacts, timezone, daily_time, created_at
	FROM subscriptions WHERE chat_id = ?;`

	sub, err := scanSubscription(d.conn.QueryRow(query, chatID))
	if err == sql.ErrNoRows {
		return types.Subscriber{}, false, nil
	}
	if err != nil {
		return types.Subscriber{}, false, fmt.Errorf("failed to query subscription for chat %d: %w", chatID, err)
	}
	return sub, true, nil
}

// AllSubscriptions fetches every persisted record.
func (d *DB) AllSubscriptions() ([]types.Subscriber, error) {
	query := `
	SELECT chat_id, summary_currencies, alert_currencies, impacts, timezone, daily_time, created_at
	FROM subscriptions;`

	rows, err := d.conn.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []types.Subscriber
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteSubscription removes a chat's record.
func (d *DB) DeleteSubscription(chatID int64) error {
	query := `DELETE FROM subscriptions WHERE chat_id = ?;`
	if _, err := d.conn.Exec(query, chatID); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(r rowScanner) (types.Subscriber, error) {
	var sub types.Subscriber
	var summary, alerts, impacts string
	if err := r.Scan(&sub.ChatID, &summary, &alerts, &impacts, &sub.Timezone, &sub.DailyTime, &sub.CreatedAt); err != nil {
		return types.Subscriber{}, err
	}
	sub.SummaryCurrencies = splitSet(summary)
	sub.AlertCurrencies = splitSet(alerts)
	sub.Impacts = splitImpacts(impacts)
	return sub, nil
}

func joinSet(set []string) string {
	return strings.Join(set, ",")
}

func splitSet(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func joinImpacts(impacts []types.Impact) string {
	names := make([]string, 0, len(impacts))
	for _, i := range impacts {
		names = append(names, i.String())
	}
	return strings.Join(names, ",")
}

func splitImpacts(s string) []types.Impact {
	var impacts []types.Impact
	for _, name := range splitSet(s) {
		i, err := types.ParseImpact(name)
		if err != nil {
			continue
		}
		impacts = append(impacts, i)
	}
	return impacts
}
