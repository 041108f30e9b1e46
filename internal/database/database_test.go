package database

import (
	"path/filepath"
	"testing"

	"economic-news-bot/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Init(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSubscriptionRoundTrip(t *testing.T) {
	db := openTestDB(t)

	sub := types.Subscriber{
		ChatID:            42,
		SummaryCurrencies: []string{"USD", "EUR"},
		AlertCurrencies:   []string{types.CurrencyAll},
		Impacts:           []types.Impact{types.ImpactHigh, types.ImpactMedium},
		Timezone:          "UTC+2",
		DailyTime:         "07:00",
	}
	require.NoError(t, db.UpsertSubscription(sub))

	got, found, err := db.GetSubscription(42)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(42), got.ChatID)
	assert.Equal(t, []string{"USD", "EUR"}, got.SummaryCurrencies)
	assert.Equal(t, []string{types.CurrencyAll}, got.AlertCurrencies)
	assert.Equal(t, []types.Impact{types.ImpactHigh, types.ImpactMedium}, got.Impacts)
	assert.Equal(t, "UTC+2", got.Timezone)
	assert.Equal(t, "07:00", got.DailyTime)
	assert.NotEmpty(t, got.CreatedAt)
}

func TestGetSubscriptionAbsent(t *testing.T) {
	db := openTestDB(t)

	_, found, err := db.GetSubscription(999)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpsertSubscriptionOverwrites(t *testing.T) {
	db := openTestDB(t)

	first := types.Subscriber{ChatID: 7, SummaryCurrencies: []string{"USD"}, Impacts: []types.Impact{types.ImpactHigh}}
	require.NoError(t, db.UpsertSubscription(first))

	second := first
	second.SummaryCurrencies = []string{"GBP"}
	second.DailyTime = "09:30"
	require.NoError(t, db.UpsertSubscription(second))

	got, found, err := db.GetSubscription(7)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"GBP"}, got.SummaryCurrencies)
	assert.Equal(t, "09:30", got.DailyTime)

	all, err := db.AllSubscriptions()
	require.NoError(t, err)
	assert.Len(t, all, 1, "upsert must not create a second row")
}

func TestEmptySetsRoundTripAsEmpty(t *testing.T) {
	db := openTestDB(t)

	sub := types.Subscriber{ChatID: 3, Impacts: []types.Impact{types.ImpactHigh}}
	require.NoError(t, db.UpsertSubscription(sub))

	got, found, err := db.GetSubscription(3)
	require.NoError(t, err)
	require.True(t, found)
	assert.Empty(t, got.SummaryCurrencies)
	assert.Empty(t, got.AlertCurrencies, "alerts stay off after a round trip")
}

func TestDeleteSubscription(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.UpsertSubscription(types.Subscriber{ChatID: 11}))
	require.NoError(t, db.DeleteSubscription(11))

	_, found, err := db.GetSubscription(11)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, db.DeleteSubscription(11), "deleting an absent row is fine")
}

func TestMetricPersistence(t *testing.T) {
	db := openTestDB(t)

	v, err := db.GetMetric("alerts_sent")
	require.NoError(t, err)
	assert.Zero(t, v, "missing metrics default to zero")

	require.NoError(t, db.SaveMetric("alerts_sent", 12))
	require.NoError(t, db.SaveMetric("alerts_sent", 15))

	v, err = db.GetMetric("alerts_sent")
	require.NoError(t, err)
	assert.Equal(t, float64(15), v, "save replaces, never duplicates")
}

func TestLabeledMetricPersistence(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, db.SaveMetricWithLabels("alerts_sent_by_kind", "kind", "warning", 4))
	require.NoError(t, db.SaveMetricWithLabels("alerts_sent_by_kind", "kind", "release", 6))
	require.NoError(t, db.SaveMetricWithLabels("alerts_sent_by_kind", "kind", "warning", 5))

	got, err := db.GetMetricsWithLabels("alerts_sent_by_kind")
	require.NoError(t, err)
	require.Contains(t, got, "kind")
	assert.Equal(t, float64(5), got["kind"]["warning"])
	assert.Equal(t, float64(6), got["kind"]["release"])

	plain, err := db.GetMetric("alerts_sent_by_kind")
	require.NoError(t, err)
	assert.Zero(t, plain, "labeled samples stay out of the unlabeled read")
}
