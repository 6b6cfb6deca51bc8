package reconcile

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage/memory"
)

func TestHistoryReconciler_DropsTrailingBucket(t *testing.T) {
	store := memory.NewHistoryStore()
	r := NewHistoryReconciler(store, nil, nil)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	t1 := base.UnixMilli()
	t2 := base.Add(time.Hour).UnixMilli()
	t3 := base.Add(2 * time.Hour).UnixMilli()

	// Buckets arrive unsorted; t3 is the still-open window.
	n, err := r.Reconcile(ctx, &domain.HistoryUpload{
		ItemTypeID: "T4_BAG", LocationID: 3005, QualityLevel: 1,
		Timescale: domain.TimescaleDay,
		Buckets: []domain.HistoryBucketUpload{
			{Timestamp: t3, ItemAmount: 5, SilverAmount: 500},
			{Timestamp: t1, ItemAmount: 10, SilverAmount: 1000},
			{Timestamp: t2, ItemAmount: 20, SilverAmount: 2000},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.Count())

	first, err := store.GetByKey(ctx, "T4_BAG", 3005, 1, domain.AggregationHourly, base)
	require.NoError(t, err)
	assert.Equal(t, int64(10), first.ItemAmount)

	_, err = store.GetByKey(ctx, "T4_BAG", 3005, 1, domain.AggregationHourly, base.Add(2*time.Hour))
	assert.Error(t, err, "the latest bucket must not be persisted")
}

func TestHistoryReconciler_SingleBucketPersistsNothing(t *testing.T) {
	store := memory.NewHistoryStore()
	r := NewHistoryReconciler(store, nil, nil)

	n, err := r.Reconcile(context.Background(), &domain.HistoryUpload{
		ItemTypeID: "T4_BAG", Timescale: domain.TimescaleDay,
		Buckets: []domain.HistoryBucketUpload{
			{Timestamp: time.Now().UnixMilli(), ItemAmount: 1, SilverAmount: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, store.Count())
}

func TestHistoryReconciler_TimescaleSelectsAggregation(t *testing.T) {
	store := memory.NewHistoryStore()
	r := NewHistoryReconciler(store, nil, nil)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	buckets := []domain.HistoryBucketUpload{
		{Timestamp: base.UnixMilli(), ItemAmount: 1, SilverAmount: 1},
		{Timestamp: base.Add(6 * time.Hour).UnixMilli(), ItemAmount: 2, SilverAmount: 2},
	}

	_, err := r.Reconcile(ctx, &domain.HistoryUpload{
		ItemTypeID: "T4_BAG", Timescale: domain.TimescaleDay, Buckets: buckets,
	})
	require.NoError(t, err)
	_, err = store.GetByKey(ctx, "T4_BAG", 0, 0, domain.AggregationHourly, base)
	assert.NoError(t, err, "a daily upload carries hourly buckets")

	_, err = r.Reconcile(ctx, &domain.HistoryUpload{
		ItemTypeID: "T5_SWORD", Timescale: domain.TimescaleWeek, Buckets: buckets,
	})
	require.NoError(t, err)
	_, err = store.GetByKey(ctx, "T5_SWORD", 0, 0, domain.AggregationQuarterDay, base)
	assert.NoError(t, err, "a weekly upload carries quarter-day buckets")
}

func TestHistoryReconciler_ReplacesBucketAmounts(t *testing.T) {
	store := memory.NewHistoryStore()
	r := NewHistoryReconciler(store, nil, nil)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	upload := func(amount int64) *domain.HistoryUpload {
		return &domain.HistoryUpload{
			ItemTypeID: "T4_BAG", Timescale: domain.TimescaleDay,
			Buckets: []domain.HistoryBucketUpload{
				{Timestamp: base.UnixMilli(), ItemAmount: amount, SilverAmount: amount * 100},
				{Timestamp: base.Add(time.Hour).UnixMilli(), ItemAmount: 1, SilverAmount: 1},
			},
		}
	}

	_, err := r.Reconcile(ctx, upload(10))
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, upload(25))
	require.NoError(t, err)

	bucket, err := store.GetByKey(ctx, "T4_BAG", 0, 0, domain.AggregationHourly, base)
	require.NoError(t, err)
	assert.Equal(t, int64(25), bucket.ItemAmount, "a re-upload replaces the bucket wholesale")
	assert.Equal(t, 1, store.Count())
}

func TestHistoryReconciler_MirrorsToStats(t *testing.T) {
	store := memory.NewHistoryStore()
	stats := memory.NewMarketStatStore()
	r := NewHistoryReconciler(store, stats, nil)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n, err := r.Reconcile(context.Background(), &domain.HistoryUpload{
		ItemTypeID: "T4_BAG", LocationID: 3005, Timescale: domain.TimescaleDay,
		Buckets: []domain.HistoryBucketUpload{
			{Timestamp: base.UnixMilli(), ItemAmount: 10, SilverAmount: 1000},
			{Timestamp: base.Add(time.Hour).UnixMilli(), ItemAmount: 1, SilverAmount: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mirrored := stats.Stats()
	require.Len(t, mirrored, 1)
	assert.Equal(t, "T4_BAG", mirrored[0].ItemTypeID)
	assert.Equal(t, int64(10), mirrored[0].ItemAmount)
}

type failingStatStore struct{}

func (failingStatStore) InsertBatch(context.Context, []*domain.MarketStat) error {
	return errors.New("sink unavailable")
}

func TestHistoryReconciler_MirrorFailureDoesNotFailMessage(t *testing.T) {
	store := memory.NewHistoryStore()
	r := NewHistoryReconciler(store, failingStatStore{}, log.New(log.Writer(), "", 0))

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	n, err := r.Reconcile(context.Background(), &domain.HistoryUpload{
		ItemTypeID: "T4_BAG", Timescale: domain.TimescaleDay,
		Buckets: []domain.HistoryBucketUpload{
			{Timestamp: base.UnixMilli(), ItemAmount: 10, SilverAmount: 1000},
			{Timestamp: base.Add(time.Hour).UnixMilli(), ItemAmount: 1, SilverAmount: 1},
		},
	})
	require.NoError(t, err, "the mirror is best-effort")
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.Count())
}
