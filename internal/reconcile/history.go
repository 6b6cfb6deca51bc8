package reconcile

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// HistoryReconciler reconciles history messages into the history store
// and mirrors persisted buckets to an optional stats sink.
type HistoryReconciler struct {
	store  storage.HistoryStore
	stats  storage.MarketStatStore // optional analytics mirror
	logger *log.Logger
}

// NewHistoryReconciler creates a new HistoryReconciler. stats may be nil
// to disable the analytics mirror.
func NewHistoryReconciler(store storage.HistoryStore, stats storage.MarketStatStore, logger *log.Logger) *HistoryReconciler {
	if logger == nil {
		logger = log.Default()
	}
	return &HistoryReconciler{store: store, stats: stats, logger: logger}
}

// Reconcile applies one history upload. Buckets are sorted by bucket
// start ascending and the latest bucket is always excluded: it covers a
// still-open window and cannot be trusted to be complete. The rest are
// upserted by their natural key. Returns the number of buckets persisted.
func (r *HistoryReconciler) Reconcile(ctx context.Context, upload *domain.HistoryUpload) (int, error) {
	agg := domain.AggregationForTimescale(upload.Timescale)

	buckets := make([]domain.HistoryBucketUpload, len(upload.Buckets))
	copy(buckets, upload.Buckets)
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Timestamp < buckets[j].Timestamp })

	// Drop the trailing partial bucket.
	if len(buckets) > 0 {
		buckets = buckets[:len(buckets)-1]
	}
	if len(buckets) == 0 {
		return 0, nil
	}

	rows := make([]*domain.MarketHistoryBucket, 0, len(buckets))
	for _, b := range buckets {
		rows = append(rows, &domain.MarketHistoryBucket{
			ItemTypeID:   upload.ItemTypeID,
			LocationID:   upload.LocationID,
			QualityLevel: upload.QualityLevel,
			Aggregation:  agg,
			BucketStart:  time.UnixMilli(b.Timestamp).UTC(),
			ItemAmount:   b.ItemAmount,
			SilverAmount: b.SilverAmount,
		})
	}

	if err := r.store.UpsertBatch(ctx, rows); err != nil {
		return 0, fmt.Errorf("upsert history batch: %w", err)
	}

	r.mirror(ctx, rows)

	return len(rows), nil
}

// mirror appends persisted buckets to the stats sink. The mirror is
// best-effort: a failure is logged and does not fail the message.
func (r *HistoryReconciler) mirror(ctx context.Context, rows []*domain.MarketHistoryBucket) {
	if r.stats == nil {
		return
	}

	stats := make([]*domain.MarketStat, 0, len(rows))
	for _, row := range rows {
		stats = append(stats, &domain.MarketStat{
			ItemTypeID:   row.ItemTypeID,
			LocationID:   row.LocationID,
			QualityLevel: row.QualityLevel,
			Aggregation:  row.Aggregation,
			BucketStart:  row.BucketStart,
			ItemAmount:   row.ItemAmount,
			SilverAmount: row.SilverAmount,
		})
	}

	if err := r.stats.InsertBatch(ctx, stats); err != nil {
		r.logger.Printf("[reconcile] stats mirror failed for %d buckets: %v", len(stats), err)
	}
}
