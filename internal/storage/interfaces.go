package storage

import (
	"context"
	"time"

	"market-data-sql/internal/domain"
)

// OrderStore provides access to market_orders storage.
type OrderStore interface {
	// GetByExternalIDs fetches existing orders for the given external ids
	// in a single query, keyed by external id. Missing ids are absent
	// from the map.
	GetByExternalIDs(ctx context.Context, externalIDs []int64) (map[int64]*domain.MarketOrder, error)

	// UpsertBatch persists the batch atomically. Rows are matched by
	// external id: an existing row gets its order-book fields (price,
	// amount, location), UpdatedAt and DeletedAt replaced; a new row is
	// inserted in full. The whole batch commits or none of it does.
	UpsertBatch(ctx context.Context, orders []*domain.MarketOrder) error

	// GetByExternalID retrieves one order. Returns ErrNotFound if not exists.
	GetByExternalID(ctx context.Context, externalID int64) (*domain.MarketOrder, error)
}

// ArchiveStore provides read access to market_orders_expired storage.
type ArchiveStore interface {
	// GetByExternalID retrieves one archived order. Returns ErrNotFound
	// if not exists.
	GetByExternalID(ctx context.Context, externalID int64) (*domain.ArchivedOrder, error)
}

// RetentionStore exposes the bounded, predicate-driven phase operations
// the retention pipeline runs against market orders. Every operation
// re-evaluates current row state, affects at most limit rows, and
// returns the number of rows affected; all three are idempotent.
type RetentionStore interface {
	// SoftDeleteStale marks live orders whose Expires has passed now or
	// whose UpdatedAt is before staleBefore as deleted at now.
	SoftDeleteStale(ctx context.Context, now, staleBefore time.Time, limit int) (int64, error)

	// ArchiveRetired copies soft-deleted orders that have no archive row
	// yet, or whose archive row carries a different DeletedAt, into the
	// archive, upserting by external id.
	ArchiveRetired(ctx context.Context, limit int) (int64, error)

	// PurgeArchived hard-deletes soft-deleted orders whose archive row
	// carries an equal DeletedAt. Orders without a confirmed archive
	// copy are left untouched.
	PurgeArchived(ctx context.Context, limit int) (int64, error)
}

// HistoryStore provides access to market_history storage.
type HistoryStore interface {
	// UpsertBatch inserts or replaces buckets by their natural key
	// atomically. Amounts on an existing bucket are replaced wholesale.
	UpsertBatch(ctx context.Context, buckets []*domain.MarketHistoryBucket) error

	// GetByKey retrieves one bucket by its natural key. Returns
	// ErrNotFound if not exists.
	GetByKey(ctx context.Context, itemTypeID string, locationID, qualityLevel int, agg domain.Aggregation, bucketStart time.Time) (*domain.MarketHistoryBucket, error)

	// TrimHourlyBefore deletes up to limit hourly buckets whose bucket
	// start is before the cutoff. Returns the number of rows deleted.
	TrimHourlyBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

// GoldStore provides access to gold_prices storage.
type GoldStore interface {
	// GetByTimestamps fetches existing points for the given timestamps
	// in a single query, keyed by Unix millisecond.
	GetByTimestamps(ctx context.Context, timestamps []time.Time) (map[int64]*domain.GoldPricePoint, error)

	// UpsertBatch inserts or replaces points by timestamp atomically.
	UpsertBatch(ctx context.Context, points []*domain.GoldPricePoint) error
}

// MarketStatStore receives the analytics mirror of persisted history
// buckets. Writes are append-only and best-effort.
type MarketStatStore interface {
	// InsertBatch appends the given stats.
	InsertBatch(ctx context.Context, stats []*domain.MarketStat) error
}
