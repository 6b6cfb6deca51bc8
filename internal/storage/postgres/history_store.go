package postgres

import (
	"context"
	"fmt"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *Pool
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// UpsertBatch inserts or replaces buckets by their natural key
// atomically. Amounts on an existing bucket are replaced wholesale.
func (s *HistoryStore) UpsertBatch(ctx context.Context, buckets []*domain.MarketHistoryBucket) error {
	if len(buckets) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO market_history (
			item_id, location, quality_level, aggregation, timestamp, item_amount, silver_amount
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (item_id, location, quality_level, aggregation, timestamp) DO UPDATE SET
			item_amount   = EXCLUDED.item_amount,
			silver_amount = EXCLUDED.silver_amount
	`

	for _, b := range buckets {
		_, err := tx.Exec(ctx, query,
			b.ItemTypeID,
			b.LocationID,
			b.QualityLevel,
			int(b.Aggregation),
			b.BucketStart,
			b.ItemAmount,
			b.SilverAmount,
		)
		if err != nil {
			return fmt.Errorf("upsert history bucket: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByKey retrieves one bucket by its natural key. Returns ErrNotFound
// if not exists.
func (s *HistoryStore) GetByKey(ctx context.Context, itemTypeID string, locationID, qualityLevel int, agg domain.Aggregation, bucketStart time.Time) (*domain.MarketHistoryBucket, error) {
	query := `
		SELECT id, item_id, location, quality_level, aggregation, timestamp, item_amount, silver_amount
		FROM market_history
		WHERE item_id = $1 AND location = $2 AND quality_level = $3 AND aggregation = $4 AND timestamp = $5
	`

	var b domain.MarketHistoryBucket
	var aggregation int
	err := s.pool.QueryRow(ctx, query, itemTypeID, locationID, qualityLevel, int(agg), bucketStart).Scan(
		&b.ID,
		&b.ItemTypeID,
		&b.LocationID,
		&b.QualityLevel,
		&aggregation,
		&b.BucketStart,
		&b.ItemAmount,
		&b.SilverAmount,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get history bucket by key: %w", err)
	}
	b.Aggregation = domain.Aggregation(aggregation)
	return &b, nil
}

// TrimHourlyBefore deletes up to limit hourly buckets whose bucket start
// is before the cutoff.
func (s *HistoryStore) TrimHourlyBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	query := `
		DELETE FROM market_history
		WHERE id IN (
			SELECT id FROM market_history
			WHERE aggregation = $1 AND timestamp < $2
			LIMIT $3
		)
	`

	tag, err := s.pool.Exec(ctx, query, int(domain.AggregationHourly), cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("trim hourly history: %w", err)
	}
	return tag.RowsAffected(), nil
}
