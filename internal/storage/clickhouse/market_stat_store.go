package clickhouse

import (
	"context"
	"fmt"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// MarketStatStore implements storage.MarketStatStore using ClickHouse.
// Rows are append-only; the ReplacingMergeTree key deduplicates
// re-mirrored buckets at merge time.
type MarketStatStore struct {
	conn *Conn
}

// NewMarketStatStore creates a new MarketStatStore.
func NewMarketStatStore(conn *Conn) *MarketStatStore {
	return &MarketStatStore{conn: conn}
}

// Compile-time interface check.
var _ storage.MarketStatStore = (*MarketStatStore)(nil)

// InsertBatch appends the given stats.
func (s *MarketStatStore) InsertBatch(ctx context.Context, stats []*domain.MarketStat) error {
	if len(stats) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO market_stats (
			item_id, location, quality_level, aggregation, bucket_start, item_amount, silver_amount
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, st := range stats {
		err = batch.Append(
			st.ItemTypeID,
			int32(st.LocationID),
			uint8(st.QualityLevel),
			uint8(st.Aggregation),
			st.BucketStart,
			st.ItemAmount,
			st.SilverAmount,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}
