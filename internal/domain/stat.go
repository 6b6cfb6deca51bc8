package domain

import "time"

// MarketStat is an analytics mirror of a persisted history bucket.
// Corresponds to the market_stats table in ClickHouse. Rows are
// append-only; readers deduplicate by the ReplacingMergeTree key.
type MarketStat struct {
	ItemTypeID   string
	LocationID   int
	QualityLevel int
	Aggregation  Aggregation
	BucketStart  time.Time
	ItemAmount   int64
	SilverAmount int64
}
