package domain

import "time"

// Timescale is the aggregation window declared by a history upload.
type Timescale int

// Timescale values as sent on the wire.
const (
	TimescaleDay   Timescale = 0
	TimescaleWeek  Timescale = 1
	TimescaleMonth Timescale = 2
)

// Aggregation is the granularity of stored history buckets.
// A daily upload carries hourly buckets; any other timescale carries
// quarter-day buckets.
type Aggregation int

const (
	AggregationHourly     Aggregation = 1
	AggregationQuarterDay Aggregation = 2
)

// AggregationForTimescale maps an upload's declared timescale to the
// granularity of the buckets it carries.
func AggregationForTimescale(ts Timescale) Aggregation {
	if ts == TimescaleDay {
		return AggregationHourly
	}
	return AggregationQuarterDay
}

// MarketHistoryBucket is an aggregated time bucket for one
// (item, location, quality, aggregation, bucket start) tuple. The tuple
// is a natural key: at most one bucket exists per tuple, and buckets are
// only ever replaced wholesale.
// Corresponds to the market_history table in PostgreSQL.
type MarketHistoryBucket struct {
	ID           int64
	ItemTypeID   string
	LocationID   int
	QualityLevel int
	Aggregation  Aggregation
	BucketStart  time.Time // start of the aggregation window
	ItemAmount   int64     // items traded within the bucket
	SilverAmount int64     // silver moved within the bucket
}

// HistoryUpload is a decoded history message: a batch of buckets for one
// (item, location, quality) tuple plus the upload's declared timescale.
type HistoryUpload struct {
	ItemTypeID   string                `json:"itemTypeId"`
	LocationID   int                   `json:"locationId"`
	QualityLevel int                   `json:"qualityLevel"`
	Timescale    Timescale             `json:"timescale"`
	Buckets      []HistoryBucketUpload `json:"buckets"`
}

// HistoryBucketUpload is one bucket within a history upload.
type HistoryBucketUpload struct {
	Timestamp    int64 `json:"timestamp"` // bucket start, Unix milliseconds
	ItemAmount   int64 `json:"itemAmount"`
	SilverAmount int64 `json:"silverAmount"`
}
