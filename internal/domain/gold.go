package domain

import "time"

// GoldPricePoint is one sample of the gold price series, keyed by its
// exact timestamp. At most one sample exists per timestamp.
// Corresponds to the gold_prices table in PostgreSQL.
type GoldPricePoint struct {
	ID        int64
	Price     int
	Timestamp time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// GoldPriceUpload is a decoded gold message: parallel arrays of prices
// and their Unix-millisecond timestamps. The arrays must be equal length.
type GoldPriceUpload struct {
	Prices     []int   `json:"prices"`
	Timestamps []int64 `json:"timestamps"`
}
