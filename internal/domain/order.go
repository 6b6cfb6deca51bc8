package domain

import "time"

// MarketOrder is a live order-book entry.
// Corresponds to the market_orders table in PostgreSQL.
//
// ExternalID is assigned by the game server and is the sole natural key:
// exactly one row exists per external id for the lifetime of the system.
// Updates mutate the row in place, they never insert a duplicate.
// A non-nil DeletedAt marks the row logically retired but not yet purged.
type MarketOrder struct {
	ID               int64  // BIGSERIAL primary key
	ExternalID       int64  // unique id assigned by the game server
	ItemTypeID       string // item type identifier
	ItemGroupTypeID  string // item group identifier
	LocationID       int    // market location
	QualityLevel     int
	EnchantmentLevel int
	UnitPriceSilver  int64
	Amount           int64
	InitialAmount    int64  // amount at first sighting, immutable after creation
	AuctionType      string // "offer" | "request"
	Expires          time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time // nil means live
}

// Live reports whether the order has not been soft-deleted.
func (o *MarketOrder) Live() bool {
	return o.DeletedAt == nil
}

// ArchivedOrder is a durable copy of a retired MarketOrder, keyed by the
// same external id. The live row may only be purged once an archived row
// with an equal DeletedAt exists.
// Corresponds to the market_orders_expired table in PostgreSQL.
type ArchivedOrder struct {
	ID               int64
	ExternalID       int64
	ItemTypeID       string
	ItemGroupTypeID  string
	LocationID       int
	QualityLevel     int
	EnchantmentLevel int
	UnitPriceSilver  int64
	Amount           int64
	InitialAmount    int64
	AuctionType      string
	Expires          time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        *time.Time
}

// OrderUpload is one decoded order record from an order-batch message.
// The source system's id becomes the stored order's ExternalID.
type OrderUpload struct {
	ID               int64     `json:"id"`
	ItemTypeID       string    `json:"itemType"`
	ItemGroupTypeID  string    `json:"itemGroup"`
	LocationID       int       `json:"location"`
	QualityLevel     int       `json:"quality"`
	EnchantmentLevel int       `json:"enchantment"`
	UnitPriceSilver  int64     `json:"unitPrice"`
	Amount           int64     `json:"amount"`
	AuctionType      string    `json:"auctionType"`
	Expires          time.Time `json:"expires"`
}
