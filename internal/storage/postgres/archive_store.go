package postgres

import (
	"context"
	"fmt"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// ArchiveStore implements storage.ArchiveStore using PostgreSQL.
type ArchiveStore struct {
	pool *Pool
}

// NewArchiveStore creates a new ArchiveStore.
func NewArchiveStore(pool *Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// Compile-time interface check.
var _ storage.ArchiveStore = (*ArchiveStore)(nil)

// GetByExternalID retrieves one archived order. Returns ErrNotFound if
// not exists.
func (s *ArchiveStore) GetByExternalID(ctx context.Context, externalID int64) (*domain.ArchivedOrder, error) {
	query := `
		SELECT id, external_id, item_id, group_id, location, quality_level, enchantment_level,
			price, amount, initial_amount, auction_type, expires, created_at, updated_at, deleted_at
		FROM market_orders_expired
		WHERE external_id = $1
	`

	var a domain.ArchivedOrder
	err := s.pool.QueryRow(ctx, query, externalID).Scan(
		&a.ID,
		&a.ExternalID,
		&a.ItemTypeID,
		&a.ItemGroupTypeID,
		&a.LocationID,
		&a.QualityLevel,
		&a.EnchantmentLevel,
		&a.UnitPriceSilver,
		&a.Amount,
		&a.InitialAmount,
		&a.AuctionType,
		&a.Expires,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.DeletedAt,
	)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get archived order by external id: %w", err)
	}
	return &a, nil
}
