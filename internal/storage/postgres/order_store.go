package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// OrderStore implements storage.OrderStore using PostgreSQL.
type OrderStore struct {
	pool *Pool
}

// NewOrderStore creates a new OrderStore.
func NewOrderStore(pool *Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.OrderStore = (*OrderStore)(nil)

const orderColumns = `id, external_id, item_id, group_id, location, quality_level, enchantment_level,
		price, amount, initial_amount, auction_type, expires, created_at, updated_at, deleted_at`

// GetByExternalIDs fetches existing orders for the given external ids in
// a single query, keyed by external id.
func (s *OrderStore) GetByExternalIDs(ctx context.Context, externalIDs []int64) (map[int64]*domain.MarketOrder, error) {
	if len(externalIDs) == 0 {
		return map[int64]*domain.MarketOrder{}, nil
	}

	query := `
		SELECT ` + orderColumns + `
		FROM market_orders
		WHERE external_id = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, externalIDs)
	if err != nil {
		return nil, fmt.Errorf("get orders by external ids: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.MarketOrder, len(externalIDs))
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		result[order.ExternalID] = order
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	return result, nil
}

// UpsertBatch persists the batch atomically. Rows are matched by external
// id: existing rows get their order-book fields, UpdatedAt and DeletedAt
// replaced; new rows are inserted in full.
func (s *OrderStore) UpsertBatch(ctx context.Context, orders []*domain.MarketOrder) error {
	if len(orders) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO market_orders (
			external_id, item_id, group_id, location, quality_level, enchantment_level,
			price, amount, initial_amount, auction_type, expires, created_at, updated_at, deleted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (external_id) DO UPDATE SET
			price      = EXCLUDED.price,
			amount     = EXCLUDED.amount,
			location   = EXCLUDED.location,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	for _, o := range orders {
		_, err := tx.Exec(ctx, query,
			o.ExternalID,
			o.ItemTypeID,
			o.ItemGroupTypeID,
			o.LocationID,
			o.QualityLevel,
			o.EnchantmentLevel,
			o.UnitPriceSilver,
			o.Amount,
			o.InitialAmount,
			o.AuctionType,
			o.Expires,
			o.CreatedAt,
			o.UpdatedAt,
			o.DeletedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert order %d: %w", o.ExternalID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// GetByExternalID retrieves one order. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByExternalID(ctx context.Context, externalID int64) (*domain.MarketOrder, error) {
	query := `
		SELECT ` + orderColumns + `
		FROM market_orders
		WHERE external_id = $1
	`

	row := s.pool.QueryRow(ctx, query, externalID)
	order, err := scanOrderRow(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get order by external id: %w", err)
	}
	return order, nil
}

// scanOrder scans one order from a rows cursor.
func scanOrder(rows pgx.Rows) (*domain.MarketOrder, error) {
	var o domain.MarketOrder
	err := rows.Scan(
		&o.ID,
		&o.ExternalID,
		&o.ItemTypeID,
		&o.ItemGroupTypeID,
		&o.LocationID,
		&o.QualityLevel,
		&o.EnchantmentLevel,
		&o.UnitPriceSilver,
		&o.Amount,
		&o.InitialAmount,
		&o.AuctionType,
		&o.Expires,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.DeletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("scan order row: %w", err)
	}
	return &o, nil
}

// scanOrderRow scans one order from a single-row query.
func scanOrderRow(row pgx.Row) (*domain.MarketOrder, error) {
	var o domain.MarketOrder
	err := row.Scan(
		&o.ID,
		&o.ExternalID,
		&o.ItemTypeID,
		&o.ItemGroupTypeID,
		&o.LocationID,
		&o.QualityLevel,
		&o.EnchantmentLevel,
		&o.UnitPriceSilver,
		&o.Amount,
		&o.InitialAmount,
		&o.AuctionType,
		&o.Expires,
		&o.CreatedAt,
		&o.UpdatedAt,
		&o.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
