package postgres

import (
	"context"
	"fmt"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// GoldStore implements storage.GoldStore using PostgreSQL.
type GoldStore struct {
	pool *Pool
}

// NewGoldStore creates a new GoldStore.
func NewGoldStore(pool *Pool) *GoldStore {
	return &GoldStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GoldStore = (*GoldStore)(nil)

// GetByTimestamps fetches existing points for the given timestamps in a
// single query, keyed by Unix millisecond.
func (s *GoldStore) GetByTimestamps(ctx context.Context, timestamps []time.Time) (map[int64]*domain.GoldPricePoint, error) {
	if len(timestamps) == 0 {
		return map[int64]*domain.GoldPricePoint{}, nil
	}

	query := `
		SELECT id, price, timestamp, created_at, updated_at
		FROM gold_prices
		WHERE timestamp = ANY($1)
	`

	rows, err := s.pool.Query(ctx, query, timestamps)
	if err != nil {
		return nil, fmt.Errorf("get gold prices by timestamps: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]*domain.GoldPricePoint, len(timestamps))
	for rows.Next() {
		var p domain.GoldPricePoint
		err := rows.Scan(&p.ID, &p.Price, &p.Timestamp, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan gold price row: %w", err)
		}
		result[p.Timestamp.UnixMilli()] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate gold price rows: %w", err)
	}

	return result, nil
}

// UpsertBatch inserts or replaces points by timestamp atomically.
func (s *GoldStore) UpsertBatch(ctx context.Context, points []*domain.GoldPricePoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO gold_prices (price, timestamp, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (timestamp) DO UPDATE SET
			price      = EXCLUDED.price,
			updated_at = EXCLUDED.updated_at
	`

	for _, p := range points {
		_, err := tx.Exec(ctx, query, p.Price, p.Timestamp, p.CreatedAt, p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert gold price: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}
