package postgres

import (
	"context"
	"fmt"
	"time"

	"market-data-sql/internal/storage"
)

// RetentionStore implements storage.RetentionStore using PostgreSQL.
// Every phase operation is a single bounded statement over row
// predicates, so a phase interrupted mid-run resumes from current row
// state on the next invocation.
type RetentionStore struct {
	pool *Pool
}

// NewRetentionStore creates a new RetentionStore.
func NewRetentionStore(pool *Pool) *RetentionStore {
	return &RetentionStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RetentionStore = (*RetentionStore)(nil)

// SoftDeleteStale marks live orders whose Expires has passed now or
// whose UpdatedAt is before staleBefore as deleted at now.
func (s *RetentionStore) SoftDeleteStale(ctx context.Context, now, staleBefore time.Time, limit int) (int64, error) {
	query := `
		UPDATE market_orders
		SET deleted_at = $1
		WHERE id IN (
			SELECT id FROM market_orders
			WHERE deleted_at IS NULL
			AND (expires < $1 OR updated_at < $2)
			LIMIT $3
		)
	`

	tag, err := s.pool.Exec(ctx, query, now, staleBefore, limit)
	if err != nil {
		return 0, fmt.Errorf("soft delete stale orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ArchiveRetired copies soft-deleted orders that have no archive row
// yet, or whose archive row carries a different DeletedAt, into the
// archive, upserting by external id.
func (s *RetentionStore) ArchiveRetired(ctx context.Context, limit int) (int64, error) {
	query := `
		INSERT INTO market_orders_expired (
			external_id, item_id, group_id, location, quality_level, enchantment_level,
			price, amount, initial_amount, auction_type, expires, created_at, updated_at, deleted_at
		)
		SELECT o.external_id, o.item_id, o.group_id, o.location, o.quality_level, o.enchantment_level,
			o.price, o.amount, o.initial_amount, o.auction_type, o.expires, o.created_at, o.updated_at, o.deleted_at
		FROM market_orders o
		LEFT JOIN market_orders_expired a ON a.external_id = o.external_id
		WHERE o.deleted_at IS NOT NULL
		AND (a.external_id IS NULL OR a.deleted_at IS DISTINCT FROM o.deleted_at)
		LIMIT $1
		ON CONFLICT (external_id) DO UPDATE SET
			price      = EXCLUDED.price,
			amount     = EXCLUDED.amount,
			location   = EXCLUDED.location,
			expires    = EXCLUDED.expires,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	tag, err := s.pool.Exec(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("archive retired orders: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeArchived hard-deletes soft-deleted orders whose archive row
// carries an equal DeletedAt.
func (s *RetentionStore) PurgeArchived(ctx context.Context, limit int) (int64, error) {
	query := `
		DELETE FROM market_orders
		WHERE id IN (
			SELECT o.id
			FROM market_orders o
			JOIN market_orders_expired a
				ON a.external_id = o.external_id
				AND a.deleted_at = o.deleted_at
			WHERE o.deleted_at IS NOT NULL
			LIMIT $1
		)
	`

	tag, err := s.pool.Exec(ctx, query, limit)
	if err != nil {
		return 0, fmt.Errorf("purge archived orders: %w", err)
	}
	return tag.RowsAffected(), nil
}
