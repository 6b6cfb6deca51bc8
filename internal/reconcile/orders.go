// Package reconcile turns decoded market events into insert-or-update
// batches against the store, applying the per-record merge rules.
package reconcile

import (
	"context"
	"fmt"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// Expiry bounds for incoming orders. An expiry further out than
// maxExpiryAhead is malformed upstream data and gets clamped to
// clampedExpiry from now.
const (
	maxExpiryAhead = 365 * 24 * time.Hour
	clampedExpiry  = 7 * 24 * time.Hour
)

// OrderReconciler reconciles order-batch messages into the order store.
type OrderReconciler struct {
	store storage.OrderStore
	now   func() time.Time
}

// NewOrderReconciler creates a new OrderReconciler. A nil now defaults
// to time.Now.
func NewOrderReconciler(store storage.OrderStore, now func() time.Time) *OrderReconciler {
	if now == nil {
		now = time.Now
	}
	return &OrderReconciler{store: store, now: now}
}

// Reconcile applies a batch of order records. Existing orders (matched
// by external id in one pre-fetch) get their price, amount and location
// overwritten, UpdatedAt advanced and any prior soft-delete reversed;
// unseen orders are created with InitialAmount frozen at the first-seen
// amount. The whole batch persists atomically or the error surfaces and
// nothing is written. Returns the number of records persisted.
func (r *OrderReconciler) Reconcile(ctx context.Context, uploads []domain.OrderUpload) (int, error) {
	if len(uploads) == 0 {
		return 0, nil
	}

	externalIDs := make([]int64, 0, len(uploads))
	for _, u := range uploads {
		externalIDs = append(externalIDs, u.ID)
	}

	existing, err := r.store.GetByExternalIDs(ctx, externalIDs)
	if err != nil {
		return 0, fmt.Errorf("fetch existing orders: %w", err)
	}

	now := r.now().UTC()

	// The same external id should not appear twice in one message, but
	// when it does the later record wins and the batch must not fail.
	pending := make(map[int64]*domain.MarketOrder, len(uploads))
	batch := make([]*domain.MarketOrder, 0, len(uploads))

	for _, u := range uploads {
		if order, ok := pending[u.ID]; ok {
			applyUpdate(order, u, now)
			continue
		}
		if order, ok := existing[u.ID]; ok {
			applyUpdate(order, u, now)
			pending[u.ID] = order
			batch = append(batch, order)
			continue
		}

		order := &domain.MarketOrder{
			ExternalID:       u.ID,
			ItemTypeID:       u.ItemTypeID,
			ItemGroupTypeID:  u.ItemGroupTypeID,
			LocationID:       u.LocationID,
			QualityLevel:     u.QualityLevel,
			EnchantmentLevel: u.EnchantmentLevel,
			UnitPriceSilver:  u.UnitPriceSilver,
			Amount:           u.Amount,
			InitialAmount:    u.Amount,
			AuctionType:      u.AuctionType,
			Expires:          clampExpiry(u.Expires, now),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		pending[u.ID] = order
		batch = append(batch, order)
	}

	if err := r.store.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("upsert order batch: %w", err)
	}

	return len(batch), nil
}

// applyUpdate overwrites the order-book fields of an existing order.
// InitialAmount and CreatedAt are never touched, and a re-appearing
// order is live again regardless of any prior soft-delete.
func applyUpdate(order *domain.MarketOrder, u domain.OrderUpload, now time.Time) {
	order.UnitPriceSilver = u.UnitPriceSilver
	order.Amount = u.Amount
	order.LocationID = u.LocationID
	order.UpdatedAt = now
	order.DeletedAt = nil
}

// clampExpiry bounds an implausibly distant expiry to a week out.
func clampExpiry(expires, now time.Time) time.Time {
	if expires.After(now.Add(maxExpiryAhead)) {
		return now.Add(clampedExpiry)
	}
	return expires
}
