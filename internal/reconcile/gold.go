package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// ErrMismatchedLengths is returned when a gold message's price and
// timestamp arrays differ in length. The whole message is malformed and
// must not mutate the store.
var ErrMismatchedLengths = errors.New("gold prices and timestamps differ in length")

// GoldReconciler reconciles gold messages into the gold store.
type GoldReconciler struct {
	store storage.GoldStore
	now   func() time.Time
}

// NewGoldReconciler creates a new GoldReconciler. A nil now defaults to
// time.Now.
func NewGoldReconciler(store storage.GoldStore, now func() time.Time) *GoldReconciler {
	if now == nil {
		now = time.Now
	}
	return &GoldReconciler{store: store, now: now}
}

// Reconcile applies one gold upload. Existing points (matched by exact
// timestamp in one pre-fetch) are updated only when the price actually
// changed; unseen timestamps are inserted. Returns the number of points
// written.
func (r *GoldReconciler) Reconcile(ctx context.Context, upload *domain.GoldPriceUpload) (int, error) {
	if len(upload.Prices) != len(upload.Timestamps) {
		return 0, fmt.Errorf("%w: %d prices, %d timestamps",
			ErrMismatchedLengths, len(upload.Prices), len(upload.Timestamps))
	}
	if len(upload.Prices) == 0 {
		return 0, nil
	}

	timestamps := make([]time.Time, 0, len(upload.Timestamps))
	for _, ts := range upload.Timestamps {
		timestamps = append(timestamps, time.UnixMilli(ts).UTC())
	}

	existing, err := r.store.GetByTimestamps(ctx, timestamps)
	if err != nil {
		return 0, fmt.Errorf("fetch existing gold prices: %w", err)
	}

	now := r.now().UTC()

	// Last write wins when a timestamp repeats within one message.
	changed := make(map[int64]*domain.GoldPricePoint)
	var order []int64

	for i, price := range upload.Prices {
		ts := timestamps[i]
		key := ts.UnixMilli()

		if point, ok := changed[key]; ok {
			point.Price = price
			continue
		}
		if point, ok := existing[key]; ok {
			if point.Price == price {
				continue
			}
			point.Price = price
			point.UpdatedAt = now
			changed[key] = point
			order = append(order, key)
			continue
		}

		changed[key] = &domain.GoldPricePoint{
			Price:     price,
			Timestamp: ts,
			CreatedAt: now,
			UpdatedAt: now,
		}
		order = append(order, key)
	}

	if len(changed) == 0 {
		return 0, nil
	}

	batch := make([]*domain.GoldPricePoint, 0, len(order))
	for _, key := range order {
		batch = append(batch, changed[key])
	}

	if err := r.store.UpsertBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("upsert gold batch: %w", err)
	}

	return len(batch), nil
}
