package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage/memory"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestOrderReconciler_CreateNew(t *testing.T) {
	store := memory.NewOrderStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewOrderReconciler(store, fixedNow(now))
	ctx := context.Background()

	n, err := r.Reconcile(ctx, []domain.OrderUpload{{
		ID:              42,
		ItemTypeID:      "T4_BAG",
		LocationID:      3005,
		UnitPriceSilver: 1500,
		Amount:          10,
		AuctionType:     "offer",
		Expires:         now.Add(48 * time.Hour),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	order, err := store.GetByExternalID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), order.ExternalID)
	assert.Equal(t, int64(10), order.Amount)
	assert.Equal(t, int64(10), order.InitialAmount)
	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, now, order.UpdatedAt)
	assert.True(t, order.Live())
	assert.Equal(t, 1, store.LiveCount())
}

func TestOrderReconciler_UpdateKeepsInitialAmount(t *testing.T) {
	store := memory.NewOrderStore()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)
	ctx := context.Background()

	r0 := NewOrderReconciler(store, fixedNow(t0))
	_, err := r0.Reconcile(ctx, []domain.OrderUpload{{
		ID: 42, ItemTypeID: "T4_BAG", LocationID: 3005,
		UnitPriceSilver: 1500, Amount: 10, AuctionType: "offer",
		Expires: t0.Add(48 * time.Hour),
	}})
	require.NoError(t, err)

	// Same external id seen again with fewer items and a new price.
	r1 := NewOrderReconciler(store, fixedNow(t1))
	n, err := r1.Reconcile(ctx, []domain.OrderUpload{{
		ID: 42, ItemTypeID: "T4_BAG", LocationID: 2004,
		UnitPriceSilver: 1400, Amount: 7, AuctionType: "offer",
		Expires: t0.Add(48 * time.Hour),
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	order, err := store.GetByExternalID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1400), order.UnitPriceSilver)
	assert.Equal(t, int64(7), order.Amount)
	assert.Equal(t, int64(10), order.InitialAmount, "InitialAmount is frozen at first sighting")
	assert.Equal(t, 2004, order.LocationID)
	assert.Equal(t, t0, order.CreatedAt)
	assert.Equal(t, t1, order.UpdatedAt)
	assert.Equal(t, 1, store.LiveCount(), "update must not insert a second row")
}

func TestOrderReconciler_ReappearanceClearsSoftDelete(t *testing.T) {
	store := memory.NewOrderStore()
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	r := NewOrderReconciler(store, fixedNow(t0))
	_, err := r.Reconcile(ctx, []domain.OrderUpload{{
		ID: 7, ItemTypeID: "T5_SWORD", UnitPriceSilver: 900, Amount: 1,
		AuctionType: "offer", Expires: t0.Add(time.Hour),
	}})
	require.NoError(t, err)

	// Retire the order, then let it show up in a later message.
	_, err = store.SoftDeleteStale(ctx, t0.Add(2*time.Hour), t0.Add(time.Hour), 10)
	require.NoError(t, err)
	order, err := store.GetByExternalID(ctx, 7)
	require.NoError(t, err)
	require.False(t, order.Live())

	t1 := t0.Add(3 * time.Hour)
	r1 := NewOrderReconciler(store, fixedNow(t1))
	_, err = r1.Reconcile(ctx, []domain.OrderUpload{{
		ID: 7, ItemTypeID: "T5_SWORD", UnitPriceSilver: 950, Amount: 1,
		AuctionType: "offer", Expires: t1.Add(time.Hour),
	}})
	require.NoError(t, err)

	order, err = store.GetByExternalID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, order.Live(), "re-appearing order must be live again")
	assert.Equal(t, t1, order.UpdatedAt)
}

func TestOrderReconciler_ExpiryClamp(t *testing.T) {
	store := memory.NewOrderStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewOrderReconciler(store, fixedNow(now))
	ctx := context.Background()

	_, err := r.Reconcile(ctx, []domain.OrderUpload{
		{ID: 1, UnitPriceSilver: 1, Amount: 1, AuctionType: "offer", Expires: now.Add(400 * 24 * time.Hour)},
		{ID: 2, UnitPriceSilver: 1, Amount: 1, AuctionType: "offer", Expires: now.Add(10 * 24 * time.Hour)},
	})
	require.NoError(t, err)

	clamped, err := store.GetByExternalID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, now.Add(7*24*time.Hour), clamped.Expires, "implausible expiry is clamped to a week out")

	plausible, err := store.GetByExternalID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, now.Add(10*24*time.Hour), plausible.Expires)
}

func TestOrderReconciler_DuplicateIDInBatchLastWins(t *testing.T) {
	store := memory.NewOrderStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewOrderReconciler(store, fixedNow(now))
	ctx := context.Background()

	n, err := r.Reconcile(ctx, []domain.OrderUpload{
		{ID: 42, UnitPriceSilver: 1500, Amount: 10, AuctionType: "offer", Expires: now.Add(time.Hour)},
		{ID: 42, UnitPriceSilver: 1400, Amount: 9, AuctionType: "offer", Expires: now.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "duplicate external ids collapse to one record")

	order, err := store.GetByExternalID(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(1400), order.UnitPriceSilver)
	assert.Equal(t, int64(9), order.Amount)
	assert.Equal(t, int64(10), order.InitialAmount, "first record of the batch created the row")
	assert.Equal(t, 1, store.LiveCount())
}

func TestOrderReconciler_Idempotent(t *testing.T) {
	store := memory.NewOrderStore()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewOrderReconciler(store, fixedNow(now))
	ctx := context.Background()

	uploads := []domain.OrderUpload{
		{ID: 1, UnitPriceSilver: 100, Amount: 5, AuctionType: "offer", Expires: now.Add(time.Hour)},
		{ID: 2, UnitPriceSilver: 200, Amount: 3, AuctionType: "request", Expires: now.Add(time.Hour)},
	}

	n, err := r.Reconcile(ctx, uploads)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = r.Reconcile(ctx, uploads)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, store.LiveCount(), "replaying the same message must not grow the table")
}

func TestOrderReconciler_EmptyBatch(t *testing.T) {
	r := NewOrderReconciler(memory.NewOrderStore(), nil)

	n, err := r.Reconcile(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
