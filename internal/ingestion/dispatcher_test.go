package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/reconcile"
	"market-data-sql/internal/storage/memory"
)

// stubBus hands out pre-made channels keyed by subject.
type stubBus struct {
	channels map[string]chan []byte
}

func newStubBus() *stubBus {
	return &stubBus{channels: map[string]chan []byte{
		SubjectMarketOrders:    make(chan []byte, 16),
		SubjectMarketHistories: make(chan []byte, 16),
		SubjectGoldPrices:      make(chan []byte, 16),
	}}
}

func (b *stubBus) Subscribe(subject string) (<-chan []byte, error) {
	ch, ok := b.channels[subject]
	if !ok {
		return nil, fmt.Errorf("unknown subject %q", subject)
	}
	return ch, nil
}

func (b *stubBus) closeAll() {
	for _, ch := range b.channels {
		close(ch)
	}
}

type dispatcherFixture struct {
	dispatcher *Dispatcher
	orders     *memory.OrderStore
	history    *memory.HistoryStore
	gold       *memory.GoldStore
}

func newDispatcherFixture() *dispatcherFixture {
	orders := memory.NewOrderStore()
	history := memory.NewHistoryStore()
	gold := memory.NewGoldStore()

	logger := log.New(log.Writer(), "[dispatch-test] ", 0)
	d := NewDispatcher(
		reconcile.NewOrderReconciler(orders, nil),
		reconcile.NewHistoryReconciler(history, nil, logger),
		reconcile.NewGoldReconciler(gold, nil),
		logger,
	)
	return &dispatcherFixture{dispatcher: d, orders: orders, history: history, gold: gold}
}

func TestDispatcher_RoutesSubjects(t *testing.T) {
	f := newDispatcherFixture()
	bus := newStubBus()
	now := time.Now().UTC()

	orderMsg, err := json.Marshal([]domain.OrderUpload{{
		ID: 42, ItemTypeID: "T4_BAG", UnitPriceSilver: 100, Amount: 5,
		AuctionType: "offer", Expires: now.Add(time.Hour),
	}})
	require.NoError(t, err)
	bus.channels[SubjectMarketOrders] <- orderMsg

	historyMsg, err := json.Marshal(domain.HistoryUpload{
		ItemTypeID: "T4_BAG", Timescale: domain.TimescaleDay,
		Buckets: []domain.HistoryBucketUpload{
			{Timestamp: now.Add(-2 * time.Hour).UnixMilli(), ItemAmount: 3, SilverAmount: 300},
			{Timestamp: now.Add(-time.Hour).UnixMilli(), ItemAmount: 1, SilverAmount: 100},
		},
	})
	require.NoError(t, err)
	bus.channels[SubjectMarketHistories] <- historyMsg

	goldMsg, err := json.Marshal(domain.GoldPriceUpload{
		Prices: []int{100}, Timestamps: []int64{now.UnixMilli()},
	})
	require.NoError(t, err)
	bus.channels[SubjectGoldPrices] <- goldMsg

	bus.closeAll()
	err = f.dispatcher.Run(context.Background(), bus)
	require.NoError(t, err)

	assert.Equal(t, 1, f.orders.LiveCount())
	assert.Equal(t, 1, f.history.Count())
	assert.Equal(t, 1, f.gold.Count())

	orders, histories, gold := f.dispatcher.Totals()
	assert.Equal(t, uint64(1), orders)
	assert.Equal(t, uint64(1), histories)
	assert.Equal(t, uint64(1), gold)
}

func TestDispatcher_DropsMalformedMessage(t *testing.T) {
	f := newDispatcherFixture()
	bus := newStubBus()

	bus.channels[SubjectMarketOrders] <- []byte(`{not json`)
	bus.channels[SubjectGoldPrices] <- []byte(`{"prices":[1,2],"timestamps":[1]}`)

	bus.closeAll()
	err := f.dispatcher.Run(context.Background(), bus)
	require.NoError(t, err)

	assert.Equal(t, 0, f.orders.LiveCount())
	assert.Equal(t, 0, f.gold.Count(), "a mismatched gold message must not write")
}

func TestDispatcher_KeepsConsumingAfterDrop(t *testing.T) {
	f := newDispatcherFixture()
	bus := newStubBus()
	now := time.Now().UTC()

	bus.channels[SubjectMarketOrders] <- []byte(`garbage`)
	orderMsg, err := json.Marshal([]domain.OrderUpload{{
		ID: 1, UnitPriceSilver: 10, Amount: 1, AuctionType: "offer", Expires: now.Add(time.Hour),
	}})
	require.NoError(t, err)
	bus.channels[SubjectMarketOrders] <- orderMsg

	bus.closeAll()
	require.NoError(t, f.dispatcher.Run(context.Background(), bus))

	assert.Equal(t, 1, f.orders.LiveCount(), "one bad message must not poison the stream")
}

func TestDispatcher_StopsOnCancel(t *testing.T) {
	f := newDispatcherFixture()
	bus := newStubBus()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.dispatcher.Run(ctx, bus) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop on cancellation")
	}
}

type failingBus struct{}

func (failingBus) Subscribe(string) (<-chan []byte, error) {
	return nil, fmt.Errorf("connection refused")
}

func TestDispatcher_SubscribeErrorSurfaces(t *testing.T) {
	f := newDispatcherFixture()

	err := f.dispatcher.Run(context.Background(), failingBus{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}
