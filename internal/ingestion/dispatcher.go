package ingestion

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/observability"
	"market-data-sql/internal/reconcile"
)

// Bus subjects carrying deduplicated market messages.
const (
	SubjectMarketOrders    = "marketorders.deduped.bulk"
	SubjectMarketHistories = "markethistories.deduped"
	SubjectGoldPrices      = "goldprices.deduped"
)

// Subscriber hands out per-subject delivery channels. Implemented by
// BusClient; tests substitute plain channels.
type Subscriber interface {
	Subscribe(subject string) (<-chan []byte, error)
}

// Dispatcher routes bus messages to the reconciler matching their
// subject. Each subject is consumed by its own goroutine so a slow
// database write on one stream never stalls the others.
type Dispatcher struct {
	orders    *reconcile.OrderReconciler
	histories *reconcile.HistoryReconciler
	gold      *reconcile.GoldReconciler
	logger    *log.Logger

	ordersProcessed    atomic.Uint64
	historiesProcessed atomic.Uint64
	goldProcessed      atomic.Uint64

	wg sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the three reconcilers.
func NewDispatcher(orders *reconcile.OrderReconciler, histories *reconcile.HistoryReconciler, gold *reconcile.GoldReconciler, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[dispatch] ", log.LstdFlags)
	}
	return &Dispatcher{
		orders:    orders,
		histories: histories,
		gold:      gold,
		logger:    logger,
	}
}

// Run subscribes to all subjects and consumes them until ctx is
// cancelled. It returns once every subject goroutine has drained.
func (d *Dispatcher) Run(ctx context.Context, bus Subscriber) error {
	type stream struct {
		subject string
		handle  func(context.Context, []byte) (int, error)
	}

	streams := []stream{
		{SubjectMarketOrders, d.handleOrders},
		{SubjectMarketHistories, d.handleHistories},
		{SubjectGoldPrices, d.handleGold},
	}

	for _, s := range streams {
		ch, err := bus.Subscribe(s.subject)
		if err != nil {
			return err
		}

		d.wg.Add(1)
		go d.consume(ctx, s.subject, ch, s.handle)
	}

	d.wg.Wait()
	return ctx.Err()
}

// consume processes one subject channel until cancellation or channel close.
func (d *Dispatcher) consume(ctx context.Context, subject string, ch <-chan []byte, handle func(context.Context, []byte) (int, error)) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			start := time.Now()
			if _, err := handle(ctx, msg); err != nil {
				d.logger.Printf("%s: dropped message: %v", subject, err)
				observability.RecordDrop(subject, dropReason(err))
				continue
			}
			observability.RecordMessage(subject, time.Since(start).Seconds())
		}
	}
}

// dropReason classifies a handler error for the drop counter.
func dropReason(err error) string {
	if _, ok := err.(*json.SyntaxError); ok {
		return "decode"
	}
	if _, ok := err.(*json.UnmarshalTypeError); ok {
		return "decode"
	}
	return "store"
}

// handleOrders reconciles a bulk order upload.
func (d *Dispatcher) handleOrders(ctx context.Context, msg []byte) (int, error) {
	var uploads []domain.OrderUpload
	if err := json.Unmarshal(msg, &uploads); err != nil {
		return 0, err
	}

	n, err := d.orders.Reconcile(ctx, uploads)
	if err != nil {
		return 0, err
	}

	observability.RecordWritten("orders", n)
	total := d.ordersProcessed.Add(uint64(n))
	d.logger.Printf("Processed %3d orders. Total processed: %d", n, total)
	return n, nil
}

// handleHistories reconciles one item history upload.
func (d *Dispatcher) handleHistories(ctx context.Context, msg []byte) (int, error) {
	var upload domain.HistoryUpload
	if err := json.Unmarshal(msg, &upload); err != nil {
		return 0, err
	}

	n, err := d.histories.Reconcile(ctx, &upload)
	if err != nil {
		return 0, err
	}

	observability.RecordWritten("histories", n)
	total := d.historiesProcessed.Add(uint64(n))
	d.logger.Printf("Processed %3d history buckets. Total processed: %d", n, total)
	return n, nil
}

// handleGold reconciles a gold price upload.
func (d *Dispatcher) handleGold(ctx context.Context, msg []byte) (int, error) {
	var upload domain.GoldPriceUpload
	if err := json.Unmarshal(msg, &upload); err != nil {
		return 0, err
	}

	n, err := d.gold.Reconcile(ctx, &upload)
	if err != nil {
		return 0, err
	}

	observability.RecordWritten("gold", n)
	total := d.goldProcessed.Add(uint64(n))
	d.logger.Printf("Processed %3d gold prices. Total processed: %d", n, total)
	return n, nil
}

// Totals reports running per-stream processed record counts.
func (d *Dispatcher) Totals() (orders, histories, gold uint64) {
	return d.ordersProcessed.Load(), d.historiesProcessed.Load(), d.goldProcessed.Load()
}
