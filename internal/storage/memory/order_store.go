package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// OrderStore is an in-memory implementation of storage.OrderStore,
// storage.ArchiveStore and storage.RetentionStore. It holds both the
// live order table and the archive so the retention phases can move
// rows between them the way the PostgreSQL implementation does.
type OrderStore struct {
	mu      sync.RWMutex
	orders  map[int64]*domain.MarketOrder   // keyed by external id
	archive map[int64]*domain.ArchivedOrder // keyed by external id
	nextID  int64
}

// NewOrderStore creates a new in-memory order store.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		orders:  make(map[int64]*domain.MarketOrder),
		archive: make(map[int64]*domain.ArchivedOrder),
	}
}

// Compile-time interface checks.
var (
	_ storage.OrderStore     = (*OrderStore)(nil)
	_ storage.RetentionStore = (*OrderStore)(nil)
	_ storage.ArchiveStore   = archiveView{}
)

// Archive returns the store's archive table as a storage.ArchiveStore.
func (s *OrderStore) Archive() storage.ArchiveStore {
	return archiveView{s: s}
}

type archiveView struct {
	s *OrderStore
}

func (v archiveView) GetByExternalID(ctx context.Context, externalID int64) (*domain.ArchivedOrder, error) {
	return v.s.ArchivedByExternalID(ctx, externalID)
}

// GetByExternalIDs fetches existing orders for the given external ids,
// keyed by external id.
func (s *OrderStore) GetByExternalIDs(_ context.Context, externalIDs []int64) (map[int64]*domain.MarketOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*domain.MarketOrder, len(externalIDs))
	for _, id := range externalIDs {
		if o, ok := s.orders[id]; ok {
			cp := *o
			result[id] = &cp
		}
	}
	return result, nil
}

// UpsertBatch persists the batch. Existing rows get their order-book
// fields, UpdatedAt and DeletedAt replaced; new rows are inserted in full.
func (s *OrderStore) UpsertBatch(_ context.Context, orders []*domain.MarketOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range orders {
		if o == nil || o.ExternalID == 0 {
			return storage.ErrInvalidInput
		}
		if existing, ok := s.orders[o.ExternalID]; ok {
			existing.UnitPriceSilver = o.UnitPriceSilver
			existing.Amount = o.Amount
			existing.LocationID = o.LocationID
			existing.UpdatedAt = o.UpdatedAt
			existing.DeletedAt = copyTimePtr(o.DeletedAt)
			continue
		}
		s.nextID++
		cp := *o
		cp.ID = s.nextID
		cp.DeletedAt = copyTimePtr(o.DeletedAt)
		s.orders[o.ExternalID] = &cp
	}
	return nil
}

// GetByExternalID retrieves one order. Returns ErrNotFound if not exists.
func (s *OrderStore) GetByExternalID(_ context.Context, externalID int64) (*domain.MarketOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[externalID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *o
	cp.DeletedAt = copyTimePtr(o.DeletedAt)
	return &cp, nil
}

func (s *OrderStore) getArchived(externalID int64) (*domain.ArchivedOrder, bool) {
	a, ok := s.archive[externalID]
	if !ok {
		return nil, false
	}
	cp := *a
	cp.DeletedAt = copyTimePtr(a.DeletedAt)
	return &cp, true
}

// ArchivedByExternalID retrieves one archived order. Returns ErrNotFound
// if not exists.
func (s *OrderStore) ArchivedByExternalID(_ context.Context, externalID int64) (*domain.ArchivedOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.getArchived(externalID)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

// SoftDeleteStale marks live orders whose Expires has passed now or
// whose UpdatedAt is before staleBefore as deleted at now. Orders are
// visited in external-id order so bounded batches are deterministic.
func (s *OrderStore) SoftDeleteStale(_ context.Context, now, staleBefore time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, id := range s.sortedExternalIDs() {
		if affected >= int64(limit) {
			break
		}
		o := s.orders[id]
		if o.DeletedAt != nil {
			continue
		}
		if o.Expires.Before(now) || o.UpdatedAt.Before(staleBefore) {
			t := now
			o.DeletedAt = &t
			affected++
		}
	}
	return affected, nil
}

// ArchiveRetired copies soft-deleted orders missing a current archive
// row into the archive, upserting by external id.
func (s *OrderStore) ArchiveRetired(_ context.Context, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, id := range s.sortedExternalIDs() {
		if affected >= int64(limit) {
			break
		}
		o := s.orders[id]
		if o.DeletedAt == nil {
			continue
		}
		if a, ok := s.archive[id]; ok && equalTimePtr(a.DeletedAt, o.DeletedAt) {
			continue
		}
		archived := archivedFromOrder(o)
		if existing, ok := s.archive[id]; ok {
			archived.ID = existing.ID
		} else {
			s.nextID++
			archived.ID = s.nextID
		}
		s.archive[id] = archived
		affected++
	}
	return affected, nil
}

// PurgeArchived removes soft-deleted orders whose archive row carries an
// equal DeletedAt.
func (s *OrderStore) PurgeArchived(_ context.Context, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var affected int64
	for _, id := range s.sortedExternalIDs() {
		if affected >= int64(limit) {
			break
		}
		o := s.orders[id]
		if o.DeletedAt == nil {
			continue
		}
		a, ok := s.archive[id]
		if !ok || !equalTimePtr(a.DeletedAt, o.DeletedAt) {
			continue
		}
		delete(s.orders, id)
		affected++
	}
	return affected, nil
}

// LiveCount returns the number of rows in the live table, soft-deleted
// rows included.
func (s *OrderStore) LiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orders)
}

// ArchiveCount returns the number of archived rows.
func (s *OrderStore) ArchiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.archive)
}

func (s *OrderStore) sortedExternalIDs() []int64 {
	ids := make([]int64, 0, len(s.orders))
	for id := range s.orders {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func archivedFromOrder(o *domain.MarketOrder) *domain.ArchivedOrder {
	return &domain.ArchivedOrder{
		ExternalID:       o.ExternalID,
		ItemTypeID:       o.ItemTypeID,
		ItemGroupTypeID:  o.ItemGroupTypeID,
		LocationID:       o.LocationID,
		QualityLevel:     o.QualityLevel,
		EnchantmentLevel: o.EnchantmentLevel,
		UnitPriceSilver:  o.UnitPriceSilver,
		Amount:           o.Amount,
		InitialAmount:    o.InitialAmount,
		AuctionType:      o.AuctionType,
		Expires:          o.Expires,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
		DeletedAt:        copyTimePtr(o.DeletedAt),
	}
}

func copyTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
