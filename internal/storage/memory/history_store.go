package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu     sync.RWMutex
	data   map[string]*domain.MarketHistoryBucket // keyed by natural key
	nextID int64
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		data: make(map[string]*domain.MarketHistoryBucket),
	}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// historyKey generates a unique key for a bucket's natural key tuple.
func historyKey(itemTypeID string, locationID, qualityLevel int, agg domain.Aggregation, bucketStart time.Time) string {
	return fmt.Sprintf("%s|%d|%d|%d|%d", itemTypeID, locationID, qualityLevel, agg, bucketStart.UnixMilli())
}

// UpsertBatch inserts or replaces buckets by their natural key.
func (s *HistoryStore) UpsertBatch(_ context.Context, buckets []*domain.MarketHistoryBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range buckets {
		if b == nil || b.ItemTypeID == "" {
			return storage.ErrInvalidInput
		}
		key := historyKey(b.ItemTypeID, b.LocationID, b.QualityLevel, b.Aggregation, b.BucketStart)
		if existing, ok := s.data[key]; ok {
			existing.ItemAmount = b.ItemAmount
			existing.SilverAmount = b.SilverAmount
			continue
		}
		s.nextID++
		cp := *b
		cp.ID = s.nextID
		s.data[key] = &cp
	}
	return nil
}

// GetByKey retrieves one bucket by its natural key. Returns ErrNotFound
// if not exists.
func (s *HistoryStore) GetByKey(_ context.Context, itemTypeID string, locationID, qualityLevel int, agg domain.Aggregation, bucketStart time.Time) (*domain.MarketHistoryBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.data[historyKey(itemTypeID, locationID, qualityLevel, agg, bucketStart)]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

// TrimHourlyBefore deletes up to limit hourly buckets whose bucket start
// is before the cutoff. Buckets are visited in key order so bounded
// batches are deterministic.
func (s *HistoryStore) TrimHourlyBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.data))
	for key := range s.data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var affected int64
	for _, key := range keys {
		if affected >= int64(limit) {
			break
		}
		b := s.data[key]
		if b.Aggregation == domain.AggregationHourly && b.BucketStart.Before(cutoff) {
			delete(s.data, key)
			affected++
		}
	}
	return affected, nil
}

// Count returns the number of stored buckets.
func (s *HistoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
