package memory

import (
	"context"
	"sync"
	"time"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// GoldStore is an in-memory implementation of storage.GoldStore.
type GoldStore struct {
	mu     sync.RWMutex
	data   map[int64]*domain.GoldPricePoint // keyed by Unix millisecond
	nextID int64
}

// NewGoldStore creates a new in-memory gold store.
func NewGoldStore() *GoldStore {
	return &GoldStore{
		data: make(map[int64]*domain.GoldPricePoint),
	}
}

// Compile-time interface check.
var _ storage.GoldStore = (*GoldStore)(nil)

// GetByTimestamps fetches existing points for the given timestamps,
// keyed by Unix millisecond.
func (s *GoldStore) GetByTimestamps(_ context.Context, timestamps []time.Time) (map[int64]*domain.GoldPricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[int64]*domain.GoldPricePoint, len(timestamps))
	for _, ts := range timestamps {
		if p, ok := s.data[ts.UnixMilli()]; ok {
			cp := *p
			result[ts.UnixMilli()] = &cp
		}
	}
	return result, nil
}

// UpsertBatch inserts or replaces points by timestamp.
func (s *GoldStore) UpsertBatch(_ context.Context, points []*domain.GoldPricePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil || p.Timestamp.IsZero() {
			return storage.ErrInvalidInput
		}
		key := p.Timestamp.UnixMilli()
		if existing, ok := s.data[key]; ok {
			existing.Price = p.Price
			existing.UpdatedAt = p.UpdatedAt
			continue
		}
		s.nextID++
		cp := *p
		cp.ID = s.nextID
		s.data[key] = &cp
	}
	return nil
}

// Count returns the number of stored points.
func (s *GoldStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
