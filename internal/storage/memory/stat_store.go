package memory

import (
	"context"
	"sync"

	"market-data-sql/internal/domain"
	"market-data-sql/internal/storage"
)

// MarketStatStore is an in-memory implementation of
// storage.MarketStatStore. Rows are append-only, matching the
// ClickHouse implementation.
type MarketStatStore struct {
	mu    sync.RWMutex
	stats []*domain.MarketStat
}

// NewMarketStatStore creates a new in-memory market stat store.
func NewMarketStatStore() *MarketStatStore {
	return &MarketStatStore{}
}

// Compile-time interface check.
var _ storage.MarketStatStore = (*MarketStatStore)(nil)

// InsertBatch appends the given stats.
func (s *MarketStatStore) InsertBatch(_ context.Context, stats []*domain.MarketStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, st := range stats {
		if st == nil {
			return storage.ErrInvalidInput
		}
		cp := *st
		s.stats = append(s.stats, &cp)
	}
	return nil
}

// Stats returns a copy of all appended stats.
func (s *MarketStatStore) Stats() []*domain.MarketStat {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.MarketStat, len(s.stats))
	for i, st := range s.stats {
		cp := *st
		out[i] = &cp
	}
	return out
}
