package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// BookStore is an in-memory implementation of storage.BookStore.
type BookStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.CanonicalBookSnapshot // keyed by instrument_id
}

// NewBookStore creates a new in-memory book snapshot store.
func NewBookStore() *BookStore {
	return &BookStore{
		data: make(map[string][]*domain.CanonicalBookSnapshot),
	}
}

// Compile-time interface check.
var _ storage.BookStore = (*BookStore)(nil)

// InsertBatch appends a batch of snapshots ordered by ts_event_ns ASC.
func (s *BookStore) InsertBatch(_ context.Context, snaps []*domain.CanonicalBookSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	for _, snap := range snaps {
		if snap == nil || snap.InstrumentID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, snap := range snaps {
		cp := copySnapshot(snap)
		s.data[snap.InstrumentID] = append(s.data[snap.InstrumentID], cp)
	}
	return nil
}

// GetByTimeRange retrieves snapshots with ts_event_ns in [start, end).
func (s *BookStore) GetByTimeRange(_ context.Context, instrumentID string, start, end int64) ([]*domain.CanonicalBookSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CanonicalBookSnapshot
	for _, snap := range s.data[instrumentID] {
		if snap.TsEventNs >= start && snap.TsEventNs < end {
			result = append(result, copySnapshot(snap))
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TsEventNs < result[j].TsEventNs
	})
	return result, nil
}

// HasAny reports whether any snapshot exists for the instrument.
func (s *BookStore) HasAny(_ context.Context, instrumentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data[instrumentID]) > 0, nil
}

func copySnapshot(snap *domain.CanonicalBookSnapshot) *domain.CanonicalBookSnapshot {
	cp := *snap
	cp.Bids = append([]domain.CanonicalBookLevel(nil), snap.Bids...)
	cp.Asks = append([]domain.CanonicalBookLevel(nil), snap.Asks...)
	return &cp
}
