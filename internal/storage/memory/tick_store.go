package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// TickStore is an in-memory implementation of storage.TickStore.
type TickStore struct {
	mu   sync.RWMutex
	data map[string][]*domain.CanonicalTick // keyed by instrument_id
}

// NewTickStore creates a new in-memory tick store.
func NewTickStore() *TickStore {
	return &TickStore{
		data: make(map[string][]*domain.CanonicalTick),
	}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBatch appends a batch of ticks ordered by ts_event_ns ASC.
func (s *TickStore) InsertBatch(_ context.Context, ticks []*domain.CanonicalTick) error {
	if len(ticks) == 0 {
		return nil
	}

	for _, t := range ticks {
		if t == nil || t.InstrumentID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range ticks {
		cp := *t
		s.data[t.InstrumentID] = append(s.data[t.InstrumentID], &cp)
	}
	return nil
}

// GetByInstrument retrieves all ticks for an instrument, ordered by
// ts_event_ns ASC.
func (s *TickStore) GetByInstrument(_ context.Context, instrumentID string) ([]*domain.CanonicalTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(s.data[instrumentID]), nil
}

// GetByTimeRange retrieves ticks with ts_event_ns in [start, end).
func (s *TickStore) GetByTimeRange(_ context.Context, instrumentID string, start, end int64) ([]*domain.CanonicalTick, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CanonicalTick
	for _, t := range s.data[instrumentID] {
		if t.TsEventNs >= start && t.TsEventNs < end {
			cp := *t
			result = append(result, &cp)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TsEventNs < result[j].TsEventNs
	})
	return result, nil
}

// HasAny reports whether any tick exists for the instrument.
func (s *TickStore) HasAny(_ context.Context, instrumentID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data[instrumentID]) > 0, nil
}

// Count returns the number of ticks stored for the instrument.
func (s *TickStore) Count(_ context.Context, instrumentID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.data[instrumentID])), nil
}

func (s *TickStore) sorted(ticks []*domain.CanonicalTick) []*domain.CanonicalTick {
	result := make([]*domain.CanonicalTick, 0, len(ticks))
	for _, t := range ticks {
		cp := *t
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TsEventNs < result[j].TsEventNs
	})
	return result
}
