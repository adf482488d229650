package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// InstrumentStore is an in-memory implementation of storage.InstrumentStore.
type InstrumentStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Instrument
}

// NewInstrumentStore creates a new in-memory instrument store.
func NewInstrumentStore() *InstrumentStore {
	return &InstrumentStore{
		data: make(map[string]*domain.Instrument),
	}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// Register adds an instrument. Returns ErrDuplicateKey if already registered.
func (s *InstrumentStore) Register(_ context.Context, inst *domain.Instrument) error {
	if inst == nil || inst.InstrumentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[inst.InstrumentID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *inst
	s.data[inst.InstrumentID] = &cp
	return nil
}

// GetByID retrieves an instrument. Returns ErrNotFound if not registered.
func (s *InstrumentStore) GetByID(_ context.Context, instrumentID string) (*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inst, ok := s.data[instrumentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

// List retrieves all registered instruments, ordered by instrument_id ASC.
func (s *InstrumentStore) List(_ context.Context) ([]*domain.Instrument, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Instrument, 0, len(s.data))
	for _, inst := range s.data {
		cp := *inst
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].InstrumentID < result[j].InstrumentID
	})
	return result, nil
}
