package memory

import (
	"context"
	"sort"
	"sync"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ManifestStore is an in-memory implementation of storage.PartitionManifestStore.
type ManifestStore struct {
	mu   sync.RWMutex
	data map[string]*domain.CatalogPartition // keyed by partition_id
}

// NewManifestStore creates a new in-memory partition manifest store.
func NewManifestStore() *ManifestStore {
	return &ManifestStore{
		data: make(map[string]*domain.CatalogPartition),
	}
}

// Compile-time interface check.
var _ storage.PartitionManifestStore = (*ManifestStore)(nil)

// Record adds a partition entry. Returns ErrDuplicateKey if it exists.
func (s *ManifestStore) Record(_ context.Context, p *domain.CatalogPartition) error {
	if p == nil || p.PartitionID == "" || p.InstrumentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[p.PartitionID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *p
	s.data[p.PartitionID] = &cp
	return nil
}

// GetByInstrument retrieves partitions for (instrument, record type),
// ordered by bucket_start ASC.
func (s *ManifestStore) GetByInstrument(_ context.Context, instrumentID string, rt domain.RecordType) ([]*domain.CatalogPartition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.CatalogPartition
	for _, p := range s.data {
		if p.InstrumentID == instrumentID && p.RecordType == rt {
			cp := *p
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BucketStart < result[j].BucketStart
	})
	return result, nil
}

// HasAny reports whether any partition exists for (instrument, record type).
func (s *ManifestStore) HasAny(_ context.Context, instrumentID string, rt domain.RecordType) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.data {
		if p.InstrumentID == instrumentID && p.RecordType == rt {
			return true, nil
		}
	}
	return false, nil
}
