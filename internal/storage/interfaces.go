package storage

import (
	"context"

	"backtest-lab/internal/domain"
)

// InstrumentStore holds instrument registration records.
type InstrumentStore interface {
	// Register adds an instrument. Returns ErrDuplicateKey if the
	// instrument_id is already registered.
	Register(ctx context.Context, inst *domain.Instrument) error

	// GetByID retrieves an instrument. Returns ErrNotFound if not registered.
	GetByID(ctx context.Context, instrumentID string) (*domain.Instrument, error)

	// List retrieves all registered instruments, ordered by instrument_id ASC.
	List(ctx context.Context) ([]*domain.Instrument, error)
}

// TickStore holds canonical trade ticks, partitioned by instrument.
type TickStore interface {
	// InsertBatch appends a batch of ticks. The caller guarantees the batch
	// is ordered by ts_event_ns ascending.
	InsertBatch(ctx context.Context, ticks []*domain.CanonicalTick) error

	// GetByInstrument retrieves all ticks for an instrument, ordered by
	// ts_event_ns ASC.
	GetByInstrument(ctx context.Context, instrumentID string) ([]*domain.CanonicalTick, error)

	// GetByTimeRange retrieves ticks with ts_event_ns in [start, end),
	// ordered by ts_event_ns ASC.
	GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.CanonicalTick, error)

	// HasAny reports whether any tick exists for the instrument.
	HasAny(ctx context.Context, instrumentID string) (bool, error)

	// Count returns the number of ticks stored for the instrument.
	Count(ctx context.Context, instrumentID string) (int64, error)
}

// BookStore holds canonical book snapshots, partitioned by instrument.
type BookStore interface {
	// InsertBatch appends a batch of snapshots ordered by ts_event_ns ASC.
	InsertBatch(ctx context.Context, snaps []*domain.CanonicalBookSnapshot) error

	// GetByTimeRange retrieves snapshots with ts_event_ns in [start, end),
	// ordered by ts_event_ns ASC.
	GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.CanonicalBookSnapshot, error)

	// HasAny reports whether any snapshot exists for the instrument.
	HasAny(ctx context.Context, instrumentID string) (bool, error)
}

// PartitionManifestStore records which catalog partitions exist. It answers
// the "is this already cached?" question without scanning record data.
type PartitionManifestStore interface {
	// Record adds a partition entry. Returns ErrDuplicateKey if the
	// partition_id already exists; partitions are immutable once written.
	Record(ctx context.Context, p *domain.CatalogPartition) error

	// GetByInstrument retrieves partitions for (instrument, record type),
	// ordered by bucket_start ASC.
	GetByInstrument(ctx context.Context, instrumentID string, rt domain.RecordType) ([]*domain.CatalogPartition, error)

	// HasAny reports whether any partition exists for (instrument, record type).
	HasAny(ctx context.Context, instrumentID string, rt domain.RecordType) (bool, error)
}
