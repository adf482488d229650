package postgres

import (
	"context"
	"fmt"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// ManifestStore implements storage.PartitionManifestStore using PostgreSQL.
type ManifestStore struct {
	pool *Pool
}

// NewManifestStore creates a new ManifestStore.
func NewManifestStore(pool *Pool) *ManifestStore {
	return &ManifestStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PartitionManifestStore = (*ManifestStore)(nil)

// Record adds a partition entry. Returns ErrDuplicateKey if partition_id exists.
func (s *ManifestStore) Record(ctx context.Context, p *domain.CatalogPartition) error {
	query := `
		INSERT INTO catalog_partitions (
			partition_id, instrument_id, record_type, bucket_start, bucket_end,
			record_count, checksum, created_at_ns
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.pool.Exec(ctx, query,
		p.PartitionID,
		p.InstrumentID,
		string(p.RecordType),
		p.BucketStart,
		p.BucketEnd,
		p.RecordCount,
		p.Checksum,
		p.CreatedAtNs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert catalog partition: %w", err)
	}
	return nil
}

// GetByInstrument retrieves partitions for (instrument, record type),
// ordered by bucket_start ASC.
func (s *ManifestStore) GetByInstrument(ctx context.Context, instrumentID string, rt domain.RecordType) ([]*domain.CatalogPartition, error) {
	query := `
		SELECT partition_id, instrument_id, record_type, bucket_start, bucket_end,
		       record_count, checksum, created_at_ns
		FROM catalog_partitions
		WHERE instrument_id = $1 AND record_type = $2
		ORDER BY bucket_start ASC
	`

	rows, err := s.pool.Query(ctx, query, instrumentID, string(rt))
	if err != nil {
		return nil, fmt.Errorf("get partitions by instrument: %w", err)
	}
	defer rows.Close()

	var partitions []*domain.CatalogPartition
	for rows.Next() {
		var p domain.CatalogPartition
		var recordType string

		err := rows.Scan(
			&p.PartitionID, &p.InstrumentID, &recordType,
			&p.BucketStart, &p.BucketEnd,
			&p.RecordCount, &p.Checksum, &p.CreatedAtNs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan partition row: %w", err)
		}

		p.RecordType = domain.RecordType(recordType)
		partitions = append(partitions, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate partition rows: %w", err)
	}
	return partitions, nil
}

// HasAny reports whether any partition exists for (instrument, record type).
func (s *ManifestStore) HasAny(ctx context.Context, instrumentID string, rt domain.RecordType) (bool, error) {
	query := `
		SELECT count(*) FROM catalog_partitions
		WHERE instrument_id = $1 AND record_type = $2
	`

	var count int64
	if err := s.pool.QueryRow(ctx, query, instrumentID, string(rt)).Scan(&count); err != nil {
		return false, fmt.Errorf("count partitions: %w", err)
	}
	return count > 0, nil
}
