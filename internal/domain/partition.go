package domain

// CatalogPartition is the physical grouping of canonical records for one
// instrument and record type over a coarse time bucket. Partitions are
// created on first successful conversion and never modified afterwards;
// re-conversion of a covered range is a no-op.
type CatalogPartition struct {
	PartitionID  string // deterministic hash of (instrument, type, bucket)
	InstrumentID string
	RecordType   RecordType
	BucketStart  int64 // inclusive, ns
	BucketEnd    int64 // exclusive, ns
	RecordCount  int64
	Checksum     string // hex SHA-256 over the partition's record stream
	CreatedAtNs  int64
}
