package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// PartitionID computes a deterministic partition id using SHA256.
// Formula: SHA256(instrument_id|record_type|bucket_start_ns)
// Returns hex-encoded hash (64 characters).
func PartitionID(instrumentID, recordType string, bucketStartNs int64) string {
	data := fmt.Sprintf("%s|%s|%d", instrumentID, recordType, bucketStartNs)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
