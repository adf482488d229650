package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// RunID computes a deterministic backtest run id using SHA256.
// Formula: SHA256(instrument_id|start_ns|end_ns|config_fingerprint)
// Returns hex-encoded hash (64 characters).
func RunID(instrumentID string, startNs, endNs int64, configFingerprint string) string {
	data := fmt.Sprintf("%s|%d|%d|%s", instrumentID, startNs, endNs, configFingerprint)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
