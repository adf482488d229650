package catalog

import (
	"errors"
	"fmt"

	"backtest-lab/internal/domain"
)

// Conversion error kinds. Conversion errors are never retried: a partial
// catalog is worse than a visible failure. The only retried condition is
// lock contention, once, after which ErrCacheWriteConflict surfaces.
var (
	// ErrSchemaUnrecognized is returned when no known layout matches the
	// source header.
	ErrSchemaUnrecognized = errors.New("schema unrecognized")

	// ErrMalformedRecord is returned on the first row that fails to map.
	// The whole file is aborted; nothing is written.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrSourceUnavailable is returned when the raw source cannot be read.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrCacheWriteConflict is returned when a concurrent writer created
	// the same partition and the single retry did not resolve it.
	ErrCacheWriteConflict = errors.New("cache write conflict")
)

// ConvertError wraps a conversion error kind with the context needed to
// render an actionable message: instrument, record type, source, and the
// offending row where applicable.
type ConvertError struct {
	Kind         error
	InstrumentID string
	RecordType   domain.RecordType
	Source       string
	Row          int // 1-based data row number, 0 when not row-specific
	Detail       string
}

// Error renders the full context.
func (e *ConvertError) Error() string {
	msg := fmt.Sprintf("%v: instrument=%s type=%s source=%s", e.Kind, e.InstrumentID, e.RecordType, e.Source)
	if e.Row > 0 {
		msg = fmt.Sprintf("%s row=%d", msg, e.Row)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

// Unwrap exposes the kind for errors.Is checks.
func (e *ConvertError) Unwrap() error { return e.Kind }
