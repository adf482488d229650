// Package rawsource provides row-stream access to raw market data files
// and feeds. Sources declare their columns via Header; row values align
// with the header positionally. Sources make no ordering or dedup
// guarantees; the catalog converter enforces both.
package rawsource

import "context"

// Row is one raw record: column values aligned with the source header.
type Row []string

// Source is a readable stream of raw market data rows.
type Source interface {
	// Name identifies the source for error context (file path, feed URL).
	Name() string

	// Header returns the column names declared by the source.
	Header() []string

	// Next returns the next row, or io.EOF when the stream is exhausted.
	Next(ctx context.Context) (Row, error)

	// Close releases the underlying stream.
	Close() error
}
