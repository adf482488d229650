package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// BookStore implements storage.BookStore using ClickHouse. Book levels are
// stored as parallel price/size arrays, best level first.
type BookStore struct {
	conn *Conn
}

// NewBookStore creates a new BookStore.
func NewBookStore(conn *Conn) *BookStore {
	return &BookStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BookStore = (*BookStore)(nil)

// InsertBatch appends a batch of snapshots ordered by ts_event_ns ASC.
func (s *BookStore) InsertBatch(ctx context.Context, snaps []*domain.CanonicalBookSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO book_snapshots (
			instrument_id, ts_event_ns, ts_init_ns,
			bid_prices, bid_sizes, ask_prices, ask_sizes
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, snap := range snaps {
		bidPrices, bidSizes := flattenLevels(snap.Bids)
		askPrices, askSizes := flattenLevels(snap.Asks)

		err = batch.Append(
			snap.InstrumentID, snap.TsEventNs, snap.TsInitNs,
			bidPrices, bidSizes, askPrices, askSizes,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves snapshots with ts_event_ns in [start, end),
// ordered by ts_event_ns ASC.
func (s *BookStore) GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.CanonicalBookSnapshot, error) {
	query := `
		SELECT instrument_id, ts_event_ns, ts_init_ns,
		       bid_prices, bid_sizes, ask_prices, ask_sizes
		FROM book_snapshots
		WHERE instrument_id = ? AND ts_event_ns >= ? AND ts_event_ns < ?
		ORDER BY ts_event_ns ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanBookSnapshots(rows)
}

// HasAny reports whether any snapshot exists for the instrument.
func (s *BookStore) HasAny(ctx context.Context, instrumentID string) (bool, error) {
	query := `SELECT count(*) FROM book_snapshots WHERE instrument_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, instrumentID).Scan(&count); err != nil {
		return false, fmt.Errorf("count book snapshots: %w", err)
	}
	return count > 0, nil
}

// scanBookSnapshots scans multiple rows.
func scanBookSnapshots(rows chRows) ([]*domain.CanonicalBookSnapshot, error) {
	var snaps []*domain.CanonicalBookSnapshot

	for rows.Next() {
		var snap domain.CanonicalBookSnapshot
		var bidPrices, bidSizes, askPrices, askSizes []string

		err := rows.Scan(
			&snap.InstrumentID, &snap.TsEventNs, &snap.TsInitNs,
			&bidPrices, &bidSizes, &askPrices, &askSizes,
		)
		if err != nil {
			return nil, fmt.Errorf("scan book snapshot row: %w", err)
		}

		snap.Bids, err = rebuildLevels(bidPrices, bidSizes)
		if err != nil {
			return nil, fmt.Errorf("parse bid levels: %w", err)
		}
		snap.Asks, err = rebuildLevels(askPrices, askSizes)
		if err != nil {
			return nil, fmt.Errorf("parse ask levels: %w", err)
		}
		snaps = append(snaps, &snap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate book snapshot rows: %w", err)
	}

	return snaps, nil
}

// flattenLevels splits levels into parallel price/size string arrays.
func flattenLevels(levels []domain.CanonicalBookLevel) ([]string, []string) {
	prices := make([]string, 0, len(levels))
	sizes := make([]string, 0, len(levels))
	for _, l := range levels {
		prices = append(prices, l.Price.String())
		sizes = append(sizes, l.Size.String())
	}
	return prices, sizes
}

// rebuildLevels reassembles levels from parallel price/size arrays.
func rebuildLevels(prices, sizes []string) ([]domain.CanonicalBookLevel, error) {
	if len(prices) != len(sizes) {
		return nil, fmt.Errorf("level array length mismatch: %d prices, %d sizes", len(prices), len(sizes))
	}

	levels := make([]domain.CanonicalBookLevel, 0, len(prices))
	for i := range prices {
		price, err := decimal.NewFromString(prices[i])
		if err != nil {
			return nil, err
		}
		size, err := decimal.NewFromString(sizes[i])
		if err != nil {
			return nil, err
		}
		levels = append(levels, domain.CanonicalBookLevel{Price: price, Size: size})
	}
	return levels, nil
}
