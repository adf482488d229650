package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// TickStore implements storage.TickStore using ClickHouse.
type TickStore struct {
	conn *Conn
}

// NewTickStore creates a new TickStore.
func NewTickStore(conn *Conn) *TickStore {
	return &TickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TickStore = (*TickStore)(nil)

// InsertBatch appends a batch of ticks. The caller guarantees the batch is
// ordered by ts_event_ns ascending.
func (s *TickStore) InsertBatch(ctx context.Context, ticks []*domain.CanonicalTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ticks (
			instrument_id, ts_event_ns, ts_init_ns, price, size, aggressor_side, trade_id
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, t := range ticks {
		err = batch.Append(
			t.InstrumentID, t.TsEventNs, t.TsInitNs,
			t.Price.String(), t.Size.String(), string(t.Aggressor), t.TradeID,
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

// GetByInstrument retrieves all ticks for an instrument, ordered by ts_event_ns ASC.
func (s *TickStore) GetByInstrument(ctx context.Context, instrumentID string) ([]*domain.CanonicalTick, error) {
	query := `
		SELECT instrument_id, ts_event_ns, ts_init_ns, price, size, aggressor_side, trade_id
		FROM ticks
		WHERE instrument_id = ?
		ORDER BY ts_event_ns ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID)
	if err != nil {
		return nil, fmt.Errorf("query by instrument: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

// GetByTimeRange retrieves ticks with ts_event_ns in [start, end), ordered by
// ts_event_ns ASC.
func (s *TickStore) GetByTimeRange(ctx context.Context, instrumentID string, start, end int64) ([]*domain.CanonicalTick, error) {
	query := `
		SELECT instrument_id, ts_event_ns, ts_init_ns, price, size, aggressor_side, trade_id
		FROM ticks
		WHERE instrument_id = ? AND ts_event_ns >= ? AND ts_event_ns < ?
		ORDER BY ts_event_ns ASC
	`

	rows, err := s.conn.Query(ctx, query, instrumentID, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

// HasAny reports whether any tick exists for the instrument.
func (s *TickStore) HasAny(ctx context.Context, instrumentID string) (bool, error) {
	n, err := s.Count(ctx, instrumentID)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of ticks stored for the instrument.
func (s *TickStore) Count(ctx context.Context, instrumentID string) (int64, error) {
	query := `SELECT count(*) FROM ticks WHERE instrument_id = ?`

	var count uint64
	if err := s.conn.QueryRow(ctx, query, instrumentID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return int64(count), nil
}

// scanTicks scans multiple rows.
func scanTicks(rows chRows) ([]*domain.CanonicalTick, error) {
	var ticks []*domain.CanonicalTick

	for rows.Next() {
		var t domain.CanonicalTick
		var price, size, aggressor string

		err := rows.Scan(
			&t.InstrumentID, &t.TsEventNs, &t.TsInitNs,
			&price, &size, &aggressor, &t.TradeID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan tick row: %w", err)
		}

		t.Price, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse tick price: %w", err)
		}
		t.Size, err = decimal.NewFromString(size)
		if err != nil {
			return nil, fmt.Errorf("parse tick size: %w", err)
		}
		t.Aggressor = domain.AggressorSide(aggressor)
		ticks = append(ticks, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tick rows: %w", err)
	}

	return ticks, nil
}
