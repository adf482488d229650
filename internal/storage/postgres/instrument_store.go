package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

// InstrumentStore implements storage.InstrumentStore using PostgreSQL.
type InstrumentStore struct {
	pool *Pool
}

// NewInstrumentStore creates a new InstrumentStore.
func NewInstrumentStore(pool *Pool) *InstrumentStore {
	return &InstrumentStore{pool: pool}
}

// Compile-time interface check.
var _ storage.InstrumentStore = (*InstrumentStore)(nil)

// Register adds an instrument. Returns ErrDuplicateKey if instrument_id exists.
func (s *InstrumentStore) Register(ctx context.Context, inst *domain.Instrument) error {
	query := `
		INSERT INTO instruments (
			instrument_id, symbol, venue, price_precision, size_precision, registered_at_ns
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.pool.Exec(ctx, query,
		inst.InstrumentID,
		inst.Symbol,
		inst.Venue,
		inst.PricePrecision,
		inst.SizePrecision,
		inst.RegisteredAtNs,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert instrument: %w", err)
	}
	return nil
}

// GetByID retrieves an instrument by its ID. Returns ErrNotFound if not registered.
func (s *InstrumentStore) GetByID(ctx context.Context, instrumentID string) (*domain.Instrument, error) {
	query := `
		SELECT instrument_id, symbol, venue, price_precision, size_precision, registered_at_ns
		FROM instruments
		WHERE instrument_id = $1
	`

	row := s.pool.QueryRow(ctx, query, instrumentID)
	inst, err := scanInstrument(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get instrument by id: %w", err)
	}
	return inst, nil
}

// List retrieves all registered instruments, ordered by instrument_id ASC.
func (s *InstrumentStore) List(ctx context.Context) ([]*domain.Instrument, error) {
	query := `
		SELECT instrument_id, symbol, venue, price_precision, size_precision, registered_at_ns
		FROM instruments
		ORDER BY instrument_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list instruments: %w", err)
	}
	defer rows.Close()

	var instruments []*domain.Instrument
	for rows.Next() {
		inst, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		instruments = append(instruments, inst)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}
	return instruments, nil
}

// scanInstrument scans a single row into a domain.Instrument.
func scanInstrument(row pgx.Row) (*domain.Instrument, error) {
	var inst domain.Instrument
	err := row.Scan(
		&inst.InstrumentID,
		&inst.Symbol,
		&inst.Venue,
		&inst.PricePrecision,
		&inst.SizePrecision,
		&inst.RegisteredAtNs,
	)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}
