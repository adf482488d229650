package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func testInstrument(id string) *domain.Instrument {
	return &domain.Instrument{
		InstrumentID:   id,
		Symbol:         "BTCUSDT",
		Venue:          "BINANCE",
		PricePrecision: 2,
		SizePrecision:  8,
		RegisteredAtNs: 1700000000000000000,
	}
}

func TestInstrumentStore_RegisterAndGet(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	inst := testInstrument("BTCUSDT.BINANCE")
	err := store.Register(ctx, inst)
	require.NoError(t, err)

	retrieved, err := store.GetByID(ctx, "BTCUSDT.BINANCE")
	require.NoError(t, err)

	assert.Equal(t, inst.InstrumentID, retrieved.InstrumentID)
	assert.Equal(t, inst.Symbol, retrieved.Symbol)
	assert.Equal(t, inst.Venue, retrieved.Venue)
	assert.Equal(t, inst.PricePrecision, retrieved.PricePrecision)
	assert.Equal(t, inst.SizePrecision, retrieved.SizePrecision)
	assert.Equal(t, inst.RegisteredAtNs, retrieved.RegisteredAtNs)
}

func TestInstrumentStore_RegisterDuplicate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	err := store.Register(ctx, testInstrument("BTCUSDT.BINANCE"))
	require.NoError(t, err)

	err = store.Register(ctx, testInstrument("BTCUSDT.BINANCE"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestInstrumentStore_GetMissing(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewInstrumentStore(pool)

	_, err := store.GetByID(context.Background(), "ETHUSDT.BINANCE")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestInstrumentStore_ListOrdered(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewInstrumentStore(pool)

	for _, id := range []string{"ETHUSDT.BINANCE", "ADAUSDT.BINANCE", "BTCUSDT.BINANCE"} {
		require.NoError(t, store.Register(ctx, testInstrument(id)))
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	assert.Equal(t, "ADAUSDT.BINANCE", list[0].InstrumentID)
	assert.Equal(t, "BTCUSDT.BINANCE", list[1].InstrumentID)
	assert.Equal(t, "ETHUSDT.BINANCE", list[2].InstrumentID)
}
