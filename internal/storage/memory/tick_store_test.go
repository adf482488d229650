package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
	"backtest-lab/internal/storage"
)

func testTick(instrumentID string, ts int64, price string) *domain.CanonicalTick {
	return &domain.CanonicalTick{
		InstrumentID: instrumentID,
		TsEventNs:    ts,
		TsInitNs:     ts,
		Price:        decimal.RequireFromString(price),
		Size:         decimal.RequireFromString("1"),
		Aggressor:    domain.AggressorBuy,
		TradeID:      "t-1",
	}
}

func TestTickStore_InsertAndGetByInstrument(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	batch := []*domain.CanonicalTick{
		testTick("BTCUSDT.TEST", 100, "42000"),
		testTick("BTCUSDT.TEST", 200, "42001"),
		testTick("ETHUSDT.TEST", 150, "2200"),
	}
	if err := store.InsertBatch(ctx, batch); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	ticks, err := store.GetByInstrument(ctx, "BTCUSDT.TEST")
	if err != nil {
		t.Fatalf("GetByInstrument failed: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("Expected 2 ticks, got %d", len(ticks))
	}
	if !ticks[0].Price.Equal(decimal.RequireFromString("42000")) {
		t.Errorf("Unexpected first tick price: %s", ticks[0].Price)
	}
}

func TestTickStore_GetByTimeRangeHalfOpen(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	var batch []*domain.CanonicalTick
	for _, ts := range []int64{100, 200, 300, 400} {
		batch = append(batch, testTick("BTCUSDT.TEST", ts, "42000"))
	}
	store.InsertBatch(ctx, batch)

	// [200, 400): the start is included, the end is not.
	ticks, err := store.GetByTimeRange(ctx, "BTCUSDT.TEST", 200, 400)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(ticks) != 2 {
		t.Fatalf("Expected 2 ticks in [200, 400), got %d", len(ticks))
	}
	if ticks[0].TsEventNs != 200 || ticks[1].TsEventNs != 300 {
		t.Errorf("Unexpected timestamps: %d, %d", ticks[0].TsEventNs, ticks[1].TsEventNs)
	}
}

func TestTickStore_GetSortsByEventTime(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	// Batches may arrive in any relative order.
	store.InsertBatch(ctx, []*domain.CanonicalTick{testTick("BTCUSDT.TEST", 300, "3")})
	store.InsertBatch(ctx, []*domain.CanonicalTick{testTick("BTCUSDT.TEST", 100, "1")})
	store.InsertBatch(ctx, []*domain.CanonicalTick{testTick("BTCUSDT.TEST", 200, "2")})

	ticks, _ := store.GetByInstrument(ctx, "BTCUSDT.TEST")
	for i, want := range []int64{100, 200, 300} {
		if ticks[i].TsEventNs != want {
			t.Errorf("Position %d: expected ts %d, got %d", i, want, ticks[i].TsEventNs)
		}
	}
}

func TestTickStore_HasAnyAndCount(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	has, err := store.HasAny(ctx, "BTCUSDT.TEST")
	if err != nil || has {
		t.Errorf("Expected no ticks yet, has=%v err=%v", has, err)
	}

	store.InsertBatch(ctx, []*domain.CanonicalTick{
		testTick("BTCUSDT.TEST", 100, "42000"),
		testTick("BTCUSDT.TEST", 200, "42001"),
	})

	has, _ = store.HasAny(ctx, "BTCUSDT.TEST")
	if !has {
		t.Error("Expected HasAny true after insert")
	}
	count, _ := store.Count(ctx, "BTCUSDT.TEST")
	if count != 2 {
		t.Errorf("Expected count 2, got %d", count)
	}
	count, _ = store.Count(ctx, "ETHUSDT.TEST")
	if count != 0 {
		t.Errorf("Expected count 0 for other instrument, got %d", count)
	}
}

func TestTickStore_EmptyBatchIsNoop(t *testing.T) {
	store := NewTickStore()

	if err := store.InsertBatch(context.Background(), nil); err != nil {
		t.Errorf("Empty batch must be a no-op, got %v", err)
	}
}

func TestTickStore_InvalidInputRejectsWholeBatch(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	batch := []*domain.CanonicalTick{
		testTick("BTCUSDT.TEST", 100, "42000"),
		{TsEventNs: 200}, // missing instrument id
	}
	if err := store.InsertBatch(ctx, batch); !errors.Is(err, storage.ErrInvalidInput) {
		t.Fatalf("Expected ErrInvalidInput, got %v", err)
	}

	// Nothing from the batch may be visible.
	count, _ := store.Count(ctx, "BTCUSDT.TEST")
	if count != 0 {
		t.Errorf("Expected rejected batch to write nothing, got %d ticks", count)
	}
}

func TestTickStore_CopySemantics(t *testing.T) {
	store := NewTickStore()
	ctx := context.Background()

	tick := testTick("BTCUSDT.TEST", 100, "42000")
	store.InsertBatch(ctx, []*domain.CanonicalTick{tick})

	tick.TradeID = "mutated"
	got, _ := store.GetByInstrument(ctx, "BTCUSDT.TEST")
	if got[0].TradeID != "t-1" {
		t.Errorf("Store leaked caller's mutation: %s", got[0].TradeID)
	}
}
