package sim

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestEngine(commission string) *Engine {
	var now int64 = 1000
	return New(dec(commission), "USDT", func() int64 { now++; return now })
}

func registerParent(e *Engine, id string, side domain.Side) *domain.ParentOrder {
	parent := &domain.ParentOrder{
		OrderID:       id,
		InstrumentID:  "BTCUSDT.TEST",
		Side:          side,
		TotalQuantity: dec("1"),
	}
	e.RegisterParent(parent)
	return parent
}

func TestEngine_RejectsWithoutMarketData(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()
	parent := registerParent(e, "p1", domain.SideBuy)

	if err := e.Submit(ctx, parent); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if len(e.FillEvents()) != 0 {
		t.Error("Expected no fills without market data")
	}
	rejections := e.RejectionEvents()
	if len(rejections) != 1 {
		t.Fatalf("Expected 1 rejection, got %d", len(rejections))
	}
	if rejections[0].Reason != "no market data" {
		t.Errorf("Unexpected rejection reason: %s", rejections[0].Reason)
	}
	// The order event is still recorded.
	if len(e.OrderEvents()) != 1 {
		t.Errorf("Expected 1 order event, got %d", len(e.OrderEvents()))
	}
}

func TestEngine_FillsAtLastPrice(t *testing.T) {
	e := newTestEngine("0.001")
	ctx := context.Background()
	parent := registerParent(e, "p1", domain.SideBuy)
	parent.TotalQuantity = dec("2")

	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	if err := e.Submit(ctx, parent); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	fills := e.FillEvents()
	if len(fills) != 1 {
		t.Fatalf("Expected 1 fill, got %d", len(fills))
	}
	f := fills[0]
	if !f.Price.Equal(dec("100")) || !f.Quantity.Equal(dec("2")) {
		t.Errorf("Unexpected fill: price=%s qty=%s", f.Price, f.Quantity)
	}
	// commission = 100 * 2 * 0.001
	if !f.Commission.Amount.Equal(dec("0.2")) {
		t.Errorf("Expected commission 0.2, got %s", f.Commission.Amount)
	}
	if f.Commission.Currency != "USDT" {
		t.Errorf("Expected USDT commission, got %s", f.Commission.Currency)
	}

	// Commission is debited from the balance.
	changes, err := e.BalanceChanges(ctx)
	if err != nil {
		t.Fatalf("BalanceChanges failed: %v", err)
	}
	if len(changes) != 1 || !changes[0].Amount.Equal(dec("-0.2")) {
		t.Errorf("Expected balance change -0.2, got %v", changes)
	}
}

func TestEngine_NettingAveragesOpenPrice(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()
	parent := registerParent(e, "p1", domain.SideBuy)

	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	e.Submit(ctx, parent)
	e.MarkPrice("BTCUSDT.TEST", dec("200"))
	e.Submit(ctx, parent)

	positions, err := e.Positions(ctx, "BTCUSDT.TEST")
	if err != nil {
		t.Fatalf("Positions failed: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("Expected 1 netting position, got %d", len(positions))
	}
	pos := positions[0]
	if pos.Side != domain.PositionLong {
		t.Errorf("Expected LONG, got %s", pos.Side)
	}
	if !pos.Quantity.Equal(dec("2")) {
		t.Errorf("Expected quantity 2, got %s", pos.Quantity)
	}
	if !pos.AvgOpenPrice.Equal(dec("150")) {
		t.Errorf("Expected avg open 150, got %s", pos.AvgOpenPrice)
	}
}

func TestEngine_FlipCreatesSnapshotAndNewCycle(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()

	buy := registerParent(e, "buy1", domain.SideBuy)
	buy.TotalQuantity = dec("10")
	sell := &domain.ParentOrder{
		OrderID:       "sell1",
		InstrumentID:  "BTCUSDT.TEST",
		Side:          domain.SideSell,
		TotalQuantity: dec("15"),
	}
	e.RegisterParent(sell)

	// Long 10 at 100, then sell 15 at 110: the long cycle realizes
	// 10 * (110 - 100) and a short 5 cycle opens at 110.
	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	e.Submit(ctx, buy)
	e.MarkPrice("BTCUSDT.TEST", dec("110"))
	e.Submit(ctx, sell)

	positions, _ := e.Positions(ctx, "BTCUSDT.TEST")
	pos := positions[0]
	if pos.Side != domain.PositionShort {
		t.Errorf("Expected SHORT after flip, got %s", pos.Side)
	}
	if !pos.Quantity.Equal(dec("5")) {
		t.Errorf("Expected quantity 5, got %s", pos.Quantity)
	}
	if !pos.AvgOpenPrice.Equal(dec("110")) {
		t.Errorf("Expected new cycle open at 110, got %s", pos.AvgOpenPrice)
	}
	if !pos.RealizedPnL.IsZero() {
		t.Errorf("New cycle must start with zero realized PnL, got %s", pos.RealizedPnL)
	}

	snaps, err := e.PositionSnapshots(ctx, pos.PositionID)
	if err != nil {
		t.Fatalf("PositionSnapshots failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(snaps))
	}
	snap := snaps[0]
	if !snap.FlipClosed {
		t.Error("Expected snapshot marked as flip-closed")
	}
	if snap.Side != domain.PositionLong {
		t.Errorf("Expected LONG snapshot, got %s", snap.Side)
	}
	if !snap.RealizedPnL.Equal(dec("100")) {
		t.Errorf("Expected realized 100 in snapshot, got %s", snap.RealizedPnL)
	}
	if !snap.PeakQuantity.Equal(dec("10")) {
		t.Errorf("Expected peak 10, got %s", snap.PeakQuantity)
	}
	if snap.CycleIndex != 0 {
		t.Errorf("Expected cycle index 0, got %d", snap.CycleIndex)
	}
}

func TestEngine_FlatCloseSnapshotsWithoutFlip(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()

	buy := registerParent(e, "buy1", domain.SideBuy)
	buy.TotalQuantity = dec("10")
	sell := &domain.ParentOrder{
		OrderID:       "sell1",
		InstrumentID:  "BTCUSDT.TEST",
		Side:          domain.SideSell,
		TotalQuantity: dec("10"),
	}
	e.RegisterParent(sell)

	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	e.Submit(ctx, buy)
	e.MarkPrice("BTCUSDT.TEST", dec("90"))
	e.Submit(ctx, sell)

	positions, _ := e.Positions(ctx, "BTCUSDT.TEST")
	pos := positions[0]
	if pos.Side != domain.PositionFlat {
		t.Errorf("Expected FLAT, got %s", pos.Side)
	}

	snaps, _ := e.PositionSnapshots(ctx, pos.PositionID)
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(snaps))
	}
	if snaps[0].FlipClosed {
		t.Error("Going flat is not a flip")
	}
	if !snaps[0].RealizedPnL.Equal(dec("-100")) {
		t.Errorf("Expected realized -100, got %s", snaps[0].RealizedPnL)
	}

	// Realized PnL also flows into the balance ledger.
	changes, _ := e.BalanceChanges(ctx)
	if len(changes) != 1 || !changes[0].Amount.Equal(dec("-100")) {
		t.Errorf("Expected balance change -100, got %v", changes)
	}
}

func TestEngine_ShortRealizedPnL(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()

	sell := registerParent(e, "sell1", domain.SideSell)
	sell.TotalQuantity = dec("4")
	buy := &domain.ParentOrder{
		OrderID:       "buy1",
		InstrumentID:  "BTCUSDT.TEST",
		Side:          domain.SideBuy,
		TotalQuantity: dec("4"),
	}
	e.RegisterParent(buy)

	// Short 4 at 100, cover at 80: realized = 4 * (100 - 80) = 80.
	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	e.Submit(ctx, sell)
	e.MarkPrice("BTCUSDT.TEST", dec("80"))
	e.Submit(ctx, buy)

	positions, _ := e.Positions(ctx, "BTCUSDT.TEST")
	snaps, _ := e.PositionSnapshots(ctx, positions[0].PositionID)
	if len(snaps) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(snaps))
	}
	if !snaps[0].RealizedPnL.Equal(dec("80")) {
		t.Errorf("Expected realized 80 on short cover, got %s", snaps[0].RealizedPnL)
	}
}

func TestEngine_FillListenerObservesFills(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()
	parent := registerParent(e, "p1", domain.SideBuy)

	var seen []*domain.FillEvent
	e.SetFillListener(func(_ context.Context, fill *domain.FillEvent) {
		seen = append(seen, fill)
	})

	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	e.Submit(ctx, parent)
	e.Submit(ctx, parent)

	if len(seen) != 2 {
		t.Fatalf("Expected listener to see 2 fills, got %d", len(seen))
	}
	if seen[0].FillID == seen[1].FillID {
		t.Error("Fill ids must be unique")
	}
}

func TestEngine_SubmitSliceUsesParentRegistration(t *testing.T) {
	e := newTestEngine("0")
	ctx := context.Background()
	registerParent(e, "p1", domain.SideSell)

	e.MarkPrice("BTCUSDT.TEST", dec("100"))
	slice := &domain.ChildOrderSlice{ParentID: "p1", SliceIndex: 3, Quantity: dec("0.5"), ScheduledAtNs: 42}
	if err := e.SubmitSlice(ctx, slice); err != nil {
		t.Fatalf("SubmitSlice failed: %v", err)
	}

	orders := e.OrderEvents()
	if len(orders) != 1 {
		t.Fatalf("Expected 1 order, got %d", len(orders))
	}
	if orders[0].OrderID != "p1-3" {
		t.Errorf("Expected slice order id p1-3, got %s", orders[0].OrderID)
	}
	if orders[0].Side != domain.SideSell {
		t.Errorf("Expected side from registration, got %s", orders[0].Side)
	}
	if orders[0].TsEventNs != 42 {
		t.Errorf("Expected scheduled timestamp 42, got %d", orders[0].TsEventNs)
	}

	// Unregistered parents cannot be resolved.
	if err := e.SubmitSlice(ctx, &domain.ChildOrderSlice{ParentID: "ghost", Quantity: dec("1")}); err == nil {
		t.Error("Expected error for unregistered parent")
	}
}
