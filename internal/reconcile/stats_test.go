package reconcile

import (
	"testing"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

func snap(idx int, realized string, closedAt int64) *domain.PositionSnapshot {
	return &domain.PositionSnapshot{
		PositionID:  "BTCUSDT.TEST-NET",
		CycleIndex:  idx,
		RealizedPnL: dec(realized),
		ClosedAtNs:  closedAt,
	}
}

func TestComputeCycleStats_WinRate(t *testing.T) {
	snapshots := []*domain.PositionSnapshot{
		snap(0, "10", 100),
		snap(1, "-4", 200),
		snap(2, "6", 300),
		snap(3, "0", 400), // break-even counts as a loss
	}

	stats := computeCycleStats(nil, snapshots)
	if stats.CycleCount != 4 {
		t.Errorf("Expected 4 cycles, got %d", stats.CycleCount)
	}
	if stats.WinCount != 2 || stats.LossCount != 2 {
		t.Errorf("Expected 2 wins / 2 losses, got %d/%d", stats.WinCount, stats.LossCount)
	}
	if stats.WinRate != 0.5 {
		t.Errorf("Expected win rate 0.5, got %f", stats.WinRate)
	}
}

func TestComputeCycleStats_OpenCycleCountsButIsUndecided(t *testing.T) {
	positions := []*domain.Position{longPosition("1", "100", "50")}
	snapshots := []*domain.PositionSnapshot{snap(0, "10", 100)}

	stats := computeCycleStats(positions, snapshots)
	if stats.CycleCount != 2 {
		t.Errorf("Expected 2 cycles including the open one, got %d", stats.CycleCount)
	}
	if stats.WinCount != 1 || stats.LossCount != 0 {
		t.Errorf("Open cycle must not be decided: wins=%d losses=%d", stats.WinCount, stats.LossCount)
	}
	if stats.WinRate != 1.0 {
		t.Errorf("Expected win rate 1.0 over decided cycles, got %f", stats.WinRate)
	}
}

func TestComputeCycleStats_NoCycles(t *testing.T) {
	stats := computeCycleStats(nil, nil)
	if stats.CycleCount != 0 || stats.WinRate != 0 {
		t.Errorf("Expected empty stats, got %+v", stats)
	}
	if !stats.MaxDrawdown.IsZero() {
		t.Errorf("Expected zero drawdown, got %s", stats.MaxDrawdown)
	}
}

func TestMaxDrawdown_PeakToTrough(t *testing.T) {
	// Cumulative: 10, 16, 6, 2, 9. Peak 16, trough 2, drawdown 14.
	closed := []*domain.PositionSnapshot{
		snap(0, "10", 100),
		snap(1, "6", 200),
		snap(2, "-10", 300),
		snap(3, "-4", 400),
		snap(4, "7", 500),
	}

	dd := maxDrawdown(closed)
	if !dd.Equal(decimal.RequireFromString("14")) {
		t.Errorf("Expected drawdown 14, got %s", dd)
	}
}

func TestMaxDrawdown_MonotonicGainsHaveNoDrawdown(t *testing.T) {
	closed := []*domain.PositionSnapshot{
		snap(0, "5", 100),
		snap(1, "3", 200),
	}

	if dd := maxDrawdown(closed); !dd.IsZero() {
		t.Errorf("Expected zero drawdown on monotonic gains, got %s", dd)
	}
}

func TestMaxDrawdown_OrdersByCloseTime(t *testing.T) {
	// computeCycleStats sorts by close time before the walk. Out-of-order
	// input must produce the same drawdown as sorted input.
	snapshots := []*domain.PositionSnapshot{
		snap(2, "-10", 300),
		snap(0, "10", 100),
		snap(1, "6", 200),
	}

	stats := computeCycleStats(nil, snapshots)
	if !stats.MaxDrawdown.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Expected drawdown 10, got %s", stats.MaxDrawdown)
	}
}
