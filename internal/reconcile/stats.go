package reconcile

import (
	"sort"

	"github.com/shopspring/decimal"

	"backtest-lab/internal/domain"
)

// computeCycleStats derives trade statistics from the position-cycle
// stream. Cycles, not fills, are the unit: one cycle may span many fills.
func computeCycleStats(positions []*domain.Position, snapshots []*domain.PositionSnapshot) domain.CycleStats {
	// Closed cycles in close order for the drawdown walk.
	closed := make([]*domain.PositionSnapshot, len(snapshots))
	copy(closed, snapshots)
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ClosedAtNs < closed[j].ClosedAtNs
	})

	stats := domain.CycleStats{CycleCount: len(closed)}

	for _, s := range closed {
		if s.RealizedPnL.IsPositive() {
			stats.WinCount++
		} else {
			stats.LossCount++
		}
	}

	// Open cycles count toward the total but not toward win/loss: their
	// outcome is not decided yet.
	for _, p := range positions {
		if p.Side != domain.PositionFlat && !p.Quantity.IsZero() {
			stats.CycleCount++
		}
	}

	if decided := stats.WinCount + stats.LossCount; decided > 0 {
		stats.WinRate = float64(stats.WinCount) / float64(decided)
	}

	stats.MaxDrawdown = maxDrawdown(closed)
	return stats
}

// maxDrawdown walks cumulative realized PnL over closed cycles and returns
// the worst peak-to-trough decline as a non-negative value.
func maxDrawdown(closed []*domain.PositionSnapshot) decimal.Decimal {
	cumulative := decimal.Zero
	peak := decimal.Zero
	worst := decimal.Zero

	for _, s := range closed {
		cumulative = cumulative.Add(s.RealizedPnL)
		if cumulative.GreaterThan(peak) {
			peak = cumulative
		}
		if dd := peak.Sub(cumulative); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst
}
